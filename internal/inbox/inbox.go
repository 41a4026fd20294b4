// Package inbox imports record files dropped into a directory.
//
// Every *.json file holding {"entity": "...", "records": [...]} is mapped
// through a provider once it has been quiet for the settle period. The
// file is then renamed to *.json.done, or *.json.failed when decoding or
// mapping failed. Files are processed one at a time in arrival order.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/result"
)

// File name suffixes.
const (
	ExtInput  = ".json"
	ExtDone   = ".done"
	ExtFailed = ".failed"
)

// Result labels for processed files.
const (
	ResultDone   = "done"
	ResultFailed = "failed"
)

// Mapper submits a batch of records for one entity.
type Mapper interface {
	MapBatch(entity string, records []ir.Record) *result.Channel
}

// Inbox watches a directory and imports the files that appear in it.
type Inbox struct {
	dir     string
	mapper  Mapper
	settle  time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithSettle sets how long a file must be quiet before it is imported.
func WithSettle(d time.Duration) Option {
	return func(in *Inbox) {
		in.settle = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Inbox) {
		in.logger = logger
	}
}

// WithMetrics records processed files on m.
func WithMetrics(m *Metrics) Option {
	return func(in *Inbox) {
		in.metrics = m
	}
}

// New creates an inbox over dir.
func New(dir string, m Mapper, opts ...Option) *Inbox {
	in := &Inbox{
		dir:     dir,
		mapper:  m,
		settle:  200 * time.Millisecond,
		logger:  slog.Default(),
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run imports files already present, then watches for new ones until ctx
// ends. It returns nil on cancellation.
func (in *Inbox) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(in.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", in.dir, err)
	}
	in.logger.Info("inbox watching", "dir", in.dir, "settle", in.settle)

	// Files present before the watch started are imported first.
	if err := in.Scan(ctx); err != nil {
		return err
	}

	ready := make(chan string, 16)
	defer in.stopTimers()

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("inbox stopping", "dir", in.dir)
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isInput(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				in.schedule(ctx, event.Name, ready)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox watch error", "dir", in.dir, "error", err)
		case path := <-ready:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			_ = in.Process(ctx, path)
		}
	}
}

// schedule (re)starts the settle timer of path.
func (in *Inbox) schedule(ctx context.Context, path string, ready chan<- string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if t, ok := in.pending[path]; ok {
		t.Reset(in.settle)
		return
	}
	in.pending[path] = time.AfterFunc(in.settle, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()

		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (in *Inbox) stopTimers() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
}

// Scan imports every input file currently in the directory, in name order.
func (in *Inbox) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("inbox: read %s: %w", in.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isInput(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		_ = in.Process(ctx, filepath.Join(in.dir, name))
	}
	return nil
}

// Process imports one file and renames it by result. The returned error
// is the decode or mapping failure, already logged.
func (in *Inbox) Process(ctx context.Context, path string) error {
	err := in.importFile(ctx, path)

	outcome, suffix := ResultDone, ExtDone
	if err != nil {
		outcome, suffix = ResultFailed, ExtFailed
		in.logger.Error("inbox import failed", "file", path, "error", err)
	} else {
		in.logger.Info("inbox import done", "file", path)
	}

	if renameErr := os.Rename(path, path+suffix); renameErr != nil {
		in.logger.Error("inbox rename failed", "file", path, "error", renameErr)
	}
	if in.metrics != nil {
		in.metrics.Files.WithLabelValues(outcome).Inc()
	}
	return err
}

func (in *Inbox) importFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	f, err := DecodeFile(data)
	if err != nil {
		return err
	}

	in.logger.Debug("inbox importing", "file", path, "entity", f.Entity, "records", len(f.Records))
	// An accepted write runs to completion, so wait for it past cancellation.
	return in.mapper.MapBatch(f.Entity, f.Records).Wait(context.WithoutCancel(ctx))
}

func isInput(name string) bool {
	return strings.HasSuffix(name, ExtInput)
}
