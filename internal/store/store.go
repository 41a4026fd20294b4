package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/dbsync/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial entities/relations schema
const currentSchemaVersion = 1

// DefaultBusyTimeout is the default lock wait in milliseconds.
const DefaultBusyTimeout = 5000

// Store is the embedded object store shared by one writer and many readers.
//
// Writes go through a single-connection pool, so at most one WriteContext
// holds the writer at any instant; a second NewWriteContext blocks until the
// first is committed or discarded. Reads use a separate query-only pool and
// see the last committed state (WAL).
type Store struct {
	writer *sql.DB
	reader *sql.DB
	schema *ir.Schema
	logger *slog.Logger

	busyTimeout int
	seq         atomic.Int64
	closed      atomic.Bool

	mu      sync.Mutex
	stats   Stats
	closeMu sync.Once
}

// Stats reports write-context usage. MaxOpenWriteContexts is the high-water
// mark of simultaneously open write contexts.
type Stats struct {
	OpenWriteContexts    int
	MaxOpenWriteContexts int
	Commits              int64
	Discards             int64
}

// Option configures a Store.
type Option func(*Store)

// WithSchema registers the entity schema used to validate writes and expand
// fetches to descendant types.
func WithSchema(schema *ir.Schema) Option {
	return func(s *Store) {
		s.schema = schema
	}
}

// WithBusyTimeout sets the SQLite busy timeout in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(s *Store) {
		if ms > 0 {
			s.busyTimeout = ms
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention (default 5 seconds)
//   - Foreign key enforcement
//
// The path ":memory:" (or "") opens a private in-memory database; readers
// then share the single writer connection.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		busyTimeout: DefaultBusyTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.schema == nil {
		s.schema = ir.MustSchema()
	}
	if path == "" {
		path = ":memory:"
	}

	// Open database (creates file if doesn't exist)
	writer, err := sql.Open("sqlite3", writerDSN(path, s.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; the single connection is
	// also what serializes write contexts.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := applyPragmas(writer, s.busyTimeout); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var maxSeq int64
	if err := writer.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM entities").Scan(&maxSeq); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}
	s.seq.Store(maxSeq)
	s.writer = writer

	if path == ":memory:" {
		s.reader = writer
	} else {
		reader, err := sql.Open("sqlite3", readerDSN(path, s.busyTimeout))
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to open read pool: %w", err)
		}
		s.reader = reader
	}

	s.logger.Debug("store opened", "path", path, "seq", maxSeq, "entities", len(s.schema.Names()))
	return s, nil
}

// writerDSN repeats the per-connection pragmas as DSN parameters so a
// reconnected writer keeps them.
func writerDSN(path string, busyTimeout int) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(busyTimeout))
	params.Set("_foreign_keys", "on")
	return path + "?" + params.Encode()
}

// readerDSN builds a query-only connection string for the read pool.
func readerDSN(path string, busyTimeout int) string {
	params := url.Values{}
	params.Set("_query_only", "true")
	params.Set("_busy_timeout", strconv.Itoa(busyTimeout))
	params.Set("_foreign_keys", "on")
	return "file:" + path + "?" + params.Encode()
}

// Close releases the store. Subsequent operations fail with
// STORE_UNAVAILABLE. Close is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeMu.Do(func() {
		s.closed.Store(true)
		if s.reader != nil && s.reader != s.writer {
			err = s.reader.Close()
		}
		if s.writer != nil {
			if werr := s.writer.Close(); werr != nil && err == nil {
				err = werr
			}
		}
	})
	return err
}

// Available reports whether the store handle is still usable.
func (s *Store) Available() bool {
	return !s.closed.Load()
}

// Schema returns the registered entity schema.
func (s *Store) Schema() *ir.Schema {
	return s.schema
}

// Stats returns a snapshot of write-context usage.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// DB returns the underlying writer sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.writer
}

// nextSeq returns the next insertion sequence number.
func (s *Store) nextSeq() int64 {
	return s.seq.Add(1)
}

func (s *Store) trackOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.OpenWriteContexts++
	if s.stats.OpenWriteContexts > s.stats.MaxOpenWriteContexts {
		s.stats.MaxOpenWriteContexts = s.stats.OpenWriteContexts
	}
}

func (s *Store) trackClose(committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.OpenWriteContexts--
	if committed {
		s.stats.Commits++
	} else {
		s.stats.Discards++
	}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, busyTimeout int) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	// Version 1 is the initial schema; later migrations go here in order.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.writer.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
