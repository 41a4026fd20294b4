package provider

import (
	"context"
	"log/slog"

	"github.com/roach88/dbsync/internal/engine"
	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/mapper"
	"github.com/roach88/dbsync/internal/queryir"
	"github.com/roach88/dbsync/internal/result"
	"github.com/roach88/dbsync/internal/store"
)

// Mapper maps loosely-typed records into persisted entities.
type Mapper interface {
	MapOne(entity string, record ir.Record) *result.Channel
	MapBatch(entity string, records []ir.Record) *result.Channel
}

// Deleter removes entities by primary key.
type Deleter interface {
	DeleteByID(entity string, id any) *result.Channel
	DeleteByIDs(entity string, ids []any) *result.Channel
}

// Cleaner bulk-deletes whole entity types.
type Cleaner interface {
	Purge(exclude ...string) *result.Channel
	PurgeFunc(exclude func(ir.EntitySchema) bool) *result.Channel
}

// Editor runs arbitrary write closures through the coordinator.
type Editor interface {
	Edit(entity string, action engine.Action) *result.Channel
}

// Fetcher reads committed state.
type Fetcher interface {
	FetchModels(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) []ir.Record
	FetchFirst(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) (ir.Record, bool)
	FetchRelated(ctx context.Context, from, relation string, key any, keyField string, sort ...queryir.SortKey) []ir.Record
	FetchEntities(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) []ir.Entity
	FetchFirstEntity(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) (ir.Entity, bool)
	Count(ctx context.Context, entity string, filter queryir.Predicate) int64
}

var (
	_ Mapper  = (*Provider)(nil)
	_ Deleter = (*Provider)(nil)
	_ Cleaner = (*Provider)(nil)
	_ Editor  = (*Provider)(nil)
	_ Fetcher = (*Provider)(nil)
)

// Provider composes the write coordinator, the entity mapper and the
// store's read context.
//
// Thread-safety: every method is safe for concurrent use.
type Provider struct {
	store      *store.Store
	engine     *engine.Engine
	mapper     *mapper.EntityMapper
	dispatcher result.Dispatcher
	owned      *result.SerialDispatcher // Closed by Close when set
	logger     *slog.Logger

	engineOpts []engine.EngineOption
	mapperOpts []mapper.Option
}

// Option configures a Provider.
type Option func(*Provider)

// WithDispatcher sets where result channels deliver their events.
// Default: a SerialDispatcher owned by the provider.
func WithDispatcher(d result.Dispatcher) Option {
	return func(p *Provider) {
		p.dispatcher = d
	}
}

// WithLogger sets the logger for the provider, its engine and its mapper.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithEngineOptions passes options through to the write coordinator.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(p *Provider) {
		p.engineOpts = append(p.engineOpts, opts...)
	}
}

// WithMapperOptions passes options through to the entity mapper.
func WithMapperOptions(opts ...mapper.Option) Option {
	return func(p *Provider) {
		p.mapperOpts = append(p.mapperOpts, opts...)
	}
}

// New creates a Provider over s and starts its write coordinator.
// The caller keeps ownership of s; Close does not close it.
func New(s *store.Store, opts ...Option) *Provider {
	p := &Provider{
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.dispatcher == nil {
		p.owned = result.NewSerialDispatcher()
		p.dispatcher = p.owned
	}

	p.mapper = mapper.New(s.Schema(), append([]mapper.Option{mapper.WithLogger(p.logger)}, p.mapperOpts...)...)
	p.engine = engine.New(s, append([]engine.EngineOption{engine.WithLogger(p.logger)}, p.engineOpts...)...)

	go func() {
		if err := p.engine.Run(context.Background()); err != nil {
			p.logger.Error("write coordinator exited", "error", err)
		}
	}()

	return p
}

// Close stops accepting writes, waits for queued writes to finish and for
// their results to be delivered by an owned dispatcher.
func (p *Provider) Close() {
	p.engine.Stop()
	<-p.engine.Done()
	if p.owned != nil {
		p.owned.Close()
	}
}

// Schema returns the store's entity schema.
func (p *Provider) Schema() *ir.Schema {
	return p.store.Schema()
}

// EntityMapper returns the mapper used by write operations, for Edit
// actions and for exporting entities.
func (p *Provider) EntityMapper() *mapper.EntityMapper {
	return p.mapper
}

// Pending returns the number of writes queued but not yet started.
func (p *Provider) Pending() int {
	return p.engine.Pending()
}

// submit wraps action in an operation. A released store or a stopped
// coordinator fails the channel immediately and enqueues nothing.
func (p *Provider) submit(kind engine.Kind, entity string, action engine.Action) *result.Channel {
	if !p.store.Available() || p.engine.Stopped() {
		p.logger.Warn("write rejected: store unavailable", "kind", kind, "entity", entity)
		return result.Failed(p.dispatcher, store.NewUnavailableError())
	}

	ch, complete := result.New(p.dispatcher)
	if !p.engine.Submit(engine.NewOperation(kind, entity, action, complete)) {
		p.logger.Warn("write rejected: coordinator stopped", "kind", kind, "entity", entity)
		return result.Failed(p.dispatcher, store.NewUnavailableError())
	}
	return ch
}
