package provider

import (
	"context"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/queryir"
)

// FetchModels returns exported snapshots of matching entities. Entities of
// descendant types are included. Returns nil on failure.
func (p *Provider) FetchModels(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) []ir.Record {
	entities := p.FetchEntities(ctx, entity, filter, sort...)
	if entities == nil {
		return nil
	}
	return p.mapper.ExportAll(entities)
}

// FetchFirst returns the first matching entity as a snapshot.
func (p *Provider) FetchFirst(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) (ir.Record, bool) {
	e, ok := p.FetchFirstEntity(ctx, entity, filter, sort...)
	if !ok {
		return nil, false
	}
	return p.mapper.Export(e), true
}

// FetchRelated returns entities of type from that have at least one entity
// related through relation whose keyField equals key.
func (p *Provider) FetchRelated(ctx context.Context, from, relation string, key any, keyField string, sort ...queryir.SortKey) []ir.Record {
	v, err := ir.FromGo(key)
	if err != nil {
		p.logger.Warn("fetch related: unsupported key", "entity", from, "relation", relation, "error", err)
		return nil
	}
	filter := queryir.Related{
		Relation: relation,
		Target:   queryir.In{Field: keyField, Values: []ir.IRValue{v}},
	}
	return p.FetchModels(ctx, from, filter, sort...)
}

// FetchEntities returns matching entities. Returns nil on failure and an
// empty slice when nothing matches.
func (p *Provider) FetchEntities(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) []ir.Entity {
	q := queryir.Select{From: entity, Filter: filter, Sort: sort}
	entities, err := p.store.ReadContext().Fetch(ctx, q)
	if err != nil {
		p.logger.Warn("fetch failed", "entity", entity, "error", err)
		return nil
	}
	return entities
}

// FetchFirstEntity returns the first matching entity.
func (p *Provider) FetchFirstEntity(ctx context.Context, entity string, filter queryir.Predicate, sort ...queryir.SortKey) (ir.Entity, bool) {
	q := queryir.Select{From: entity, Filter: filter, Sort: sort}
	e, ok, err := p.store.ReadContext().First(ctx, q)
	if err != nil {
		p.logger.Warn("fetch first failed", "entity", entity, "error", err)
		return ir.Entity{}, false
	}
	return e, ok
}

// Count returns the number of matching entities, or 0 on failure.
func (p *Provider) Count(ctx context.Context, entity string, filter queryir.Predicate) int64 {
	n, err := p.store.ReadContext().Count(ctx, queryir.Select{From: entity, Filter: filter})
	if err != nil {
		p.logger.Warn("count failed", "entity", entity, "error", err)
		return 0
	}
	return n
}
