package provider

import (
	"context"

	"github.com/roach88/dbsync/internal/engine"
	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/result"
	"github.com/roach88/dbsync/internal/store"
)

// MapOne maps a single record. It behaves exactly like a batch of one.
func (p *Provider) MapOne(entity string, record ir.Record) *result.Channel {
	return p.MapBatch(entity, []ir.Record{record})
}

// MapBatch creates or updates one entity per record, all or nothing.
func (p *Provider) MapBatch(entity string, records []ir.Record) *result.Channel {
	return p.submit(engine.KindMap, entity, func(ctx context.Context, w *store.WriteContext) error {
		_, err := p.mapper.MapBatch(ctx, w, entity, records)
		return err
	})
}

// DeleteByID deletes the entity with the given primary key, if present.
func (p *Provider) DeleteByID(entity string, id any) *result.Channel {
	return p.DeleteByIDs(entity, []any{id})
}

// DeleteByIDs deletes every entity whose primary key is in ids. Missing
// keys are skipped; an empty ids succeeds without deleting anything.
func (p *Provider) DeleteByIDs(entity string, ids []any) *result.Channel {
	return p.submit(engine.KindDelete, entity, func(ctx context.Context, w *store.WriteContext) error {
		keys, err := p.mapper.NormalizeKeys(entity, ids)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}

		found, err := w.FindByKeys(ctx, entity, keys)
		if err != nil {
			return deleteError(entity, err)
		}
		for _, e := range found {
			if _, err := w.Delete(ctx, ir.Ref{Type: e.Type, Key: e.Key}); err != nil {
				return deleteError(entity, err)
			}
		}

		p.logger.Debug("entities deleted", "entity", entity, "requested", len(keys), "deleted", len(found))
		return nil
	})
}

// Purge bulk-deletes every entity type except the excluded ones. A type is
// kept when it is, descends from, or is an ancestor of an excluded type.
func (p *Provider) Purge(exclude ...string) *result.Channel {
	schema := p.store.Schema()
	for _, name := range exclude {
		if _, ok := schema.Lookup(name); !ok {
			p.logger.Warn("purge: unknown excluded entity", "entity", name)
		}
	}

	return p.PurgeFunc(func(es ir.EntitySchema) bool {
		for _, name := range exclude {
			if schema.Related(es.Name, name) {
				return true
			}
		}
		return false
	})
}

// PurgeFunc bulk-deletes every entity type for which exclude returns
// false, in schema declaration order. Each bulk delete commits on its
// own; the first failure stops the purge and earlier deletes stay.
func (p *Provider) PurgeFunc(exclude func(ir.EntitySchema) bool) *result.Channel {
	return p.submit(engine.KindPurge, "", func(ctx context.Context, w *store.WriteContext) error {
		for _, es := range w.Schema().EntityTypes() {
			if exclude != nil && exclude(es) {
				continue
			}
			n, err := w.BulkDelete(ctx, es.Name)
			if err != nil {
				return err
			}
			p.logger.Debug("entity type purged", "entity", es.Name, "deleted", n)
		}
		return nil
	})
}

// Edit runs action inside a fresh write context on the coordinator. The
// context is committed when action returns nil and discarded otherwise.
//
// A ":memory:" store has no separate read pool: its readers share the
// writer connection, so an action must read through w.Find and never call
// the Fetch or Count methods, which would block until the action returns.
func (p *Provider) Edit(entity string, action engine.Action) *result.Channel {
	return p.submit(engine.KindEdit, entity, action)
}

func deleteError(entity string, err error) error {
	if store.CodeOf(err) != "" {
		return err
	}
	return store.NewDeleteError(entity, err)
}
