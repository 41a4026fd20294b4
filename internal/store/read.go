package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/queryir"
	"github.com/roach88/dbsync/internal/querysql"
)

// ReadContext is the store's read-optimised view. It uses the read pool,
// never the writer, and sees the last committed state. Safe for concurrent
// use.
type ReadContext struct {
	store *Store
}

// ReadContext returns the store's shared read context.
func (s *Store) ReadContext() *ReadContext {
	return &ReadContext{store: s}
}

// Fetch returns entities matching the query, ordered by the query's sort
// keys and then insertion order. Entities of descendant types are included.
//
// Returns an empty slice (not nil) if nothing matches.
func (r *ReadContext) Fetch(ctx context.Context, q queryir.Select) ([]ir.Entity, error) {
	if !r.store.Available() {
		return nil, NewUnavailableError()
	}
	if err := queryir.Validate(r.store.schema, q).Err(); err != nil {
		return nil, NewQueryError(q.From, err)
	}

	sqlText, params, err := querysql.NewSQLCompiler(r.store.schema).Compile(q)
	if err != nil {
		return nil, NewQueryError(q.From, err)
	}

	rows, err := r.store.reader.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, NewQueryError(q.From, err)
	}
	defer rows.Close()

	entities := []ir.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, NewQueryError(q.From, err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, NewQueryError(q.From, fmt.Errorf("iterate entities: %w", err))
	}

	if err := r.attachRelations(ctx, entities); err != nil {
		return nil, NewQueryError(q.From, err)
	}
	return entities, nil
}

// First returns the first entity matching the query.
func (r *ReadContext) First(ctx context.Context, q queryir.Select) (ir.Entity, bool, error) {
	q.Limit = 1
	entities, err := r.Fetch(ctx, q)
	if err != nil || len(entities) == 0 {
		return ir.Entity{}, false, err
	}
	return entities[0], true, nil
}

// Count returns the number of entities matching the query.
func (r *ReadContext) Count(ctx context.Context, q queryir.Select) (int64, error) {
	if !r.store.Available() {
		return 0, NewUnavailableError()
	}
	if err := queryir.Validate(r.store.schema, q).Err(); err != nil {
		return 0, NewQueryError(q.From, err)
	}

	sqlText, params, err := querysql.NewSQLCompiler(r.store.schema).CompileCount(q)
	if err != nil {
		return 0, NewQueryError(q.From, err)
	}

	var n int64
	if err := r.store.reader.QueryRowContext(ctx, sqlText, params...).Scan(&n); err != nil {
		return 0, NewQueryError(q.From, err)
	}
	return n, nil
}

// Get returns the entity with exactly the given type and key.
func (r *ReadContext) Get(ctx context.Context, ref ir.Ref) (ir.Entity, bool, error) {
	if !r.store.Available() {
		return ir.Entity{}, false, NewUnavailableError()
	}

	rows, err := r.store.reader.QueryContext(ctx, `
		SELECT entity, pk, fields, seq
		FROM entities
		WHERE entity = ? AND pk = ?
	`, ref.Type, ref.Key)
	if err != nil {
		return ir.Entity{}, false, NewQueryError(ref.Type, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ir.Entity{}, false, NewQueryError(ref.Type, err)
		}
		return ir.Entity{}, false, nil
	}
	e, err := scanEntity(rows)
	if err != nil {
		return ir.Entity{}, false, NewQueryError(ref.Type, err)
	}
	rows.Close()

	entities := []ir.Entity{e}
	if err := r.attachRelations(ctx, entities); err != nil {
		return ir.Entity{}, false, NewQueryError(ref.Type, err)
	}
	return entities[0], true, nil
}

func (r *ReadContext) attachRelations(ctx context.Context, entities []ir.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	refs := make([]ir.Ref, len(entities))
	for i, e := range entities {
		refs[i] = ir.Ref{Type: e.Type, Key: e.Key}
	}

	rels, err := loadRelations(ctx, r.store.reader, refs)
	if err != nil {
		return err
	}
	for i := range entities {
		entities[i].Relations = rels[refs[i]]
	}
	return nil
}

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// relationChunk bounds the row values bound per relation query.
const relationChunk = 400

// loadRelations returns, per entity, relation name -> ordered target keys.
func loadRelations(ctx context.Context, q querier, refs []ir.Ref) (map[ir.Ref]map[string][]string, error) {
	out := make(map[ir.Ref]map[string][]string, len(refs))

	for start := 0; start < len(refs); start += relationChunk {
		chunk := refs[start:min(start+relationChunk, len(refs))]

		values := make([]string, len(chunk))
		args := make([]any, 0, 2*len(chunk))
		for i, ref := range chunk {
			values[i] = "(?, ?)"
			args = append(args, ref.Type, ref.Key)
		}

		rows, err := q.QueryContext(ctx, `
			SELECT entity, pk, relation, target_pk
			FROM relations
			WHERE (entity, pk) IN (VALUES `+strings.Join(values, ", ")+`)
			ORDER BY entity, pk, relation, ordinal ASC
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("query relations: %w", err)
		}

		for rows.Next() {
			var ref ir.Ref
			var relation, target string
			if err := rows.Scan(&ref.Type, &ref.Key, &relation, &target); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan relation: %w", err)
			}
			if out[ref] == nil {
				out[ref] = make(map[string][]string)
			}
			out[ref][relation] = append(out[ref][relation], target)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate relations: %w", err)
		}
		rows.Close()
	}
	return out, nil
}
