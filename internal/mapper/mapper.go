package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/store"
)

// DefaultMaxDepth bounds how deeply nested relation records are mapped.
const DefaultMaxDepth = 32

// Writer is the subset of a write context the mapper needs.
// *store.WriteContext implements it.
type Writer interface {
	Find(ctx context.Context, entity, key string) (ir.Entity, bool, error)
	Save(ctx context.Context, e *ir.Entity) error
	SetRelations(ctx context.Context, from ir.Ref, relation string, targets []ir.Ref) error
}

var _ Writer = (*store.WriteContext)(nil)

// EntityMapper maps records onto entities of a schema.
// It holds no state between calls and is safe for concurrent use.
type EntityMapper struct {
	schema   *ir.Schema
	maxDepth int
	logger   *slog.Logger
}

// Option configures an EntityMapper.
type Option func(*EntityMapper)

// WithMaxDepth sets the nested mapping depth limit.
func WithMaxDepth(depth int) Option {
	return func(m *EntityMapper) {
		if depth > 0 {
			m.maxDepth = depth
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *EntityMapper) {
		m.logger = logger
	}
}

// New creates an EntityMapper for the schema.
func New(schema *ir.Schema, opts ...Option) *EntityMapper {
	m := &EntityMapper{
		schema:   schema,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schema returns the mapper's schema.
func (m *EntityMapper) Schema() *ir.Schema {
	return m.schema
}

// MapBatch creates or updates one entity per record, in order. Records
// sharing a primary key update the same entity, last write wins.
func (m *EntityMapper) MapBatch(ctx context.Context, w Writer, entity string, records []ir.Record) ([]ir.Entity, error) {
	es, ok := m.schema.Lookup(entity)
	if !ok {
		return nil, store.NewMappingError(entity, "", "unknown entity")
	}

	mapped := make([]ir.Entity, 0, len(records))
	for i, rec := range records {
		e, err := m.mapRecord(ctx, w, es, rec, 0)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		mapped = append(mapped, e)
	}

	m.logger.Debug("mapped batch", "entity", entity, "records", len(records))
	return mapped, nil
}

// MapOne maps a single record. It behaves exactly like a batch of one.
func (m *EntityMapper) MapOne(ctx context.Context, w Writer, entity string, record ir.Record) (ir.Entity, error) {
	mapped, err := m.MapBatch(ctx, w, entity, []ir.Record{record})
	if err != nil {
		return ir.Entity{}, err
	}
	return mapped[0], nil
}

func (m *EntityMapper) mapRecord(ctx context.Context, w Writer, es ir.EntitySchema, rec ir.Record, depth int) (ir.Entity, error) {
	if depth > m.maxDepth {
		return ir.Entity{}, store.NewMappingError(es.Name, "", fmt.Sprintf("nesting deeper than %d", m.maxDepth))
	}

	pkField := es.KeyField()
	raw, present := rec[pkField.RemoteKey()]
	if !present || isNull(raw) {
		return ir.Entity{}, store.NewMappingError(es.Name, "", fmt.Sprintf("missing primary key %q", pkField.RemoteKey()))
	}
	keyValue, key, err := ir.CanonicalKey(pkField.Type, raw)
	if err != nil {
		return ir.Entity{}, mappingError(es.Name, "", fmt.Sprintf("invalid primary key %q", pkField.RemoteKey()), err)
	}

	e, found, err := w.Find(ctx, es.Name, key)
	if err != nil {
		return ir.Entity{}, writeError(es.Name, key, err)
	}
	if found {
		// An existing descendant keeps its own type and fields.
		if actual, ok := m.schema.Lookup(e.Type); ok {
			es = actual
		}
	} else {
		e = ir.Entity{Type: es.Name, Key: key, Fields: ir.IRObject{}}
	}

	if err := m.assignFields(&e, es, rec, keyValue, !found); err != nil {
		return ir.Entity{}, err
	}

	if err := w.Save(ctx, &e); err != nil {
		return ir.Entity{}, writeError(e.Type, key, err)
	}

	if err := m.assignRelations(ctx, w, &e, es, rec, depth); err != nil {
		return ir.Entity{}, err
	}
	return e, nil
}

// assignFields copies mapped attributes from rec onto e. Absent keys keep
// the previous value; null clears an optional field.
func (m *EntityMapper) assignFields(e *ir.Entity, es ir.EntitySchema, rec ir.Record, keyValue ir.IRValue, inserting bool) error {
	for _, f := range es.Fields {
		if f.Name == es.PrimaryKey {
			e.Fields[f.Name] = keyValue
			continue
		}

		v, present := rec[f.RemoteKey()]
		if !present {
			if inserting && f.Required {
				return store.NewMappingError(e.Type, e.Key, fmt.Sprintf("missing required field %q", f.RemoteKey()))
			}
			continue
		}
		if isNull(v) {
			if f.Required {
				return store.NewMappingError(e.Type, e.Key, fmt.Sprintf("required field %q is null", f.RemoteKey()))
			}
			delete(e.Fields, f.Name)
			continue
		}

		iv, err := ir.Coerce(f.Type, v)
		if err != nil {
			return mappingError(e.Type, e.Key, fmt.Sprintf("field %q", f.RemoteKey()), err)
		}
		e.Fields[f.Name] = iv
	}
	return nil
}

func (m *EntityMapper) assignRelations(ctx context.Context, w Writer, e *ir.Entity, es ir.EntitySchema, rec ir.Record, depth int) error {
	for _, r := range es.Relations {
		v, present := rec[r.RemoteKey()]
		if !present {
			continue
		}
		target, ok := m.schema.Lookup(r.Target)
		if !ok {
			return store.NewMappingError(e.Type, e.Key, fmt.Sprintf("relation %q targets unknown entity %q", r.Name, r.Target))
		}

		var items []any
		switch {
		case isNull(v):
		case r.ToMany:
			list, ok := asList(v)
			if !ok {
				return store.NewMappingError(e.Type, e.Key, fmt.Sprintf("relation %q expects a list, got %T", r.RemoteKey(), v))
			}
			items = list
		default:
			if _, isList := asList(v); isList {
				return store.NewMappingError(e.Type, e.Key, fmt.Sprintf("relation %q expects a single value, got a list", r.RemoteKey()))
			}
			items = []any{v}
		}

		refs := make([]ir.Ref, 0, len(items))
		for i, item := range items {
			ref, err := m.resolveTarget(ctx, w, target, item, depth)
			if err != nil {
				return fmt.Errorf("relation %q [%d]: %w", r.RemoteKey(), i, err)
			}
			refs = append(refs, ref)
		}

		from := ir.Ref{Type: e.Type, Key: e.Key}
		if err := w.SetRelations(ctx, from, r.Name, refs); err != nil {
			return writeError(e.Type, e.Key, err)
		}

		if e.Relations == nil {
			e.Relations = make(map[string][]string)
		}
		if len(refs) == 0 {
			delete(e.Relations, r.Name)
			continue
		}
		targetKeys := make([]string, len(refs))
		for i, ref := range refs {
			targetKeys[i] = ref.Key
		}
		e.Relations[r.Name] = targetKeys
	}
	return nil
}

// resolveTarget maps a nested record, or looks up a referenced key, in the
// same write context.
func (m *EntityMapper) resolveTarget(ctx context.Context, w Writer, target ir.EntitySchema, item any, depth int) (ir.Ref, error) {
	if isNull(item) {
		return ir.Ref{}, store.NewMappingError(target.Name, "", "null element in relation list")
	}
	if nested, ok := asRecord(item); ok {
		e, err := m.mapRecord(ctx, w, target, nested, depth+1)
		if err != nil {
			return ir.Ref{}, err
		}
		return ir.Ref{Type: e.Type, Key: e.Key}, nil
	}

	_, key, err := ir.CanonicalKey(target.KeyField().Type, item)
	if err != nil {
		return ir.Ref{}, mappingError(target.Name, "", "invalid relationship key", err)
	}
	e, found, err := w.Find(ctx, target.Name, key)
	if err != nil {
		return ir.Ref{}, writeError(target.Name, key, err)
	}
	if !found {
		return ir.Ref{}, store.NewMappingError(target.Name, key, "unresolved relationship")
	}
	return ir.Ref{Type: e.Type, Key: e.Key}, nil
}

// NormalizeKeys converts caller-supplied primary keys to canonical key
// strings through the entity's key field type. Duplicates are dropped,
// first occurrence wins.
func (m *EntityMapper) NormalizeKeys(entity string, ids []any) ([]string, error) {
	es, ok := m.schema.Lookup(entity)
	if !ok {
		return nil, store.NewMappingError(entity, "", "unknown entity")
	}
	pk := es.KeyField()

	keys := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, key, err := ir.CanonicalKey(pk.Type, id)
		if err != nil {
			return nil, mappingError(entity, fmt.Sprint(id), "invalid primary key", err)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, nil
}

func mappingError(entity, key, message string, cause error) *store.Error {
	return &store.Error{Code: store.ErrCodeMapping, Message: message, Entity: entity, Key: key, Err: cause}
}

// writeError keeps store errors (such as STORE_UNAVAILABLE) intact and
// reports anything else as a mapping failure.
func writeError(entity, key string, err error) error {
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	return mappingError(entity, key, "write failed", err)
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(ir.IRNull)
	return ok
}

func asRecord(v any) (ir.Record, bool) {
	switch r := v.(type) {
	case ir.Record:
		return r, true
	case map[string]any:
		return ir.Record(r), true
	case ir.IRObject:
		return ir.Record(ir.ToGo(r).(map[string]any)), true
	default:
		return nil, false
	}
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []ir.Record:
		out := make([]any, len(l))
		for i, r := range l {
			out[i] = r
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, r := range l {
			out[i] = r
		}
		return out, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case ir.IRArray:
		return ir.ToGo(l).([]any), true
	default:
		return nil, false
	}
}
