package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dbsync/internal/ir"
)

var errContextClosed = errors.New("write context already committed or discarded")

// WriteContext is a private, transactional scratch space over the writer
// connection.
//
// The transaction begins lazily on the first write and is committed or
// discarded exactly once. Entities read through a WriteContext see its own
// uncommitted changes. A WriteContext is not safe for concurrent use; it
// belongs to the operation that opened it.
type WriteContext struct {
	store *Store
	conn  *sql.Conn
	tx    *sql.Tx
	done  bool
}

// NewWriteContext acquires the writer connection. It blocks while another
// write context is open.
func (s *Store) NewWriteContext(ctx context.Context) (*WriteContext, error) {
	if !s.Available() {
		return nil, NewUnavailableError()
	}

	conn, err := s.writer.Conn(ctx)
	if err != nil {
		if !s.Available() {
			return nil, NewUnavailableError()
		}
		return nil, fmt.Errorf("new write context: %w", err)
	}
	s.trackOpen()

	return &WriteContext{store: s, conn: conn}, nil
}

// Schema returns the store's entity schema.
func (w *WriteContext) Schema() *ir.Schema {
	return w.store.schema
}

// execer is satisfied by both *sql.Tx and *sql.Conn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// begin starts the transaction on first use. Accepted writes are not
// cancellable, so the transaction is detached from ctx cancellation.
func (w *WriteContext) begin(ctx context.Context) (execer, error) {
	if w.done {
		return nil, errContextClosed
	}
	if !w.store.Available() {
		return nil, NewUnavailableError()
	}
	if w.tx == nil {
		tx, err := w.conn.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return nil, fmt.Errorf("begin tx: %w", err)
		}
		w.tx = tx
	}
	return w.tx, nil
}

// reader returns the transaction when one is open, otherwise the bare
// connection, so reads see this context's own pending writes.
func (w *WriteContext) reader() (execer, error) {
	if w.done {
		return nil, errContextClosed
	}
	if !w.store.Available() {
		return nil, NewUnavailableError()
	}
	if w.tx != nil {
		return w.tx, nil
	}
	return w.conn, nil
}

// Find returns the entity of the given type, or of a descendant type, with
// the canonical key. An exact type match wins over a descendant.
func (w *WriteContext) Find(ctx context.Context, entity, key string) (ir.Entity, bool, error) {
	q, err := w.reader()
	if err != nil {
		return ir.Entity{}, false, err
	}

	family := w.family(entity)
	args := make([]any, 0, len(family)+2)
	for _, name := range family {
		args = append(args, name)
	}
	args = append(args, key, entity)

	row := q.QueryRowContext(ctx, `
		SELECT entity, pk, fields, seq
		FROM entities
		WHERE entity IN (`+placeholders(len(family))+`) AND pk = ?
		ORDER BY (entity = ?) DESC, seq ASC
		LIMIT 1
	`, args...)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, false, nil
	}
	if err != nil {
		return ir.Entity{}, false, fmt.Errorf("find %s/%s: %w", entity, key, err)
	}

	rels, err := loadRelations(ctx, q, []ir.Ref{{Type: e.Type, Key: e.Key}})
	if err != nil {
		return ir.Entity{}, false, fmt.Errorf("find %s/%s: %w", entity, key, err)
	}
	e.Relations = rels[ir.Ref{Type: e.Type, Key: e.Key}]
	return e, true, nil
}

// FindByKeys returns the entities of the given type family whose keys are in
// keys, in insertion order. Missing keys are skipped.
func (w *WriteContext) FindByKeys(ctx context.Context, entity string, keys []string) ([]ir.Entity, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	q, err := w.reader()
	if err != nil {
		return nil, err
	}

	family := w.family(entity)
	args := make([]any, 0, len(family)+len(keys))
	for _, name := range family {
		args = append(args, name)
	}
	for _, k := range keys {
		args = append(args, k)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT entity, pk, fields, seq
		FROM entities
		WHERE entity IN (`+placeholders(len(family))+`) AND pk IN (`+placeholders(len(keys))+`)
		ORDER BY seq ASC, pk COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s by keys: %w", entity, err)
	}
	defer rows.Close()

	var entities []ir.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", entity, err)
	}
	return entities, nil
}

// Save inserts the entity or updates its fields in place. A new entity is
// stamped with the next insertion sequence; an existing one keeps its seq.
// Save sets e.Seq to the stored value.
func (w *WriteContext) Save(ctx context.Context, e *ir.Entity) error {
	if _, ok := w.store.schema.Lookup(e.Type); !ok {
		return fmt.Errorf("save: unknown entity %q", e.Type)
	}
	if e.Key == "" {
		return fmt.Errorf("save %s: empty key", e.Type)
	}
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}

	fields, err := marshalFields(e.Fields)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", e.Type, e.Key, err)
	}

	// ON CONFLICT DO UPDATE, not INSERT OR REPLACE: a replace would delete
	// the row first and cascade away its relations.
	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO entities (entity, pk, fields, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity, pk) DO UPDATE SET fields = excluded.fields
		RETURNING seq
	`, e.Type, e.Key, fields, w.store.nextSeq()).Scan(&seq)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", e.Type, e.Key, err)
	}
	e.Seq = seq
	return nil
}

// SetRelations replaces the targets of one relation of from, preserving the
// given order. An empty targets slice clears the relation. Every target must
// already be saved in this context.
func (w *WriteContext) SetRelations(ctx context.Context, from ir.Ref, relation string, targets []ir.Ref) error {
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relations WHERE entity = ? AND pk = ? AND relation = ?
	`, from.Type, from.Key, relation); err != nil {
		return fmt.Errorf("set relation %s.%s: %w", from.Type, relation, err)
	}

	for i, t := range targets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relations (entity, pk, relation, ordinal, target_entity, target_pk)
			VALUES (?, ?, ?, ?, ?, ?)
		`, from.Type, from.Key, relation, i, t.Type, t.Key); err != nil {
			return fmt.Errorf("set relation %s.%s -> %s/%s: %w", from.Type, relation, t.Type, t.Key, err)
		}
	}
	return nil
}

// Delete removes one entity and every relation touching it. Returns false
// when the entity did not exist.
func (w *WriteContext) Delete(ctx context.Context, ref ir.Ref) (bool, error) {
	tx, err := w.begin(ctx)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM entities WHERE entity = ? AND pk = ?
	`, ref.Type, ref.Key)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", ref.Type, ref.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: rows affected: %w", ref.Type, ref.Key, err)
	}
	return n > 0, nil
}

// BulkDelete removes every entity of exactly the given type without
// materialising them. It auto-commits independently of the context's
// transaction and therefore refuses to run while one is pending.
func (w *WriteContext) BulkDelete(ctx context.Context, entity string) (int64, error) {
	if w.done {
		return 0, errContextClosed
	}
	if !w.store.Available() {
		return 0, NewUnavailableError()
	}
	if w.tx != nil {
		return 0, NewDeleteError(entity, errors.New("bulk delete inside a pending transaction"))
	}

	res, err := w.conn.ExecContext(context.WithoutCancel(ctx), `
		DELETE FROM entities WHERE entity = ?
	`, entity)
	if err != nil {
		return 0, NewDeleteError(entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewDeleteError(entity, err)
	}
	return n, nil
}

// Commit commits pending writes and releases the writer connection.
// Committing a context with no writes is a no-op success.
func (w *WriteContext) Commit() (err error) {
	if w.done {
		return errContextClosed
	}
	defer func() { w.release(err == nil) }()

	if w.tx == nil {
		return nil
	}
	if !w.store.Available() {
		_ = w.tx.Rollback()
		return NewUnavailableError()
	}
	if err := w.tx.Commit(); err != nil {
		return NewCommitError(err)
	}
	return nil
}

// Discard rolls back pending writes and releases the writer connection.
// Discard after Commit is a no-op.
func (w *WriteContext) Discard() error {
	if w.done {
		return nil
	}
	defer w.release(false)

	if w.tx == nil {
		return nil
	}
	if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("discard: %w", err)
	}
	return nil
}

func (w *WriteContext) release(committed bool) {
	w.done = true
	w.tx = nil
	// Untrack first: the next context may open as soon as the connection
	// returns to the pool.
	w.store.trackClose(committed)
	_ = w.conn.Close()
}

// family returns the entity and its descendant types, or just the entity
// when the schema does not know it.
func (w *WriteContext) family(entity string) []string {
	if f := w.store.schema.Family(entity); len(f) > 0 {
		return f
	}
	return []string{entity}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
