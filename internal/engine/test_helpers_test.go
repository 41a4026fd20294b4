package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/store"
)

func counterSchema() *ir.Schema {
	return ir.MustSchema(ir.EntitySchema{
		Name:       "Counter",
		PrimaryKey: "id",
		Fields: []ir.FieldSchema{
			{Name: "id", Type: ir.FieldString, Required: true},
			{Name: "n", Type: ir.FieldInt},
			{Name: "log", Type: ir.FieldArray},
		},
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"), store.WithSchema(counterSchema()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// startEngine runs e in the background and stops it when the test ends.
func startEngine(t *testing.T, e *Engine) {
	t.Helper()
	go func() { _ = e.Run(context.Background()) }()
	t.Cleanup(func() {
		e.Stop()
		select {
		case <-e.Done():
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})
}

// submitAndWait submits op and blocks until it completes.
func submitAndWait(t *testing.T, e *Engine, kind Kind, action Action) error {
	t.Helper()
	done := make(chan error, 1)
	require.True(t, e.Submit(NewOperation(kind, "Counter", action, func(err error) { done <- err })))
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not complete")
		return nil
	}
}

func saveCounter(id string, n int64) Action {
	return func(ctx context.Context, w *store.WriteContext) error {
		return w.Save(ctx, &ir.Entity{
			Type:   "Counter",
			Key:    id,
			Fields: ir.IRObject{"id": ir.IRString(id), "n": ir.IRInt(n)},
		})
	}
}

func getCounter(t *testing.T, s *store.Store, id string) (ir.Entity, bool) {
	t.Helper()
	e, ok, err := s.ReadContext().Get(context.Background(), ir.Ref{Type: "Counter", Key: id})
	require.NoError(t, err)
	return e, ok
}
