package provider

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/result"
	"github.com/roach88/dbsync/internal/store"
)

func testSchema() *ir.Schema {
	return ir.MustSchema(
		ir.EntitySchema{
			Name:       "Owner",
			PrimaryKey: "id",
			Fields: []ir.FieldSchema{
				{Name: "id", Type: ir.FieldString},
				{Name: "name", Type: ir.FieldString},
			},
			Relations: []ir.RelationSchema{
				{Name: "pets", Target: "Pet", ToMany: true},
			},
		},
		ir.EntitySchema{
			Name:       "Pet",
			PrimaryKey: "id",
			Fields: []ir.FieldSchema{
				{Name: "id", Type: ir.FieldInt},
				{Name: "name", Type: ir.FieldString},
			},
		},
		ir.EntitySchema{
			Name:   "Dog",
			Parent: "Pet",
			Fields: []ir.FieldSchema{
				{Name: "good", Type: ir.FieldBool},
			},
		},
		ir.EntitySchema{
			Name:       "Counter",
			PrimaryKey: "id",
			Fields: []ir.FieldSchema{
				{Name: "id", Type: ir.FieldString},
				{Name: "n", Type: ir.FieldInt},
			},
		},
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestProvider opens a file-backed store and a provider over it.
func createTestProvider(t *testing.T, opts ...Option) (*Provider, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "provider.db"), store.WithSchema(testSchema()))
	require.NoError(t, err)

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	p := New(s, opts...)
	t.Cleanup(func() {
		p.Close()
		s.Close()
	})
	return p, s
}

// wait blocks until ch settles and returns its failure.
func wait(t *testing.T, ch *result.Channel) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := ch.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "channel did not settle")
	return err
}

func mustMap(t *testing.T, p *Provider, entity string, records ...ir.Record) {
	t.Helper()
	require.NoError(t, wait(t, p.MapBatch(entity, records)))
}

func names(records []ir.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r["name"]
	}
	return out
}
