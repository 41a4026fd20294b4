package mapper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/store"
)

func testSchema() *ir.Schema {
	return ir.MustSchema(
		ir.EntitySchema{
			Name:       "Owner",
			PrimaryKey: "id",
			Fields: []ir.FieldSchema{
				{Name: "id", Key: "owner_id", Type: ir.FieldString},
				{Name: "name", Type: ir.FieldString, Required: true},
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
				{Name: "age", Type: ir.FieldFloat},
				{Name: "tags", Type: ir.FieldArray},
				{Name: "meta", Type: ir.FieldObject},
			},
			Relations: []ir.RelationSchema{
				{Name: "owner", Target: "Owner"},
			},
		},
		ir.EntitySchema{
			Name:   "Dog",
			Parent: "Pet",
			Fields: []ir.FieldSchema{
				{Name: "good", Type: ir.FieldBool},
			},
		},
	)
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithSchema(testSchema()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// mapAndCommit maps records in one write context; on error the context is
// discarded, as the coordinator does.
func mapAndCommit(t *testing.T, s *store.Store, entity string, records ...ir.Record) ([]ir.Entity, error) {
	t.Helper()
	ctx := context.Background()
	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)

	mapped, err := New(s.Schema()).MapBatch(ctx, w, entity, records)
	if err != nil {
		require.NoError(t, w.Discard())
		return nil, err
	}
	require.NoError(t, w.Commit())
	return mapped, nil
}

func fetchAll(t *testing.T, s *store.Store, entity string) []ir.Record {
	t.Helper()
	entities, err := s.ReadContext().Fetch(context.Background(), selectAll(entity))
	require.NoError(t, err)
	return New(s.Schema()).ExportAll(entities)
}
