package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dbsync/internal/ir"
)

// testSchema is a small pet-shop schema with one inheritance chain and one
// to-many relation.
func testSchema() *ir.Schema {
	return ir.MustSchema(
		ir.EntitySchema{
			Name:       "Pet",
			PrimaryKey: "id",
			Fields: []ir.FieldSchema{
				{Name: "id", Type: ir.FieldInt, Required: true},
				{Name: "name", Type: ir.FieldString},
				{Name: "weight", Type: ir.FieldFloat},
			},
			Relations: []ir.RelationSchema{
				{Name: "toys", Target: "Toy", ToMany: true},
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
			Name:       "Toy",
			PrimaryKey: "sku",
			Fields: []ir.FieldSchema{
				{Name: "sku", Type: ir.FieldString, Required: true},
				{Name: "color", Type: ir.FieldString},
			},
		},
	)
}

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithSchema(testSchema())}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntity builds an entity with the given fields.
func createTestEntity(entity, key string, fields ir.IRObject) *ir.Entity {
	return &ir.Entity{Type: entity, Key: key, Fields: fields}
}

// seed saves entities in one committed write context.
func seed(t *testing.T, s *Store, entities ...*ir.Entity) {
	t.Helper()
	ctx := context.Background()
	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	for _, e := range entities {
		require.NoError(t, w.Save(ctx, e))
	}
	require.NoError(t, w.Commit())
}
