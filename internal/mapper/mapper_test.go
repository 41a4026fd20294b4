package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/queryir"
	"github.com/roach88/dbsync/internal/store"
)

func selectAll(entity string) queryir.Select {
	return queryir.Select{From: entity}
}

func TestMapOne_InsertAndExport(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Pet", ir.Record{"id": 1, "name": "Rex", "unknown": "ignored"})
	require.NoError(t, err)

	assert.Equal(t, []ir.Record{{"id": int64(1), "name": "Rex"}}, fetchAll(t, s, "Pet"))
}

func TestMapBatch_UpdateByPrimaryKey(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Pet", ir.Record{"id": 1, "name": "Rex", "age": 3.5})
	require.NoError(t, err)

	// Absent keys keep their value, null clears an optional field
	_, err = mapAndCommit(t, s, "Pet", ir.Record{"id": 1.0, "name": nil, "tags": []any{"a"}})
	require.NoError(t, err)

	assert.Equal(t, []ir.Record{{"id": int64(1), "age": 3.5, "tags": []any{"a"}}}, fetchAll(t, s, "Pet"))
}

func TestMapBatch_DuplicateKeysLastWins(t *testing.T) {
	s := createTestStore(t)

	mapped, err := mapAndCommit(t, s, "Pet",
		ir.Record{"id": 1, "name": "first"},
		ir.Record{"id": "1", "name": "second"},
	)
	require.NoError(t, err)
	require.Len(t, mapped, 2)
	assert.Equal(t, mapped[0].Key, mapped[1].Key)

	assert.Equal(t, []ir.Record{{"id": int64(1), "name": "second"}}, fetchAll(t, s, "Pet"))
}

func TestMapBatch_CoercesFieldTypes(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Pet", ir.Record{
		"id":   int64(4),
		"age":  2,
		"meta": map[string]any{"chip": "A1", "vaccinated": true},
	})
	require.NoError(t, err)

	pets := fetchAll(t, s, "Pet")
	require.Len(t, pets, 1)
	assert.Equal(t, float64(2), pets[0]["age"], "float fields export as float64 even when integral")
	assert.Equal(t, map[string]any{"chip": "A1", "vaccinated": true}, pets[0]["meta"])
}

func TestMapBatch_MappingErrors(t *testing.T) {
	tests := []struct {
		name     string
		entity   string
		record   ir.Record
		contains string
	}{
		{"missing primary key", "Pet", ir.Record{"name": "Rex"}, `missing primary key "id"`},
		{"null primary key", "Pet", ir.Record{"id": nil}, "missing primary key"},
		{"bad primary key", "Pet", ir.Record{"id": "abc"}, "invalid primary key"},
		{"type mismatch", "Pet", ir.Record{"id": 1, "name": 42}, `field "name"`},
		{"missing required field", "Owner", ir.Record{"owner_id": "a"}, `missing required field "name"`},
		{"required field null", "Owner", ir.Record{"owner_id": "a", "name": nil}, `required field "name" is null`},
		{"remote key used for primary key", "Owner", ir.Record{"id": "a", "name": "Ann"}, `missing primary key "owner_id"`},
		{"unknown entity", "Cat", ir.Record{"id": 1}, "unknown entity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			_, err := mapAndCommit(t, s, tt.entity, tt.record)
			require.Error(t, err)
			assert.True(t, store.IsMappingError(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestMapBatch_AllOrNothing(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Pet",
		ir.Record{"id": 1, "name": "ok"},
		ir.Record{"name": "no key"},
		ir.Record{"id": 3, "name": "never reached"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")

	assert.Empty(t, fetchAll(t, s, "Pet"), "nothing from a failed batch is committed")
}

func TestMapBatch_NestedRelations(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Owner", ir.Record{
		"owner_id": "ann",
		"name":     "Ann",
		"pets": []any{
			map[string]any{"id": 1, "name": "Rex"},
			map[string]any{"id": 2, "name": "Tom"},
		},
	})
	require.NoError(t, err)

	owners := fetchAll(t, s, "Owner")
	require.Len(t, owners, 1)
	assert.Equal(t, ir.Record{"id": "ann", "name": "Ann", "pets": []any{int64(1), int64(2)}}, owners[0])
	assert.Len(t, fetchAll(t, s, "Pet"), 2)
}

func TestMapBatch_RelationByKey(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Owner", ir.Record{"owner_id": "ann", "name": "Ann"})
	require.NoError(t, err)

	_, err = mapAndCommit(t, s, "Pet", ir.Record{"id": 1, "owner": "ann"})
	require.NoError(t, err)

	pets := fetchAll(t, s, "Pet")
	require.Len(t, pets, 1)
	assert.Equal(t, "ann", pets[0]["owner"])

	// Clearing a to-one relation
	_, err = mapAndCommit(t, s, "Pet", ir.Record{"id": 1, "owner": nil})
	require.NoError(t, err)
	pets = fetchAll(t, s, "Pet")
	assert.NotContains(t, pets[0], "owner")
}

func TestMapBatch_RelationResolvesWithinBatch(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Pet",
		ir.Record{"id": 1, "name": "Rex"},
		ir.Record{"id": 2, "name": "Tom"},
	)
	require.NoError(t, err)

	_, err = mapAndCommit(t, s, "Owner", ir.Record{"owner_id": "ann", "name": "Ann", "pets": []any{2, 1}})
	require.NoError(t, err)

	owners := fetchAll(t, s, "Owner")
	assert.Equal(t, []any{int64(2), int64(1)}, owners[0]["pets"], "to-many keeps the given order")
}

func TestMapBatch_UnresolvedRelationship(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Pet", ir.Record{"id": 1, "owner": "nobody"})
	require.Error(t, err)
	assert.True(t, store.IsMappingError(err))
	assert.Contains(t, err.Error(), "unresolved relationship")
	assert.Empty(t, fetchAll(t, s, "Pet"))
}

func TestMapBatch_RelationShapeErrors(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Pet", ir.Record{"id": 1, "owner": []any{"a"}})
	assert.ErrorContains(t, err, "expects a single value")

	_, err = mapAndCommit(t, s, "Owner", ir.Record{"owner_id": "a", "name": "A", "pets": 1})
	assert.ErrorContains(t, err, "expects a list")
}

func TestMapBatch_DepthLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	record := ir.Record{
		"owner_id": "a",
		"name":     "A",
		"pets": []any{map[string]any{
			"id": 1,
			"owner": map[string]any{
				"owner_id": "b",
				"name":     "B",
			},
		}},
	}

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	defer w.Discard()

	_, err = New(s.Schema(), WithMaxDepth(1)).MapOne(ctx, w, "Owner", record)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting deeper than 1")

	_, err = New(s.Schema()).MapOne(ctx, w, "Owner", record)
	assert.NoError(t, err)
}

func TestMapBatch_UpdatesExistingDescendant(t *testing.T) {
	s := createTestStore(t)

	_, err := mapAndCommit(t, s, "Dog", ir.Record{"id": 5, "name": "Rex", "good": true})
	require.NoError(t, err)

	mapped, err := mapAndCommit(t, s, "Pet", ir.Record{"id": 5, "name": "Rex II", "good": false})
	require.NoError(t, err)
	assert.Equal(t, "Dog", mapped[0].Type)

	dogs := fetchAll(t, s, "Dog")
	require.Len(t, dogs, 1)
	assert.Equal(t, "Rex II", dogs[0]["name"])
	assert.Equal(t, false, dogs[0]["good"])
}

func TestNormalizeKeys(t *testing.T) {
	m := New(testSchema())

	keys, err := m.NormalizeKeys("Pet", []any{1, "2", 2.0, int64(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, keys)

	keys, err = m.NormalizeKeys("Pet", nil)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = m.NormalizeKeys("Pet", []any{"x"})
	assert.True(t, store.IsMappingError(err))

	_, err = m.NormalizeKeys("Cat", []any{1})
	assert.True(t, store.IsMappingError(err))
}

func TestExport_UnknownEntity(t *testing.T) {
	m := New(testSchema())

	rec := m.Export(ir.Entity{Type: "Ghost", Fields: ir.IRObject{"a": ir.IRInt(1)}})
	assert.Equal(t, ir.Record{"a": int64(1)}, rec)
}

func TestExport_EmptyToMany(t *testing.T) {
	m := New(testSchema())

	rec := m.Export(ir.Entity{Type: "Owner", Key: "a", Fields: ir.IRObject{"id": ir.IRString("a"), "name": ir.IRString("A")}})
	assert.Equal(t, ir.Record{"id": "a", "name": "A", "pets": []any{}}, rec)
}
