package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/queryir"
)

func seedPets(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	entities := []*ir.Entity{
		createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1), "name": ir.IRString("Tom"), "weight": ir.IRFloat(4.5)}),
		createTestEntity("Dog", "2", ir.IRObject{"id": ir.IRInt(2), "name": ir.IRString("Rex"), "weight": ir.IRFloat(30), "good": ir.IRBool(true)}),
		createTestEntity("Dog", "3", ir.IRObject{"id": ir.IRInt(3), "name": ir.IRString("Ace"), "good": ir.IRBool(false)}),
		createTestEntity("Toy", "ball", ir.IRObject{"sku": ir.IRString("ball"), "color": ir.IRString("red")}),
		createTestEntity("Toy", "rope", ir.IRObject{"sku": ir.IRString("rope"), "color": ir.IRString("blue")}),
	}
	for _, e := range entities {
		require.NoError(t, w.Save(ctx, e))
	}
	require.NoError(t, w.SetRelations(ctx, ir.Ref{Type: "Dog", Key: "2"}, "toys", []ir.Ref{{Type: "Toy", Key: "ball"}}))
	require.NoError(t, w.SetRelations(ctx, ir.Ref{Type: "Dog", Key: "3"}, "toys", []ir.Ref{{Type: "Toy", Key: "rope"}, {Type: "Toy", Key: "ball"}}))
	require.NoError(t, w.Commit())
}

func keys(entities []ir.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Key
	}
	return out
}

func TestFetch_InsertionOrderAndDescendants(t *testing.T) {
	s := createTestStore(t)
	seedPets(t, s)

	entities, err := s.ReadContext().Fetch(context.Background(), selectAll("Pet"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, keys(entities))
	assert.Equal(t, "Dog", entities[1].Type)

	dogs, err := s.ReadContext().Fetch(context.Background(), selectAll("Dog"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, keys(dogs))
}

func TestFetch_EmptyResultIsNotNil(t *testing.T) {
	s := createTestStore(t)

	entities, err := s.ReadContext().Fetch(context.Background(), selectAll("Toy"))
	require.NoError(t, err)
	assert.NotNil(t, entities)
	assert.Empty(t, entities)
}

func TestFetch_FilterAndSort(t *testing.T) {
	s := createTestStore(t)
	seedPets(t, s)
	ctx := context.Background()

	tests := []struct {
		name     string
		query    queryir.Select
		expected []string
	}{
		{
			name:     "equals string",
			query:    queryir.Select{From: "Pet", Filter: queryir.Equals{Field: "name", Value: ir.IRString("Rex")}},
			expected: []string{"2"},
		},
		{
			name:     "equals bool",
			query:    queryir.Select{From: "Dog", Filter: queryir.Equals{Field: "good", Value: ir.IRBool(false)}},
			expected: []string{"3"},
		},
		{
			name:     "absent field is null",
			query:    queryir.Select{From: "Pet", Filter: queryir.Equals{Field: "weight", Value: ir.IRNull{}}},
			expected: []string{"3"},
		},
		{
			name:     "compare float against int",
			query:    queryir.Select{From: "Pet", Filter: queryir.Compare{Field: "weight", Op: queryir.OpGt, Value: ir.IRInt(5)}},
			expected: []string{"2"},
		},
		{
			name:     "sort by name",
			query:    queryir.Select{From: "Pet", Sort: []queryir.SortKey{queryir.Asc("name")}},
			expected: []string{"3", "2", "1"},
		},
		{
			name:     "sort descending with limit",
			query:    queryir.Select{From: "Pet", Sort: []queryir.SortKey{queryir.Desc("id")}, Limit: 2},
			expected: []string{"3", "2"},
		},
		{
			name: "or",
			query: queryir.Select{From: "Pet", Filter: queryir.Or{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "id", Value: ir.IRInt(1)},
				queryir.Equals{Field: "id", Value: ir.IRInt(3)},
			}}},
			expected: []string{"1", "3"},
		},
		{
			name: "related",
			query: queryir.Select{From: "Pet", Filter: queryir.Related{
				Relation: "toys",
				Target:   queryir.In{Field: "sku", Values: []ir.IRValue{ir.IRString("rope")}},
			}},
			expected: []string{"3"},
		},
		{
			name:     "related any",
			query:    queryir.Select{From: "Pet", Filter: queryir.Related{Relation: "toys"}},
			expected: []string{"2", "3"},
		},
		{
			name:     "not related",
			query:    queryir.Select{From: "Pet", Filter: queryir.Not{Predicate: queryir.Related{Relation: "toys"}}},
			expected: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := s.ReadContext().Fetch(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, keys(entities))
		})
	}
}

func TestFetch_AttachesRelations(t *testing.T) {
	s := createTestStore(t)
	seedPets(t, s)

	entities, err := s.ReadContext().Fetch(context.Background(), selectAll("Dog"))
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, []string{"ball"}, entities[0].Relations["toys"])
	assert.Equal(t, []string{"rope", "ball"}, entities[1].Relations["toys"])
}

func TestFetch_InvalidQuery(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadContext().Fetch(context.Background(), queryir.Select{
		From:   "Pet",
		Filter: queryir.Equals{Field: "color", Value: ir.IRString("red")},
	})
	require.Error(t, err)
	assert.True(t, IsQueryError(err))
	assert.Equal(t, ErrCodeQuery, CodeOf(err))
}

func TestFirst(t *testing.T) {
	s := createTestStore(t)
	seedPets(t, s)
	ctx := context.Background()

	e, ok, err := s.ReadContext().First(ctx, queryir.Select{From: "Toy", Sort: []queryir.SortKey{queryir.Desc("sku")}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rope", e.Key)

	_, ok, err = s.ReadContext().First(ctx, queryir.Select{From: "Toy", Filter: queryir.Equals{Field: "color", Value: ir.IRString("green")}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCount(t *testing.T) {
	s := createTestStore(t)
	seedPets(t, s)

	n, err := s.ReadContext().Count(context.Background(), queryir.Select{From: "Pet", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "count ignores limit")
}

func TestGet_ExactType(t *testing.T) {
	s := createTestStore(t)
	seedPets(t, s)
	ctx := context.Background()

	_, ok, err := s.ReadContext().Get(ctx, ir.Ref{Type: "Pet", Key: "2"})
	require.NoError(t, err)
	assert.False(t, ok, "Get does not include descendants")

	e, ok, err := s.ReadContext().Get(ctx, ir.Ref{Type: "Dog", Key: "2"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.IRFloat(30), e.Fields["weight"])
}
