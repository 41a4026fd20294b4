package store

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/queryir"
)

func selectAll(entity string) queryir.Select {
	return queryir.Select{From: entity}
}

func TestWriteContext_CommitIsVisible(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)

	rex := createTestEntity("Dog", "1", ir.IRObject{"id": ir.IRInt(1), "name": ir.IRString("Rex")})
	require.NoError(t, w.Save(ctx, rex))
	assert.Equal(t, int64(1), rex.Seq)

	// Not visible to readers before commit
	n, err := s.ReadContext().Count(ctx, selectAll("Dog"))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, w.Commit())

	got, ok, err := s.ReadContext().Get(ctx, ir.Ref{Type: "Dog", Key: "1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("Rex"), got.Fields["name"])
}

func TestWriteContext_DiscardRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Save(ctx, createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)})))
	require.NoError(t, w.Discard())

	n, err := s.ReadContext().Count(ctx, selectAll("Pet"))
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, w.Discard(), "second Discard is a no-op")
	assert.Error(t, w.Commit(), "commit after discard fails")
}

func TestWriteContext_UpdateKeepsSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seed(t, s,
		createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1), "name": ir.IRString("a")}),
		createTestEntity("Pet", "2", ir.IRObject{"id": ir.IRInt(2)}),
	)

	updated := createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1), "name": ir.IRString("b")})
	seed(t, s, updated)
	assert.Equal(t, int64(1), updated.Seq, "update keeps the original insertion seq")

	entities, err := s.ReadContext().Fetch(ctx, selectAll("Pet"))
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "1", entities[0].Key)
	assert.Equal(t, ir.IRString("b"), entities[0].Fields["name"])
}

func TestWriteContext_FindSeesPendingWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	defer w.Discard()

	_, ok, err := w.Find(ctx, "Pet", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Save(ctx, createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)})))

	e, ok, err := w.Find(ctx, "Pet", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Pet", e.Type)
}

func TestWriteContext_FindIncludesDescendants(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s, createTestEntity("Dog", "7", ir.IRObject{"id": ir.IRInt(7)}))

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	defer w.Discard()

	e, ok, err := w.Find(ctx, "Pet", "7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dog", e.Type)

	_, ok, err = w.Find(ctx, "Toy", "7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteContext_FindByKeysSkipsMissing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s,
		createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)}),
		createTestEntity("Dog", "2", ir.IRObject{"id": ir.IRInt(2)}),
	)

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	defer w.Discard()

	found, err := w.FindByKeys(ctx, "Pet", []string{"1", "2", "999"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "1", found[0].Key)
	assert.Equal(t, "2", found[1].Key)

	none, err := w.FindByKeys(ctx, "Pet", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteContext_SaveRejectsUnknownEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	defer w.Discard()

	err = w.Save(ctx, createTestEntity("Cat", "1", ir.IRObject{}))
	assert.ErrorContains(t, err, "unknown entity")
}

func TestWriteContext_RelationsAndCascade(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Save(ctx, createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)})))
	require.NoError(t, w.Save(ctx, createTestEntity("Toy", "ball", ir.IRObject{"sku": ir.IRString("ball")})))
	require.NoError(t, w.Save(ctx, createTestEntity("Toy", "rope", ir.IRObject{"sku": ir.IRString("rope")})))
	require.NoError(t, w.SetRelations(ctx, ir.Ref{Type: "Pet", Key: "1"}, "toys", []ir.Ref{
		{Type: "Toy", Key: "rope"},
		{Type: "Toy", Key: "ball"},
	}))
	require.NoError(t, w.Commit())

	pet, ok, err := s.ReadContext().Get(ctx, ir.Ref{Type: "Pet", Key: "1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"rope", "ball"}, pet.Relations["toys"], "relation order is preserved")

	w, err = s.NewWriteContext(ctx)
	require.NoError(t, err)
	deleted, err := w.Delete(ctx, ir.Ref{Type: "Toy", Key: "rope"})
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, w.Commit())

	pet, _, err = s.ReadContext().Get(ctx, ir.Ref{Type: "Pet", Key: "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ball"}, pet.Relations["toys"], "deleting a target removes the link")
}

func TestWriteContext_RelationTargetMustExist(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	defer w.Discard()

	require.NoError(t, w.Save(ctx, createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)})))
	err = w.SetRelations(ctx, ir.Ref{Type: "Pet", Key: "1"}, "toys", []ir.Ref{{Type: "Toy", Key: "ghost"}})
	assert.Error(t, err, "foreign keys reject dangling targets")
}

func TestWriteContext_DeleteMissingIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	deleted, err := w.Delete(ctx, ir.Ref{Type: "Pet", Key: "404"})
	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, w.Commit())
}

func TestWriteContext_BulkDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s,
		createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)}),
		createTestEntity("Pet", "2", ir.IRObject{"id": ir.IRInt(2)}),
		createTestEntity("Dog", "3", ir.IRObject{"id": ir.IRInt(3)}),
	)

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	n, err := w.BulkDelete(ctx, "Pet")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "bulk delete targets exactly one type")

	// Auto-committed: visible before the context is released
	count, err := s.ReadContext().Count(ctx, selectAll("Pet"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, w.Discard())

	count, err = s.ReadContext().Count(ctx, selectAll("Dog"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "discard does not undo a bulk delete")
}

func TestWriteContext_BulkDeleteRefusesPendingTx(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	defer w.Discard()

	require.NoError(t, w.Save(ctx, createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)})))
	_, err = w.BulkDelete(ctx, "Pet")
	assert.True(t, IsDeleteError(err), "got %v", err)
}

func TestWriteContext_ClosedStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.NewWriteContext(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Save(ctx, createTestEntity("Pet", "1", ir.IRObject{"id": ir.IRInt(1)})))

	require.NoError(t, s.Close())

	err = w.Commit()
	assert.True(t, IsStoreUnavailable(err), "got %v", err)
}

func TestWriteContext_SerialWriter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.NewWriteContext(ctx)
	require.NoError(t, err)

	acquired := make(chan *WriteContext)
	go func() {
		w, err := s.NewWriteContext(ctx)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- w
	}()

	select {
	case <-acquired:
		t.Fatal("second write context opened while the first was open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Commit())

	select {
	case second, ok := <-acquired:
		require.True(t, ok)
		require.NoError(t, second.Commit())
	case <-time.After(2 * time.Second):
		t.Fatal("second write context never opened")
	}

	stats := s.Stats()
	assert.Equal(t, 0, stats.OpenWriteContexts)
	assert.Equal(t, 1, stats.MaxOpenWriteContexts)
	assert.Equal(t, int64(2), stats.Commits)
}

func TestWriteContext_ConcurrentSavesAreSerialized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w, err := s.NewWriteContext(ctx)
			if !assert.NoError(t, err) {
				return
			}
			e := createTestEntity("Pet", strconv.Itoa(id), ir.IRObject{"id": ir.IRInt(id)})
			assert.NoError(t, w.Save(ctx, e))
			assert.NoError(t, w.Commit())
		}(i)
	}
	wg.Wait()

	n, err := s.ReadContext().Count(ctx, selectAll("Pet"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, 1, s.Stats().MaxOpenWriteContexts)
}
