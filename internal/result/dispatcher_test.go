package result

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSerialDispatcher_RunsInOrder(t *testing.T) {
	d := NewSerialDispatcher()

	var got []int
	for i := 0; i < 100; i++ {
		d.Dispatch(func() { got = append(got, i) })
	}
	d.Close()

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestSerialDispatcher_RunsAfterClose(t *testing.T) {
	d := NewSerialDispatcher()
	d.Close()
	d.Close()

	ran := make(chan struct{})
	d.Dispatch(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("callback dispatched after Close never ran")
	}
}

func TestDispatcherFunc(t *testing.T) {
	var calls int
	d := DispatcherFunc(func(fn func()) { calls++; fn() })

	ran := false
	d.Dispatch(func() { ran = true })
	assert.Equal(t, 1, calls)
	assert.True(t, ran)
}
