package storecore

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakIndexGetSetHas(t *testing.T) {
	idx := NewWeakIndex[string, int]("test", "item", nil)
	v := 42
	idx.Set("a", &v)

	got, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, *got)
	assert.True(t, idx.Has("a"))
	assert.False(t, idx.Has("missing"))
}

func TestWeakIndexGetOrSet(t *testing.T) {
	idx := NewWeakIndex[string, int]("test", "item", nil)
	calls := 0
	build := func() *int {
		calls++
		v := 7
		return &v
	}

	first, loaded := idx.GetOrSet("k", build)
	assert.False(t, loaded)
	second, loaded := idx.GetOrSet("k", build)
	assert.True(t, loaded)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestWeakIndexDeleteAndClear(t *testing.T) {
	idx := NewWeakIndex[string, int]("test", "item", nil)
	v := 1
	idx.Set("a", &v)
	idx.Delete("a")
	assert.False(t, idx.Has("a"))

	idx.Set("b", &v)
	idx.Clear()
	assert.Equal(t, 0, idx.Len())
}

// A value with no remaining external references is eventually reclaimed and
// its index entry dropped (§8 testable property: finalization).
func TestWeakIndexReclamation(t *testing.T) {
	idx := NewWeakIndex[string, int]("test", "item", nil)

	func() {
		v := 99
		idx.Set("a", &v)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		if !idx.Has("a") {
			return
		}
	}
	t.Fatal("weak index entry was never reclaimed after its value went out of scope")
}

// set/delete/clear are emitted synchronously enough to observe via polling
// the bus's own dispatch loop (§2: the index "emits set/delete/finalize/clear").
func TestWeakIndexEmitsSetDeleteClear(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	idx := NewWeakIndex[string, int]("test", "item", bus)

	var sets, deletes, clears int32
	bus.On(EvIndexSet, func(ev Event) { atomic.AddInt32(&sets, 1) })
	bus.On(EvIndexDelete, func(ev Event) { atomic.AddInt32(&deletes, 1) })
	bus.On(EvIndexClear, func(ev Event) { atomic.AddInt32(&clears, 1) })

	v := 1
	idx.Set("a", &v)
	idx.Delete("a")
	idx.Set("b", &v)
	idx.Clear()

	waitForCount(t, &sets, 2)
	waitForCount(t, &deletes, 1)
	waitForCount(t, &clears, 1)
}

// A lazily-detected dangling entry (observed via Get, not the runtime
// cleanup callback) also reports finalize for its key.
func TestWeakIndexLazyDetectionEmitsFinalize(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	idx := NewWeakIndex[string, int]("test", "item", bus)

	var finalizes int32
	bus.On(EvIndexFinalize, func(ev Event) {
		if ev.ID == "a" {
			atomic.AddInt32(&finalizes, 1)
		}
	})

	func() {
		v := 1
		idx.Set("a", &v)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		idx.Get("a") // triggers lazy detection once the value is reclaimed
		if atomic.LoadInt32(&finalizes) > 0 {
			return
		}
	}
	t.Fatal("finalize event was never observed for a lazily-detected dangling entry")
}

func waitForCount(t *testing.T, n *int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(n) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected count >= %d, got %d", want, atomic.LoadInt32(n))
}
