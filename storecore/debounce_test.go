package storecore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerZeroTimeoutDispatchesImmediately(t *testing.T) {
	d := NewDebouncer[int](0)
	ch := d.Run(func() (int, error) { return 7, nil })
	res := <-ch
	assert.Equal(t, 7, res.Value)
	assert.NoError(t, res.Err)
}

// Calls arriving within the coalescing window collapse to a single dispatch
// of the most recently registered fn; every caller observes that result
// ("drop-prior", §9).
func TestDebouncerDropPriorCoalescesToLastCall(t *testing.T) {
	d := NewDebouncer[string](50)

	var dispatched []string
	var mu sync.Mutex
	mkCall := func(label string) func() (string, error) {
		return func() (string, error) {
			mu.Lock()
			dispatched = append(dispatched, label)
			mu.Unlock()
			return label, nil
		}
	}

	ch1 := d.Run(mkCall("first"))
	ch2 := d.Run(mkCall("second"))
	ch3 := d.Run(mkCall("third"))

	r1 := <-ch1
	r2 := <-ch2
	r3 := <-ch3

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third"}, dispatched, "only the last registered call should ever run")
	assert.Equal(t, "third", r1.Value)
	assert.Equal(t, "third", r2.Value)
	assert.Equal(t, "third", r3.Value)
}

func TestDebouncerSeparatedCallsBothDispatch(t *testing.T) {
	d := NewDebouncer[int](20)

	ch1 := d.Run(func() (int, error) { return 1, nil })
	r1 := <-ch1
	require.Equal(t, 1, r1.Value)

	time.Sleep(40 * time.Millisecond)

	ch2 := d.Run(func() (int, error) { return 2, nil })
	r2 := <-ch2
	assert.Equal(t, 2, r2.Value)
}

func TestDebouncerPropagatesError(t *testing.T) {
	d := NewDebouncer[int](0)
	ch := d.Run(func() (int, error) { return 0, newErr(KindInternal, "boom") })
	res := <-ch
	require.Error(t, res.Err)
}
