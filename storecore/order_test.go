package storecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type orderTestEntity struct {
	Age *int
}

func age(n int) *int { return &n }

// Scenario 6: order with nulls.
func TestBuildComparatorNullsFirst(t *testing.T) {
	items := []*orderTestEntity{{Age: age(30)}, {Age: nil}, {Age: age(25)}}
	cmp := BuildComparator[orderTestEntity](nil, []OrderBy[orderTestEntity]{
		NewOrderBy[orderTestEntity]("Age", false, NullsFirst),
	})
	SortItems(items, cmp)

	assert.Nil(t, items[0].Age)
	assert.Equal(t, 25, *items[1].Age)
	assert.Equal(t, 30, *items[2].Age)
}

func TestBuildComparatorNullsLast(t *testing.T) {
	items := []*orderTestEntity{{Age: age(30)}, {Age: nil}, {Age: age(25)}}
	cmp := BuildComparator[orderTestEntity](nil, []OrderBy[orderTestEntity]{
		NewOrderBy[orderTestEntity]("Age", false, NullsLast),
	})
	SortItems(items, cmp)

	assert.Equal(t, 25, *items[0].Age)
	assert.Equal(t, 30, *items[1].Age)
	assert.Nil(t, items[2].Age)
}

func TestBuildComparatorEmptyPriorityIsStable(t *testing.T) {
	cmp := BuildComparator[orderTestEntity](nil, nil)
	assert.Equal(t, 0, cmp(&orderTestEntity{}, &orderTestEntity{}))
}

func TestBuildComparatorDesc(t *testing.T) {
	items := []*orderTestEntity{{Age: age(1)}, {Age: age(3)}, {Age: age(2)}}
	cmp := BuildComparator[orderTestEntity](nil, []OrderBy[orderTestEntity]{
		NewOrderBy[orderTestEntity]("Age", true, NullsLast),
	})
	SortItems(items, cmp)
	assert.Equal(t, 3, *items[0].Age)
	assert.Equal(t, 2, *items[1].Age)
	assert.Equal(t, 1, *items[2].Age)
}

func TestCompareOrderedTypeMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { compareOrdered("a", 1) })
}

func TestSimplifyOrderByDefaultsNullsLast(t *testing.T) {
	out := SimplifyOrderBy([]OrderBy[orderTestEntity]{{Key: "Age"}})
	assert.Equal(t, "last", out[0].Nulls)
	assert.Equal(t, "Age", out[0].Field)
}
