package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextPreservesInsertionOrder(t *testing.T) {
	c := NewContext()
	c.Set("zebra", 1)
	c.Set("apple", 2)
	c.Set("mango", 3)
	c.Set("apple", 4) // update must not reorder

	assert.Equal(t, []string{"zebra", "apple", "mango"}, c.Keys())

	v, ok := c.Get("apple")
	assert.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestCloneIsolation(t *testing.T) {
	parent := NewContext()
	parent.Set("shared", "original")

	child := parent.Clone()
	child.Set("shared", "mutated")
	child.Set("own", true)

	v, _ := parent.Get("shared")
	assert.Equal(t, "original", v, "child mutation leaked into parent")
	_, ok := parent.Get("own")
	assert.False(t, ok)
}

func TestMergeMapIsDeterministic(t *testing.T) {
	a := NewContext()
	a.MergeMap(map[string]interface{}{"b": 1, "a": 2, "c": 3})

	b := NewContext()
	b.MergeMap(map[string]interface{}{"c": 3, "a": 2, "b": 1})

	assert.Equal(t, a.Keys(), b.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, a.Keys())
}

func TestMergeMapOverwritesValues(t *testing.T) {
	c := FromMap(map[string]interface{}{"count": 1})
	c.MergeMap(map[string]interface{}{"count": 2})

	v, _ := c.Get("count")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}
