// Package render composes discovered templates into full pages, resolving
// component call sites recursively through the execution pool.
package render

import "sort"

// Context is the ordered, mutable key-value mapping a template sees during
// evaluation. Key order is insertion order; cloning copies the mapping so
// child mutations never reach the parent.
type Context struct {
	keys   []string
	values map[string]interface{}
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{values: make(map[string]interface{})}
}

// FromMap creates a context from a plain map with deterministic (sorted)
// key order.
func FromMap(m map[string]interface{}) *Context {
	c := NewContext()
	c.MergeMap(m)
	return c
}

// Set stores a value, appending the key on first insertion.
func (c *Context) Set(key string, value interface{}) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Get returns the value for key.
func (c *Context) Get(key string) (interface{}, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the insertion-ordered key list.
func (c *Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of entries.
func (c *Context) Len() int { return len(c.keys) }

// Clone returns an independent copy. Nested values are shared; replacing a
// key in the clone never affects the original.
func (c *Context) Clone() *Context {
	out := &Context{
		keys:   make([]string, len(c.keys)),
		values: make(map[string]interface{}, len(c.values)),
	}
	copy(out.keys, c.keys)
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}

// MergeMap layers the given map on top of the context, newest value wins.
// Map keys are applied in sorted order so merge results are deterministic.
func (c *Context) MergeMap(m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Set(k, m[k])
	}
}

// Map returns the plain map handed to template execution.
func (c *Context) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
