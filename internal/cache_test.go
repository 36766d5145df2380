package internal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	c := &Cache{}

	_, ok := c.Get()
	assert.False(t, ok)

	payload := json.RawMessage(`{"x":1}`)
	c.Set(payload)
	payload[2] = 'y'

	got, ok := c.Get()
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(got), "cache must copy on set")

	got[2] = 'z'
	again, _ := c.Get()
	assert.JSONEq(t, `{"x":1}`, string(again), "cache must copy on get")

	c.Set(json.RawMessage(`[1,2,3]`))
	got, _ = c.Get()
	assert.JSONEq(t, `[1,2,3]`, string(got))
}
