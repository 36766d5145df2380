package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(buffer int) (*Connection, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{Messages: make(chan Message, buffer), Cancel: cancel}, ctx
}

func TestStateSend(t *testing.T) {
	state := NewState()

	a, _ := newTestConnection(4)
	b, _ := newTestConnection(4)
	state.Add("a", a)
	state.Add("b", b)

	state.Send([]string{"a", "b", "gone"}, Message{Buffer: []byte("hi")})

	require.Len(t, a.Messages, 1)
	require.Len(t, b.Messages, 1)
	assert.Equal(t, []byte("hi"), (<-a.Messages).Buffer)

	state.Remove("b")
	state.Send([]string{"a", "b"}, Message{Buffer: []byte("again")})
	assert.Len(t, a.Messages, 1)
	assert.Len(t, b.Messages, 1)
}

func TestStateSendSlowConsumer(t *testing.T) {
	state := NewState()

	slow, slowCtx := newTestConnection(1)
	fast, fastCtx := newTestConnection(4)
	state.Add("slow", slow)
	state.Add("fast", fast)

	state.Send([]string{"slow", "fast"}, Message{Buffer: []byte("1")})
	state.Send([]string{"slow", "fast"}, Message{Buffer: []byte("2")})

	assert.Error(t, slowCtx.Err(), "slow connection should be cancelled")
	assert.NoError(t, fastCtx.Err())
	assert.Len(t, fast.Messages, 2)
}

func TestStateDrop(t *testing.T) {
	state := NewState()

	conn, ctx := newTestConnection(1)
	state.Add("a", conn)

	assert.True(t, state.Drop("a"))
	assert.True(t, (<-conn.Messages).Drop)
	assert.NoError(t, ctx.Err())

	conn.Messages <- Message{}
	assert.True(t, state.Drop("a"))
	assert.Error(t, ctx.Err(), "full buffer falls back to cancel")

	assert.False(t, state.Drop("missing"))
}

func TestStateHas(t *testing.T) {
	state := NewState()

	a, _ := newTestConnection(1)
	state.Add("a", a)

	assert.True(t, state.Has("a"))
	assert.False(t, state.Has("ghost"))

	state.Remove("a")
	assert.False(t, state.Has("a"))
}
