package internal

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// recorder is a Sender that keeps every frame delivered to each connection.
type recorder struct {
	frames map[string][]Frame
	sends  int
}

func newRecorder() *recorder {
	return &recorder{frames: make(map[string][]Frame)}
}

func (r *recorder) Send(ids []string, msg Message) {
	r.sends++

	frame := Frame{}
	if err := json.Unmarshal(msg.Buffer, &frame); err != nil {
		panic(err)
	}

	for _, id := range ids {
		r.frames[id] = append(r.frames[id], frame)
	}
}

func (r *recorder) events(id string) []string {
	out := make([]string, 0, len(r.frames[id]))
	for _, f := range r.frames[id] {
		out = append(out, f.Event)
	}
	return out
}

func (r *recorder) last(t *testing.T, id string, event string) Frame {
	t.Helper()

	for i := len(r.frames[id]) - 1; i >= 0; i-- {
		if r.frames[id][i].Event == event {
			return r.frames[id][i]
		}
	}

	t.Fatalf("%v never received %v, got %v", id, event, r.events(id))
	return Frame{}
}

func (r *recorder) count(id string, event string) int {
	n := 0
	for _, f := range r.frames[id] {
		if f.Event == event {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.frames = make(map[string][]Frame)
	r.sends = 0
}

func discardLogger() *slog.Logger {
	return slog.New(slog.HandlerOptions{}.NewTextHandler(io.Discard))
}

func newTestHub() (*Hub, *recorder) {
	rec := newRecorder()
	return NewHub(discardLogger(), rec), rec
}

func decode[T any](t *testing.T, frame Frame) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(frame.Data, &v))
	return v
}

// checkInvariants re-derives every role from the queue and compares it with the registry.
func checkInvariants(t *testing.T, h *Hub) {
	t.Helper()

	queue := h.arbiter.Queue()
	seen := make(map[string]bool, len(queue))
	active := 0

	for i, id := range queue {
		require.False(t, seen[id], "%v queued twice", id)
		seen[id] = true

		role, ok := h.registry.Lookup(id)
		require.True(t, ok, "queued id %v is not registered", id)

		if i == 0 {
			require.Equal(t, RoleActiveController, role)
		} else {
			require.Equal(t, RoleWaitingController, role)
		}
		require.Equal(t, i, h.arbiter.Position(id))
	}

	for _, id := range h.registry.IDs() {
		role, _ := h.registry.Lookup(id)
		if role == RoleActiveController {
			active++
		}
		if !seen[id] {
			require.Equal(t, RoleSubscriber, role, "%v is not queued but has role %v", id, role)
		}
	}

	require.LessOrEqual(t, active, 1)
}
