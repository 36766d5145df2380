package internal

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/slices"
)

// Sender delivers an encoded frame to a set of connections. Implementations must not
// block on slow peers.
type Sender interface {
	Send(ids []string, msg Message)
}

type Router struct {
	registry *Registry
	sender   Sender
}

func NewRouter(registry *Registry, sender Sender) *Router {
	return &Router{registry: registry, sender: sender}
}

// Fanout returns every registered id except the excluded ones.
func (r *Router) Fanout(exclude ...string) []string {
	ids := r.registry.IDs()
	if len(exclude) == 0 {
		return ids
	}

	out := ids[:0]
	for _, id := range ids {
		if !slices.Contains(exclude, id) {
			out = append(out, id)
		}
	}

	return out
}

func (r *Router) Broadcast(event string, data any, exclude ...string) error {
	b, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	ids := r.Fanout(exclude...)
	if len(ids) == 0 {
		return nil
	}

	r.sender.Send(ids, Message{Buffer: b})
	return nil
}

func (r *Router) Unicast(id string, event string, data any) error {
	b, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	r.sender.Send([]string{id}, Message{Buffer: b})
	return nil
}

func encodeFrame(event string, data any) ([]byte, error) {
	frame := Frame{Event: event}

	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		frame.Data = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %v: %w", event, err)
		}
		frame.Data = b
	}

	return json.Marshal(frame)
}
