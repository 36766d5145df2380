package internal

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

// DropHandler force-disconnects the connection named by the signed admin header.
// The hub learns about it through the connection's normal disconnect.
func DropHandler(state *State, verifier RequestVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := verifier(r)
		if id == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if !state.Drop(id) {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// ReleaseHandler takes the connection named by the signed admin header out of the
// controller queue while keeping it connected as a subscriber.
func ReleaseHandler(state *State, hub *Hub, verifier RequestVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := verifier(r)
		if id == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if !state.Has(id) {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if err := hub.Post(r.Context(), Op{Kind: OpReleaseRole, ID: id}); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

// HandleControlEvent applies one control event received from outside the process.
func HandleControlEvent(ctx context.Context, state *State, hub *Hub, event ControlEvent) error {
	switch event.Type {
	case ControlEventDrop:
		if !state.Drop(event.ID) {
			return ErrUnknownConnection
		}
		return nil
	case ControlEventRelease:
		if !state.Has(event.ID) {
			return ErrUnknownConnection
		}
		return hub.Post(ctx, Op{Kind: OpReleaseRole, ID: event.ID})
	default:
		return ErrMalformedEvent
	}
}

// SubscribeEvents listens for control events published on the instance's channel.
func SubscribeEvents(ctx context.Context, logger *slog.Logger, state *State, hub *Hub, rdb *redis.Client, instanceID string) {
	sub := rdb.Subscribe(ctx, instanceID)
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			event := ControlEvent{}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Error("failed to unmarshal control event", err)
				continue
			}

			if err := HandleControlEvent(ctx, state, hub, event); err != nil {
				logger.Warn(
					"control event failed",
					slog.String("event", string(event.Type)),
					slog.String("connection", event.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
