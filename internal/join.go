package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/exp/slog"

	"nhooyr.io/websocket"
)

const pingInterval = 45 * time.Second

type JoinOptions struct {
	OriginPatterns []string
	SendBuffer     int
}

func JoinRoute(
	state *State,
	hub *Hub,
	presence *Presence,
	logger *slog.Logger,
	opts JoinOptions,
) http.HandlerFunc {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		kid, err := ksuid.NewRandom()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		id := kid.String()
		log := logger.With(slog.String("id", id))

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}

		//goland:noinspection GoUnhandledErrorResult
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		msgChan := make(chan Message, opts.SendBuffer)
		state.Add(id, &Connection{Messages: msgChan, Cancel: cancel})

		if err := presence.Join(ctx, id); err != nil {
			log.Error("failed to record presence", err)
		}

		defer func() {
			state.Remove(id)

			// the request context is gone by now
			if err := hub.Post(context.Background(), Op{Kind: OpDisconnect, ID: id}); err != nil {
				log.Error("failed to post disconnect", err)
			}

			if err := presence.Leave(context.Background(), id); err != nil {
				log.Error("failed to cleanup", err)
			}
		}()

		if err := hub.Post(ctx, Op{Kind: OpConnect, ID: id}); err != nil {
			log.Error("failed to post connect", err)
			return
		}

		log.Info("joined")

		go func() {
			defer cancel()
			for {
				typ, b, err := conn.Read(ctx)
				if err != nil {
					if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
						log.Debug("read failed", slog.String("error", err.Error()))
					}
					return
				}

				frame := Frame{}
				if typ != websocket.MessageText || json.Unmarshal(b, &frame) != nil {
					frame = Frame{}
				}

				if err := presence.Received(ctx, id); err != nil {
					log.Error("failed to update received messages stats", err)
				}

				if err := hub.Post(ctx, ClientOp(id, frame)); err != nil {
					return
				}
			}
		}()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pingInterval):
					if err := conn.Ping(ctx); err != nil {
						log.Error("failed to ping", err)
						_ = conn.Close(websocket.StatusAbnormalClosure, "hello?")
						cancel()
						return
					}

					if err := presence.Touch(ctx, id); err != nil {
						log.Error("failed extend exp", err)
					}
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info("left")
				return
			case msg := <-msgChan:
				if msg.Drop {
					log.Info("dropped")
					return
				}

				if err := conn.Write(ctx, websocket.MessageText, msg.Buffer); err != nil {
					log.Error("failed to write message", err)
					return
				}

				if err := presence.Sent(ctx, id); err != nil {
					log.Error("failed to update sent messages stats", err)
				}
			}
		}
	}
}
