package internal

import (
	"context"
	"crypto/ed25519"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

//go:embed subscriber.html
var subscriberPage []byte

type Options struct {
	InstanceID     string
	Debug          bool
	OriginPatterns []string
	SendBuffer     int
	AdminPublicKey []byte
}

// Main wires the hub, the websocket transport and the HTTP routes. The hub runs
// until ctx is cancelled. rdb may be nil.
func Main(
	logger *slog.Logger,
	ctx context.Context,
	rdb *redis.Client,
	opts Options,
) (chi.Router, error) {
	var verifier RequestVerifier
	if len(opts.AdminPublicKey) > 0 {
		if len(opts.AdminPublicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("admin public key: want %v bytes, got %v", ed25519.PublicKeySize, len(opts.AdminPublicKey))
		}
		verifier = NewRequestVerifier(ed25519.PublicKey(opts.AdminPublicKey))
	}

	RegisterMetrics(prometheus.DefaultRegisterer)

	state := NewState()
	hub := NewHub(logger, state)
	go hub.Run(ctx)

	presence := NewPresence(rdb, opts.InstanceID)
	if rdb != nil {
		go SubscribeEvents(ctx, logger, state, hub, rdb, opts.InstanceID)
	}

	joinOpts := JoinOptions{
		OriginPatterns: opts.OriginPatterns,
		SendBuffer:     opts.SendBuffer,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(mid(opts.InstanceID))
	router.Get("/health", health())
	router.Get("/status", status(hub))
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/", JoinRoute(state, hub, presence, logger, joinOpts))

	if opts.Debug {
		router.Get("/subscriber", subscriber())
	}

	if verifier != nil {
		router.Delete("/connections", DropHandler(state, verifier))
		router.Post("/connections/release", ReleaseHandler(state, hub, verifier))
	}

	return router, nil
}

func health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func status(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := hub.Status(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(s)
	}
}

func subscriber() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(subscriberPage)
	}
}

func mid(instanceID string) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "synchronizer")
			w.Header().Set("Instance-ID", instanceID)
			handler.ServeHTTP(w, r)
		})
	}
}
