package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/exp/slog"
	"manualpilot/synchronizer/impl"
	"manualpilot/synchronizer/internal"
)

type Env struct {
	Port           int                   `env:"PORT,default=8080"`
	InstanceID     string                `env:"INSTANCE_ID"`
	Debug          bool                  `env:"DEBUG,default=false"`
	OriginPatterns []string              `env:"ORIGIN_PATTERNS,default=*"`
	SendBuffer     int                   `env:"SEND_BUFFER,default=64"`
	RedisURL       string                `env:"REDIS_URL"`
	ServiceDomain  string                `env:"SERVICE_DOMAIN"`
	AdminPublicKey envconfig.Base64Bytes `env:"ADMIN_PUBLIC_KEY"`
}

func loadEnv(ctx context.Context, lookuper envconfig.Lookuper) (Env, error) {
	env := Env{}
	if err := envconfig.ProcessWith(ctx, &env, lookuper); err != nil {
		return env, err
	}

	if env.InstanceID == "" {
		kid, err := ksuid.NewRandom()
		if err != nil {
			return env, err
		}
		env.InstanceID = kid.String()
	}

	if env.ServiceDomain != "" && env.RedisURL == "" {
		return env, errors.New("SERVICE_DOMAIN requires REDIS_URL for certificate storage")
	}

	return env, nil
}

func doMain(ctx context.Context, logger *slog.Logger, env Env) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger = logger.With(slog.String("instance", env.InstanceID))

	var rdb *redis.Client
	if env.RedisURL != "" {
		rOpts, err := redis.ParseURL(env.RedisURL)
		if err != nil {
			return err
		}

		rdb = redis.NewClient(rOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}

		//goland:noinspection GoUnhandledErrorResult
		defer rdb.Close()
	}

	router, err := internal.Main(logger, ctx, rdb, internal.Options{
		InstanceID:     env.InstanceID,
		Debug:          env.Debug,
		OriginPatterns: env.OriginPatterns,
		SendBuffer:     env.SendBuffer,
		AdminPublicKey: env.AdminPublicKey.Bytes(),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", env.Port),
		Handler: router,
	}

	if env.ServiceDomain != "" {
		tlsConfig, err := impl.TLSConfig(ctx, env.ServiceDomain, rdb)
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
	}

	//goland:noinspection GoUnhandledErrorResult
	defer server.Close()

	ec := make(chan error, 1)
	go func() {
		logger.Debug("starting...", slog.String("address", server.Addr))

		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			ec <- err
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sc:
		logger.Warn("shutdown signal", slog.String("signal", sig.String()))
	case err := <-ec:
		logger.Error("failed to start http server", err)
		return err
	}

	return nil
}

func main() {
	ctx := context.Background()

	env, err := loadEnv(ctx, envconfig.OsLookuper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if env.Debug {
		level = slog.LevelDebug
	}

	handler := slog.HandlerOptions{AddSource: true, Level: level}
	logger := slog.New(handler.NewTextHandler(os.Stdout))
	slog.SetDefault(logger)

	if err := doMain(ctx, logger, env); err != nil {
		logger.Error("failed to start", err)
		os.Exit(1)
	}
}
