// Command vinledger runs the vehicle-history contribution service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/autoverif/vinledger/pkg/chain"
	"github.com/autoverif/vinledger/pkg/config"
	"github.com/autoverif/vinledger/pkg/ingest"
	"github.com/autoverif/vinledger/pkg/lookup"
	"github.com/autoverif/vinledger/pkg/observability"
	"github.com/autoverif/vinledger/pkg/odometer"
	"github.com/autoverif/vinledger/pkg/registry"
	"github.com/autoverif/vinledger/pkg/server"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/submission"
	"github.com/autoverif/vinledger/pkg/uploads"
	"github.com/autoverif/vinledger/pkg/vin"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var decoder vin.Decoder = vin.NewVPICDecoder(cfg.External.VPICBase)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		decoder = vin.NewCachedDecoder(decoder, rdb, 24*time.Hour)
		slog.Info("vin decode cache enabled", "addr", cfg.RedisAddr)
	}

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Shutdown(shutdownCtx)
		}()
	}

	up, err := uploads.NewStore(ctx, cfg.Uploads)
	if err != nil {
		return err
	}

	reg := registry.New(s, decoder)
	c := chain.New(s)
	svc := submission.New(s, reg, c, odometer.New(s))

	srv := server.New(s, decoder, reg, svc, ingest.New(s, svc),
		lookup.New(s), c, up, obs)

	slog.Info("starting vinledger",
		"port", cfg.Port,
		"db_driver", cfg.Database.Driver,
		"upload_backend", cfg.Uploads.Backend,
	)
	return srv.Start(ctx, cfg.Port)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}
