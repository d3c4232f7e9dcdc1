package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/chat"
	"github.com/KazimAndrei/HollyProject/internal/config"
	"github.com/KazimAndrei/HollyProject/internal/handlers"
	"github.com/KazimAndrei/HollyProject/internal/interfaces"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
	"github.com/KazimAndrei/HollyProject/internal/scripture"
	"github.com/KazimAndrei/HollyProject/internal/server"
	"github.com/KazimAndrei/HollyProject/internal/services"
	"github.com/KazimAndrei/HollyProject/internal/storage"
)

type store interface {
	interfaces.QuotaStore
	interfaces.EntitlementStore
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
}

func runServe(cmd *cobra.Command, flags *globalFlags) error {
	cfg, logger, err := loadConfig(flags, "holly")
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("appstore_env", cfg.AppStore.Environment).
		Msg("Holly starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svcs, err := services.CreateServices(cfg, logger, m)
	if err != nil {
		return err
	}

	corpus, err := scripture.Load(cfg.Scripture.CorpusDir, cfg.Scripture.DefaultTranslation, cfg.Scripture.DailyPool)
	if err != nil {
		return fmt.Errorf("failed to load scripture corpus: %w", err)
	}
	logger.Info().Strs("translations", corpus.Translations()).Msg("Scripture corpus loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	st, err := openStore(gctx, g, cfg, logger)
	if err != nil {
		return err
	}

	verifier := appstore.NewVerifier(svcs.AppStore, svcs.Decoder, appstore.VerifierConfig{
		Deadline: cfg.VerifyDeadline,
		Logger:   logger,
		Metrics:  m,
	})
	chatService := chat.NewService(corpus, svcs.Generator, corpus, st, st, chat.Config{
		FreeLimit:        cfg.Chat.FreeLimit,
		MinReliableScore: cfg.Chat.MinReliableScore,
		Logger:           logger,
		Metrics:          m,
	})
	handler := handlers.NewHandler(handlers.Deps{
		Verifier:     verifier,
		Entitlements: st,
		Chat:         chatService,
		Corpus:       corpus,
		Mode:         svcs.Mode,
		LLMEnabled:   svcs.LLMEnabled,
		Location:     cfg.Location,
		Logger:       logger,
	})
	srv := server.NewServer(handler, server.Options{
		Verbose:     cfg.Server.Verbose,
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    reg,
		Metrics:     m,
		Logger:      logger,
	})

	g.Go(func() error {
		return srv.Start(cfg.Server.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Holly stopped")
	return nil
}

// openStore picks the storage driver. The memory store's cleanup routine joins the group.
func openStore(ctx context.Context, g *errgroup.Group, cfg *config.ParsedConfig, logger zerolog.Logger) (store, error) {
	if cfg.Storage.Driver == "redis" {
		client, err := storage.Connect(cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		rs := storage.NewRedisStorage(client, cfg.Location, logger)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return rs.Close()
		})
		logger.Info().Msg("Using Redis storage")
		return rs, nil
	}

	ms := storage.NewMemoryStorage(cfg.Location, logger)
	g.Go(func() error {
		return ms.StartCleanupRoutine(ctx, cfg.CleanupInterval)
	})
	logger.Info().Msg("Using in-memory storage")
	return ms, nil
}
