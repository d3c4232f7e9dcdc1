package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KazimAndrei/HollyProject/internal/logging"
	"github.com/KazimAndrei/HollyProject/internal/storekit"
)

func newStoreKitCmd() *cobra.Command {
	var (
		fixtures string
		port     int
		rootOut  string
		level    string
	)

	cmd := &cobra.Command{
		Use:   "storekit-stub",
		Short: "Run a local stand-in for the App Store Server API",
		Long: `Serves the subscription and transaction lookup endpoints from a fixture file.
Point appstore.base_url at it and use any complete set of credentials.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.Init(logging.Config{Format: "auto", Level: level, Service: "storekit-stub"})

			fx, err := storekit.LoadFixtures(fixtures)
			if err != nil {
				return err
			}
			stub, err := storekit.NewServer(fx, nil, logger)
			if err != nil {
				return err
			}

			if rootOut != "" {
				if err := os.WriteFile(rootOut, stub.RootPEM(), 0o644); err != nil {
					return fmt.Errorf("failed to write root certificate: %w", err)
				}
				logger.Info().Str("path", rootOut).Msg("Wrote signing certificate")
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           stub,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logger.Info().
					Int("port", port).
					Int("transactions", len(fx.Transactions)).
					Msg("StoreKit stand-in listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&fixtures, "fixtures", "storekit/fixtures.yaml", "YAML fixture file")
	cmd.Flags().IntVar(&port, "port", 8089, "listen port")
	cmd.Flags().StringVar(&rootOut, "root-cert-out", "", "write the signing certificate (PEM) here for appstore.root_cert_path")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	return cmd
}
