package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medcanna/m/internal/api"
	"medcanna/m/internal/config"
	"medcanna/m/internal/seed"
	"medcanna/m/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		port     string
		seedFile string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

Migrations are applied on startup. With --seed, products from the given
CSV or YAML file are added before the listener opens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if port != "" {
				cfg.HTTPPort = port
			}
			return runServe(cmd.Context(), cfg, seedFile)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides HTTP_PORT)")
	cmd.Flags().StringVar(&seedFile, "seed", "", "catalog file to load on startup")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, seedFile string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	disk, err := storage.NewDisk(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		return err
	}
	svc := newServices(db, cfg, disk)

	if seedFile != "" {
		if _, err := seed.LoadCatalog(ctx, svc.products, seedFile); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}

	handler := api.New(api.Options{
		Secret:         cfg.Secret,
		TokenTTL:       cfg.TokenTTL,
		AllowedOrigins: cfg.AllowedOrigins,
		Accounts:       svc.accounts,
		Catalog:        svc.catalog,
		Products:       svc.products,
		Documents:      svc.documents,
		Ledger:         svc.ledger,
		Orders:         svc.orders,
		Files:          disk,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr, "driver", db.DriverName())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
