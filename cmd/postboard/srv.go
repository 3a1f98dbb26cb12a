package main

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

	"postboard/internal/avatar"
	"postboard/internal/config"
	"postboard/internal/page"
	"postboard/internal/server"
	"postboard/internal/store"
)

const shutdownTimeout = 10 * time.Second

var errDSNRequired = errors.New("database connection string is required (POSTBOARD_DB)")

func newSrvCmd(cfg *config.Config) *cobra.Command {
	var noMigrate bool

	cmd := &cobra.Command{
		Use:   "srv",
		Short: "Run the postboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBDSN == "" {
				return errDSNRequired
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			renderer, err := buildRenderer(cfg)
			if err != nil {
				return err
			}
			fetcher, err := buildAvatarFetcher(cfg, logger)
			if err != nil {
				return err
			}

			st, err := openStore(cfg.DBDSN, noMigrate)
			if err != nil {
				return err
			}
			defer st.Close()
			logger.Info("database ready", "backend", st.Backend())

			srv := server.New(addr, st, fetcher, renderer, logger)
			srv.ConfigureFormOptions(server.FormOptions{
				MaxUploadBytes: cfg.Forms.MaxUploadBytes,
				MaxFieldBytes:  cfg.Forms.MaxFieldBytes,
			})
			return serveUntilSignal(cmd.Context(), srv)
		},
	}

	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "refuse to start unless the schema already exists")
	return cmd
}

func openStore(dsn string, noMigrate bool) (*store.Store, error) {
	if noMigrate {
		return store.OpenExisting(dsn)
	}
	return store.Open(dsn)
}

func buildRenderer(cfg *config.Config) (*page.Renderer, error) {
	shell := page.DefaultShell()
	if cfg.Page.ShellPath != "" {
		loaded, err := page.LoadShell(cfg.Page.ShellPath)
		if err != nil {
			return nil, err
		}
		shell = loaded
	}
	return page.NewRenderer(shell)
}

func buildAvatarFetcher(cfg *config.Config, logger *slog.Logger) (*avatar.Fetcher, error) {
	timeout, err := cfg.AvatarTimeout()
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout}
	return avatar.NewFetcher(client, avatar.Options{
		MaxBytes:               cfg.Avatar.MaxBytes,
		RejectNonSuccessStatus: cfg.Avatar.RejectNonSuccessStatus,
	}, logger.With("component", "avatar")), nil
}

type runnableServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// serveUntilSignal runs srv until it fails or SIGINT/SIGTERM arrives, then
// drains in-flight requests.
func serveUntilSignal(parent context.Context, srv runnableServer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
