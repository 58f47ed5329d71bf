package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	*globalOptions
	addr string
}

// NewServeCommand creates the serve command
func NewServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registered controllers",
		Long: `Start an HTTP server with every registered controller mounted under
its prefix.

Examples:
  stereotype serve
  stereotype serve --addr :3000
  curl -X POST localhost:8080/users/login -d '{"user":"John","password":"1234"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Address to listen on (default: server.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, cmd, opts.globalOptions, nil)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	addr := opts.addr
	if addr == "" {
		addr = env.cfg.Server.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           env.app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	infoColor := color.New(color.FgCyan)
	if opts.noColor {
		infoColor.DisableColor()
	}
	infoColor.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)

	return serve(ctx, srv, env.logger)
}

// serve runs srv until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
