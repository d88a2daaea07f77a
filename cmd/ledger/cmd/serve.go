package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/finance-ledger/api"
	"github.com/warp/finance-ledger/logger"
)

var port int

// serveCmd runs the HTTP API and the background sweep.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background sweep",
	Long: `Start the HTTP API on LEDGER_PORT and, unless LEDGER_SCHEDULER_ENABLED
is false, the sweep that materializes every rule up to the horizon.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, stops the scheduler and closes the database.

Example:
  ledger serve --port 3000 --db ":memory:"`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP port, overrides LEDGER_PORT")
}

func runServe(cmd *cobra.Command, args []string) error {
	if port > 0 {
		cfg.Port = port
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.store, a.rules, a.balances, a.scheduler)
	handler.Logger = logger.Component(log, "api")

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("db", cfg.DBPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}
