package cli

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

	"github.com/KafClaw/sheetclaw/internal/config"
	"github.com/KafClaw/sheetclaw/internal/gateway"
	"github.com/KafClaw/sheetclaw/internal/provider"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides gateway.host and gateway.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := setupLogging(os.Stderr, cfg.LogLevel, true)

	prov, err := provider.Resolve(cfg)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router := gateway.NewRouter(gateway.Options{
		Loop:      a.newLoop(prov),
		Threads:   a.threads,
		Ledger:    a.ledger,
		Tables:    a.tables,
		Sheet:     a.sheet,
		Audit:     a.audit,
		AuthToken: cfg.Gateway.AuthToken,
		Logger:    logger,
	})

	addr := serveAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting",
			"addr", addr,
			"workbook", a.sheet.Path(),
			"database", cfg.Paths.DatabasePath(),
			"model", cfg.Model.Name,
			"provider", cfg.Provider.Kind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
