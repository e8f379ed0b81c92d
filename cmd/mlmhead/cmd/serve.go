package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mlmhead/pkg/server"
)

var serveShutdownTimeout int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP evaluation server",
	Long: `Load the model once and serve evaluations over HTTP.

Endpoints:
  GET  /health    liveness
  GET  /model     dimensions, default parameters and eigenvalues
  POST /evaluate  {"w_skull":[...],"w_fstt":[...],"format":"json|off|stl","surface":"skin|skull"}
  GET  /metrics   Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := globalConfig
		s, err := openSession(cfg)
		if err != nil {
			return err
		}

		srv, err := server.NewServer(server.Config{
			Model:     s.Model,
			Skin:      s.Skin,
			Skull:     s.Skull,
			MaxBodyKB: cfg.Server.MaxBodyKB,
			Logger:    slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		httpServer := &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Starting model server", "addr", httpServer.Addr)
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
			slog.Info("Received shutdown signal")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(serveShutdownTimeout)*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		slog.Info("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "127.0.0.1", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().Int("max-body-kb", 64, "maximum request body size in KiB")
	serveCmd.Flags().IntVar(&serveShutdownTimeout, "shutdown-timeout", 10, "shutdown timeout in seconds")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.max_body_kb", serveCmd.Flags().Lookup("max-body-kb"))
}
