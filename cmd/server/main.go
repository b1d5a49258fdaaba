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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/stefando/weddingPhotos/internal/api"
	"github.com/stefando/weddingPhotos/internal/config"
	"github.com/stefando/weddingPhotos/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// newRootCommand creates the root cobra command
func newRootCommand(v *viper.Viper) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "photos-server",
		Short:         "Serve the famille photo upload and list functions over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ReadFile(v, configFile); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, config.Load(v))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Optional config file (yaml, json or toml)")
	flags.String("addr", config.DefaultHTTPAddr, "HTTP listen address")
	flags.String("log-format", config.DefaultLogFormat, "Log format: text or json")
	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.Int64("max-upload-bytes", config.DefaultMaxUploadBytes, "Largest accepted photo in bytes")

	for key, flag := range map[string]string{
		config.KeyHTTPAddr:       "addr",
		config.KeyLogFormat:      "log-format",
		config.KeyLogLevel:       "log-level",
		config.KeyMaxUploadBytes: "max-upload-bytes",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewHandler(ctx, cfg, logger, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := newRootCommand(config.NewViper()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
