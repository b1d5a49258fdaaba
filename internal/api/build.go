package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stefando/weddingPhotos/internal/config"
	"github.com/stefando/weddingPhotos/internal/identity"
	"github.com/stefando/weddingPhotos/internal/metrics"
	"github.com/stefando/weddingPhotos/internal/objectstore"
	"github.com/stefando/weddingPhotos/internal/photos"
)

// Build wires the photo service from cfg. Metrics are registered on reg when
// it is not nil.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*photos.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	creds, err := objectstore.NewCredentialsProvider(ctx, cfg.AccessKey, cfg.SecretKey, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrMissingConfig, err)
	}

	store, err := objectstore.New(objectstore.Config{
		Endpoint:      cfg.StoreEndpoint(),
		Region:        cfg.Region,
		Bucket:        cfg.Bucket,
		Credentials:   creds,
		HTTPClient:    &http.Client{Timeout: cfg.UpstreamTimeout},
		PublicBaseURL: cfg.PublicBaseURL,
		MaxListPages:  cfg.ListMaxPages,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrMissingConfig, err)
	}

	resolver := identity.NewRPCResolver(cfg.SupabaseURL, cfg.ServiceRoleKey, cfg.TokenRPCFunction, cfg.TokenRPCParam, cfg.UpstreamTimeout)

	var observer metrics.Observer = metrics.Nop()
	if reg != nil {
		prom, err := metrics.NewPrometheusObserver("", reg)
		if err != nil {
			return nil, err
		}
		observer = prom
	}

	logger.Info("photo service initialized",
		slog.String("endpoint", cfg.StoreEndpoint()),
		slog.String("bucket", cfg.Bucket),
		slog.Int64("max_upload_bytes", cfg.MaxUploadBytes))

	return photos.NewService(resolver, store, photos.Options{
		MaxBytes: cfg.MaxUploadBytes,
		Observer: observer,
		Logger:   logger.With(slog.String("component", "photos")),
	}), nil
}

// NewHandler builds the photo service from cfg and returns the router serving
// it. A build failure is logged once and every function call then answers
// 500. Metrics are registered and exposed on reg when it is not nil.
func NewHandler(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	deps := Deps{JWTSecret: cfg.JWTSecret, Logger: logger}

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
		deps.Gatherer = reg
	}

	svc, err := Build(ctx, cfg, logger, registerer)
	if err != nil {
		logger.Error("photo service misconfigured", slog.Any("error", err))
		deps.ConfigErr = err
	} else {
		deps.Photos = svc
	}
	return NewRouter(deps)
}
