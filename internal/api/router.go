// Package api exposes the photo upload and listing functions over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stefando/weddingPhotos/internal/auth"
	"github.com/stefando/weddingPhotos/internal/logging"
	"github.com/stefando/weddingPhotos/internal/photos"
)

// FunctionsPrefix is the gateway path under which the functions are also served.
const FunctionsPrefix = "/functions/v1"

// PhotoService is the behavior the handlers need from photos.Service.
type PhotoService interface {
	Upload(ctx context.Context, token string, file photos.File) (*photos.UploadResult, error)
	List(ctx context.Context, token string) ([]photos.Item, error)
	MaxBytes() int64
}

// Deps are the router's collaborators.
type Deps struct {
	Photos PhotoService
	// ConfigErr is the cold start failure; when set every function call
	// answers 500.
	ConfigErr error
	JWTSecret string
	Logger    *slog.Logger
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the chi router
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{photos: d.Photos, configErr: d.ConfigErr, logger: logger}
	if h.photos == nil && h.configErr == nil {
		h.configErr = errNotConfigured
	}

	r := chi.NewRouter()

	// Middleware for all routes
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)

	functions := func(r chi.Router) {
		r.Route("/upload-photo", func(r chi.Router) {
			r.Use(cors(http.MethodPost, http.MethodOptions))
			r.Use(auth.GatewayJWT(d.JWTSecret, logger))
			r.Use(auth.AppTokenMiddleware)
			r.Post("/", h.uploadPhoto)
		})
		r.Route("/list-photos", func(r chi.Router) {
			r.Use(cors(http.MethodGet, http.MethodPost, http.MethodOptions))
			r.Use(auth.GatewayJWT(d.JWTSecret, logger))
			r.Use(auth.AppTokenMiddleware)
			r.Get("/", h.listPhotos)
			r.Post("/", h.listPhotos)
		})
	}
	functions(r)
	r.Route(FunctionsPrefix, functions)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
