package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/stefando/weddingPhotos/internal/api"
	"github.com/stefando/weddingPhotos/internal/config"
	"github.com/stefando/weddingPhotos/internal/logging"
)

func main() {
	// Configuration is read once per cold start
	cfg := config.Load(config.NewViper())
	logger := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	router := api.NewHandler(context.Background(), cfg, logger, nil)
	lambda.Start(newProxy(router, logger).handle)
}
