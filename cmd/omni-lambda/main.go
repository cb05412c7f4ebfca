package main

import (
	"context"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omniview/internal/config"
	"github.com/kailas-cloud/omniview/internal/db/dynamo"
	logpkg "github.com/kailas-cloud/omniview/internal/logger"
	lambdaTransport "github.com/kailas-cloud/omniview/internal/transport/lambda"
	"github.com/kailas-cloud/omniview/internal/usecase/maintainer"
	"github.com/kailas-cloud/omniview/internal/version"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger("lambda", cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	lay := cfg.Layout.Layout()
	store, err := dynamo.NewStore(context.Background(), dynamo.Config{
		Table:    cfg.Store.Table,
		Region:   cfg.Store.Region,
		Endpoint: cfg.Store.Endpoint,
		PK:       lay.AggregatePK,
		SK:       lay.AggregateSK,
	})
	if err != nil {
		logger.Fatal("Failed to create aggregate store", zap.Error(err))
	}

	svc := maintainer.New(store, lay, logger).
		WithMaxConflictRetries(cfg.Maintainer.MaxConflictRetries)
	handler := lambdaTransport.NewHandler(svc, logger)

	logger.Info("Starting omniview stream handler",
		zap.String("version", version.String()),
		zap.String("table", cfg.Store.Table),
	)
	awslambda.Start(handler.Handle)
}
