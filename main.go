package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"attendance/config"
	"attendance/db"
	"attendance/gateway"
	"attendance/scanmemory"
	"attendance/service"
	"attendance/tracing"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.Init(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("Service stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	traceProvider, err := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("failed to configure tracing: %w", err)
	}
	defer func() {
		if err := traceProvider.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("Failed to shut down trace provider")
		}
	}()

	dbconn, err := db.Open(cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer dbconn.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer redisClient.Close()

	var persister scanmemory.Persister
	switch cfg.ScanMemoryBackend {
	case config.ScanMemoryRedis:
		persister = scanmemory.NewRedisPersister(redisClient, scanmemory.DefaultKey, cfg.ScanMemorySession)
	default:
		persister = scanmemory.NewFilePersister(cfg.ScanMemoryDir, scanmemory.DefaultKey+"."+cfg.ScanMemorySession)
	}

	scanMemory, err := scanmemory.NewStore(ctx, persister)
	if err != nil {
		return err
	}

	svc := service.New(
		dbconn,
		redisClient,
		gateway.NewTokenIssuer(cfg.IssuerTokenPrefix),
		scanMemory,
		service.Options{
			HTTPAddr:       cfg.HTTPAddr,
			QuietWindow:    cfg.QuietWindow,
			RefreshTimeout: cfg.RefreshTimeout,
		},
	)

	return svc.Run(ctx)
}
