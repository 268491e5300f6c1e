// Package main runs the background worker: queued incident delivery and periodic incident summaries.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/cidadeplus/backend/config"
	"github.com/cidadeplus/backend/internal/directory"
	"github.com/cidadeplus/backend/internal/domaincache"
	"github.com/cidadeplus/backend/internal/incidents"
	"github.com/cidadeplus/backend/internal/realtime"
	"github.com/cidadeplus/backend/internal/worker"
	"github.com/cidadeplus/backend/pkg/database"
	"github.com/cidadeplus/backend/pkg/logger"
	"github.com/cidadeplus/backend/pkg/queue"
	"github.com/cidadeplus/backend/pkg/redis"
	"github.com/cidadeplus/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Service+"-worker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: int32(cfg.Database.MaxConns)}, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// City names for summaries come from the same cached directory the server uses.
	cache := domaincache.New(directory.NewRepository(pool),
		domaincache.WithMinRebuildInterval(cfg.Tenancy.MinRebuildInterval),
		domaincache.WithLogger(log),
	)
	invalidator := domaincache.NewRedisInvalidator(rdb.Client, cache, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := invalidator.Listen(workerCtx); err != nil {
			log.Error("directory invalidation listener stopped", zap.Error(err))
		}
	}()

	incidentRepo := incidents.NewRepository(pool)

	if cfg.Tenancy.IncidentDelivery == config.DeliveryQueue {
		var publisher incidents.Publisher
		if cfg.Tenancy.Realtime {
			publisher = realtime.NewRedisPubSub(rdb.Client, log)
		}
		processor := worker.NewIncidentProcessor(queue.NewQueue(rdb.Client, log), incidents.NewPersister(incidentRepo, publisher, log), log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Run(workerCtx)
		}()
		log.Info("incident queue worker started")
	}

	sinks := []incidents.Sink{incidents.NewLogSink(log)}
	if cfg.AWS.ReportsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ReportsBucket,
		}, log)
		if err != nil {
			log.Warn("summary archive disabled", zap.Error(err))
		} else {
			sinks = append(sinks, incidents.NewArchiveSink(s3Client, ""))
		}
	}
	reporter := incidents.NewReporter(incidentRepo, cache, log, sinks...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(workerCtx, cfg.Tenancy.SummaryInterval, cfg.Tenancy.SummaryWindow)
	}()

	log.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	log.Info("worker stopped")
}
