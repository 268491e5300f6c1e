// Package main runs the civic platform HTTP server with tenant resolution and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/config"
	"github.com/cidadeplus/backend/internal/auth"
	"github.com/cidadeplus/backend/internal/directory"
	"github.com/cidadeplus/backend/internal/domaincache"
	"github.com/cidadeplus/backend/internal/incidents"
	"github.com/cidadeplus/backend/internal/middleware"
	"github.com/cidadeplus/backend/internal/realtime"
	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/internal/worker"
	"github.com/cidadeplus/backend/pkg/database"
	"github.com/cidadeplus/backend/pkg/logger"
	"github.com/cidadeplus/backend/pkg/queue"
	"github.com/cidadeplus/backend/pkg/redis"
	"github.com/cidadeplus/backend/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Service)
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

	if err := database.Migrate(ctx, pool, log); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	precedence, err := tenancy.ParsePrecedence(cfg.Tenancy.Precedence)
	if err != nil {
		log.Fatal("tenancy precedence", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := tenancy.NewMetrics(registry)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Tenant directory and its derived domain index
	dirRepo := directory.NewRepository(pool)
	cache := domaincache.New(dirRepo,
		domaincache.WithMinRebuildInterval(cfg.Tenancy.MinRebuildInterval),
		domaincache.WithLoadTimeout(cfg.Tenancy.ResolveTimeout),
		domaincache.WithMetrics(metrics),
		domaincache.WithLogger(log),
	)
	if err := cache.Warm(ctx); err != nil {
		log.Warn("domain cache warm failed; loading on first request", zap.Error(err))
	}
	invalidator := domaincache.NewRedisInvalidator(rdb.Client, cache, log)
	go func() {
		if err := invalidator.Listen(bgCtx); err != nil {
			log.Error("directory invalidation listener stopped", zap.Error(err))
		}
	}()
	dirService := directory.NewService(dirRepo, invalidator, log)

	// Incidents: recorder -> (queue ->) persister -> store + live feed
	incidentRepo := incidents.NewRepository(pool)
	var publisher incidents.Publisher
	var hub *realtime.Hub
	if cfg.Tenancy.Realtime {
		pubsub := realtime.NewRedisPubSub(rdb.Client, log)
		hub = realtime.NewHub(log, pubsub, pubsub)
		publisher = hub
	}
	var writer incidents.Writer = incidents.NewPersister(incidentRepo, publisher, log)
	if cfg.Tenancy.IncidentDelivery == config.DeliveryQueue {
		writer = worker.NewQueueWriter(queue.NewQueue(rdb.Client, log))
	}
	recorder := incidents.NewRecorder(writer, incidents.RecorderConfig{BufferSize: cfg.Tenancy.IncidentBufferSize}, log)
	reporter := incidents.NewReporter(incidentRepo, cache, log)

	resolver := tenancy.NewResolver(cache,
		tenancy.WithPrecedence(precedence),
		tenancy.WithIncidentSink(recorder),
		tenancy.WithMetrics(metrics),
		tenancy.WithTimeout(cfg.Tenancy.ResolveTimeout),
		tenancy.WithLogger(log),
	)
	guard := tenancy.NewGuard(cache, recorder, metrics, log)
	httpCfg := httpConfig(cfg.Tenancy)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, log)
	dirHandler := directory.NewHandler(dirService, cache, httpCfg, log)
	incidentHandler := incidents.NewHandler(incidentRepo, reporter, cfg.Tenancy.SummaryWindow, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins, httpCfg.OverrideHeader, httpCfg.CityHeader, httpCfg.TimezoneHeader, httpCfg.KeyHeader))
	router.Use(middleware.Logger(log))

	router.GET("/health", func(c *gin.Context) {
		stats := cache.Stats()
		response.OK(c, gin.H{"status": "ok", "directory": stats, "incidents": recorder.Stats()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API v1: override header and host
	api := router.Group("/api/v1", tenancy.Middleware(resolver, httpCfg))
	{
		api.GET("/tenant", dirHandler.Tenant)
		api.GET("/bootstrap", dirHandler.Bootstrap)
	}

	// Web routes: path segment as well
	web := router.Group("/c/:region/:"+httpCfg.PathParam, tenancy.Middleware(resolver, httpCfg))
	{
		web.GET("/bootstrap", dirHandler.Bootstrap)
	}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", middleware.JWT(jwtService, authRepo), authHandler.Me)
	}

	admin := router.Group("/admin", middleware.JWT(jwtService, authRepo), middleware.RequireStaff())
	{
		admin.POST("/tenant/select", dirHandler.SelectCity)

		// Operators act on the directory itself, not inside a city
		ops := admin.Group("", middleware.RequireGlobal())
		ops.GET("/cities", dirHandler.ListCities)
		ops.POST("/cities", dirHandler.CreateCity)
		ops.PATCH("/cities/:id", dirHandler.UpdateCity)
		ops.GET("/cities/:id/domains", dirHandler.ListDomains)
		ops.POST("/cities/:id/domains", dirHandler.AddDomain)
		ops.DELETE("/domains/:id", dirHandler.RemoveDomain)
		ops.POST("/staff", authHandler.CreateStaff)

		guarded := admin.Group("", tenancy.OptionalMiddleware(resolver, httpCfg, log), tenancy.GuardMiddleware(guard, httpCfg))
		guarded.GET("/tenant", dirHandler.Tenant)
		guarded.GET("/modules", dirHandler.ListModules)
		guarded.PUT("/modules/:key", dirHandler.SetModule)
		guarded.GET("/staff", authHandler.ListStaff)
		guarded.GET("/incidents", incidentHandler.List)
		guarded.GET("/incidents/summary", incidentHandler.Summary)
		guarded.POST("/incidents/:id/ack", incidentHandler.Acknowledge)
		if hub != nil {
			guarded.GET("/incidents/feed", realtime.ServeFeed(hub, splitOrigins(cfg.Server.CORSAllowedOrigins), log))
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.Strings("precedence", cfg.Tenancy.Precedence),
			zap.String("incident_delivery", cfg.Tenancy.IncidentDelivery),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Warn("incident recorder flush incomplete", zap.Error(err), zap.Any("stats", recorder.Stats()))
	}
	bgCancel()
	log.Info("server stopped")
}

func httpConfig(t config.TenancyConfig) tenancy.HTTPConfig {
	c := tenancy.DefaultHTTPConfig()
	c.OverrideHeader = t.OverrideHeader
	c.PathParam = t.PathParam
	c.CityHeader = t.CityHeader
	c.TimezoneHeader = t.TimezoneHeader
	c.KeyHeader = t.KeyHeader
	c.SelectionCookie = t.SelectionCookie
	c.SelectionQuery = t.SelectionQuery
	c.RequestIDKey = response.ContextRequestID
	return c
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
