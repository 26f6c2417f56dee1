package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mallify-hub/internal/api/middleware"
	v1 "mallify-hub/internal/api/v1"
	"mallify-hub/internal/cache"
	"mallify-hub/internal/event"
	"mallify-hub/internal/messaging"
	"mallify-hub/internal/repository/postgres"
	"mallify-hub/internal/scheduler"
	schedulerjobs "mallify-hub/internal/scheduler/jobs"
	"mallify-hub/internal/service"
	"mallify-hub/internal/sse"
	jwtutil "mallify-hub/pkg/jwt"
	loggerpkg "mallify-hub/pkg/logger"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheck())
		case "migrate":
			err = runMigrateCommand(os.Args[2:])
		case "issue-token":
			err = runIssueTokenCommand(os.Args[2:], os.Stdout)
		default:
			err = fmt.Errorf("unknown command %q", os.Args[1])
		}
		if err != nil {
			// #nosec G705 -- CLI output only; control characters are stripped.
			fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, logTail, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger, logTail); err != nil {
		logger.Fatal("server exited unexpectedly", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger, logTail *loggerpkg.Tail) error {
	isDebugMode := strings.EqualFold(cfg.App.Env, "development")
	if !isDebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	publicKey, err := jwtutil.LoadPublicKey(cfg.Auth.PublicKey, cfg.Auth.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("load jwt public key: %w", err)
	}

	dbPool, err := newDBPool(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbPool.Close()

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient, err = cache.NewRedisClient(context.Background(), cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// The listing falls back to the database while redis is down.
			logger.Warn("redis unavailable, active sale cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}
	activeCache := cache.NewActiveSaleCache(redisClient, cfg.Redis.ActiveTTL, logger)

	var publisher *messaging.Publisher
	if strings.TrimSpace(cfg.AMQP.URL) != "" {
		publisher, err = messaging.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Warn("amqp unavailable, customer notifications disabled", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close() //nolint:errcheck
		}
	}

	flashSaleRepo := postgres.NewFlashSaleRepository(dbPool)
	auditRepo := postgres.NewAuditRepository(dbPool)

	sseHub := sse.NewHub(logger)
	defer sseHub.Close()

	eventBus := event.NewBus(logger)
	registerDashboardSubscriber(eventBus, sseHub)
	registerNotificationSubscriber(eventBus, publisher)
	registerCacheSubscriber(eventBus, activeCache, logger)

	var saleCache service.ActiveSaleCache
	if activeCache != nil {
		saleCache = activeCache
	}
	flashSaleSvc := service.NewFlashSaleService(flashSaleRepo, saleCache, eventBus, logger)

	flashSaleJob := schedulerjobs.NewFlashSaleJob(flashSaleSvc, logger)
	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		SweepJob:   flashSaleJob,
		MetricsJob: flashSaleJob,
	}, scheduler.Options{
		SweepEnabled: cfg.Scheduler.SweepEnabled,
		SweepSpec:    cfg.Scheduler.SweepSpec,
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()

	auditRecorder := middleware.NewAuditRecorder(auditRepo, logger)
	defer auditRecorder.Wait()

	viewLimiter := middleware.NewRateLimiter(cfg.RateLimit.ViewLimit, cfg.RateLimit.ViewWindow)
	stopPrune := startLimiterPrune(viewLimiter, cfg.RateLimit.ViewWindow)
	defer stopPrune()

	router, err := newRouter(cfg, logger)
	if err != nil {
		return err
	}

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	}
	readyHandler := func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Database.PingTimeout)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}

		cacheStatus := "disabled"
		if activeCache != nil {
			cacheStatus = "ok"
			if err := activeCache.Ping(ctx); err != nil {
				cacheStatus = "degraded"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "cache": cacheStatus})
	}

	router.GET("/health", healthHandler)
	router.GET("/health/ready", readyHandler)
	router.GET("/api/v1/health", healthHandler)
	router.GET("/api/v1/health/ready", readyHandler)

	internal := router.Group("/internal")
	internal.Use(middleware.InternalTokenAuth(cfg.Security.InternalToken, true))
	internal.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if isDebugMode && cfg.Debug.PprofEnabled {
		registerPprofRoutes(router)
		logger.Info("pprof endpoint enabled", zap.String("path", "/debug/pprof/"))
	}

	apiV1 := router.Group("/api/v1")
	v1.RegisterFlashSaleRoutes(apiV1, v1.FlashSaleRouteDeps{
		Service:       flashSaleSvc,
		PublicKey:     publicKey,
		Audit:         auditRecorder,
		ViewLimiter:   viewLimiter,
		InternalToken: cfg.Security.InternalToken,
		Logger:        logger,
	})
	v1.RegisterSSERoutes(apiV1, sseHub, publicKey)
	v1.RegisterAdminRoutes(apiV1, auditRepo, logTail, publicKey, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		// SSE streams stay open, so writes are unbounded unless configured.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("server started",
		zap.String("addr", srv.Addr),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
		zap.Bool("sweep_enabled", cfg.Scheduler.SweepEnabled),
		zap.Bool("cache_enabled", activeCache != nil),
		zap.Bool("notifications_enabled", publisher != nil),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		return err
	}

	// Close SSE streams first so Shutdown does not wait on them.
	sseHub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}
	return nil
}

// newRouter only honours X-Forwarded-For from server.trusted_proxies; with none configured ClientIP is the TCP peer.
func newRouter(cfg Config, logger *zap.Logger) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg))
	router.Use(middleware.RequestLogger(logger))
	return router, nil
}

func newLogger(cfg Config) (*zap.Logger, *loggerpkg.Tail, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}

	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger failed: %w", err)
	}

	tail := loggerpkg.NewTail(cfg.Log.TailCapacity)
	return loggerpkg.Attach(logger, tail), tail, nil
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

func buildCORSMiddleware(cfg Config) gin.HandlerFunc {
	origins := make([]string, 0, len(cfg.CORS.AllowOrigins))
	for _, origin := range cfg.CORS.AllowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Last-Event-ID", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Type", "Retry-After", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func startLimiterPrune(limiter *middleware.RateLimiter, every time.Duration) func() {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	return func() {
		close(stopCh)
	}
}

func registerPprofRoutes(router *gin.Engine) {
	pprofGroup := router.Group("/debug/pprof")
	pprofGroup.GET("/", gin.WrapF(pprof.Index))
	pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
	pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.POST("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
	pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
}
