package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bossbuddy/billing/docs"
	"github.com/bossbuddy/billing/internal/app/api/handlers"
	mw "github.com/bossbuddy/billing/internal/app/api/middleware"
	"github.com/bossbuddy/billing/internal/app/service/eventlog"
	rewritesvc "github.com/bossbuddy/billing/internal/app/service/rewrite"
	"github.com/bossbuddy/billing/internal/app/service/statistics"
	subsvc "github.com/bossbuddy/billing/internal/app/service/subscription"
	usagesvc "github.com/bossbuddy/billing/internal/app/service/usage"
	webhooksvc "github.com/bossbuddy/billing/internal/app/service/webhook"
	cfgpkg "github.com/bossbuddy/billing/pkg/config"

	metrics "github.com/bossbuddy/billing/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	hooks *webhooksvc.Service,
	events *eventlog.Service,
	sub *subsvc.Service,
	usage *usagesvc.Service,
	rewrite *rewritesvc.Service,
	stats *statistics.Service,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			Subsystem: "billing",
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Provider webhooks are public but never rate limited; providers
	// retry aggressively and a 429 would count as a delivery failure.
	handlers.RegisterWebhookRoutes(pub, hooks)

	// User-facing APIs, rate limited per client IP
	apiV1 := r.Group("/api/v1")
	apiV1.Use(
		mw.RequestLoggerMiddleware(log),
		mw.AccessLogMiddleware(),
		mw.RateLimitMiddleware(mw.NewRateLimiter(cfg.RateLimitPerMinute)),
	)
	handlers.RegisterRewriteRoutes(apiV1, rewrite, cfg)
	handlers.RegisterSubscriptionRoutes(apiV1, sub, usage)

	// Admin APIs behind bearer auth
	admin := r.Group("/api/v1/admin")
	admin.Use(
		mw.RequestLoggerMiddleware(log),
		mw.AccessLogMiddleware(),
		mw.AdminAuthMiddleware(cfg.Admin.JWTSecret),
	)
	handlers.RegisterAdminRoutes(admin, events, hooks, stats, sub)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
