package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scalehq/entitlements/internal/auth"
	"github.com/scalehq/entitlements/internal/billing"
	billingdomain "github.com/scalehq/entitlements/internal/billing/domain"
	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/config"
	"github.com/scalehq/entitlements/internal/migration"
	"github.com/scalehq/entitlements/internal/observability"
	obsmiddleware "github.com/scalehq/entitlements/internal/observability/logger"
	obsmetrics "github.com/scalehq/entitlements/internal/observability/metrics"
	obstracing "github.com/scalehq/entitlements/internal/observability/tracing"
	"github.com/scalehq/entitlements/internal/ratelimit"
	"github.com/scalehq/entitlements/internal/tier"
	"github.com/scalehq/entitlements/internal/usage"
	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	"github.com/scalehq/entitlements/internal/user"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	"github.com/scalehq/entitlements/internal/webhook"
	webhookdomain "github.com/scalehq/entitlements/internal/webhook/domain"
	"github.com/scalehq/entitlements/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	clock.Module,
	db.Module,
	migration.Module,
	tier.Module,
	user.Module,
	usage.Module,
	billing.Module,
	webhook.Module,
	auth.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   cfg.AppVersion,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	users        userdomain.Service
	usageSvc     usagedomain.Service
	billingSvc   billingdomain.Service
	webhookSvc   webhookdomain.Service
	tokens       *auth.TokenService
	trackLimiter *ratelimit.TrackLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Users        userdomain.Service
	UsageSvc     usagedomain.Service
	BillingSvc   billingdomain.Service
	WebhookSvc   webhookdomain.Service
	Tokens       *auth.TokenService
	TrackLimiter *ratelimit.TrackLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("server"),
		clock:        p.Clock,
		users:        p.Users,
		usageSvc:     p.UsageSvc,
		billingSvc:   p.BillingSvc,
		webhookSvc:   p.WebhookSvc,
		tokens:       p.Tokens,
		trackLimiter: p.TrackLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerSubscriptionRoutes()
	svc.registerUsageRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	authGroup := s.engine.Group("/auth")

	authGroup.POST("/token", s.IssueToken)
	authGroup.POST("/refresh", s.RefreshToken)
}

func (s *Server) registerSubscriptionRoutes() {
	sub := s.engine.Group("/subscription")

	sub.POST("/verify", s.VerifySubscription)
	sub.PUT("/update/:userId", s.AuthRequired(), s.UpdateSubscription)
	sub.GET("/purchase/:tier", s.PurchaseTier)
	sub.POST("/verify-payment", s.VerifyPayment)
	sub.GET("/:userId", s.GetSubscription)
}

func (s *Server) registerUsageRoutes() {
	usageGroup := s.engine.Group("/usage")

	usageGroup.POST("/track", s.TrackUsage)
	usageGroup.GET("/stats/:userId", s.UsageStats)
	usageGroup.POST("/reset/:userId", s.AuthRequired(), s.ResetUsage)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/billing/subscription", s.HandleBillingWebhook)
}
