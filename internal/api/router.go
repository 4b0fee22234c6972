package api

import (
	"reflect"
	"strings"
	"sync"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/vertex-tips/config"
	_ "github.com/d60-Lab/vertex-tips/docs"
	"github.com/d60-Lab/vertex-tips/internal/api/handler"
	"github.com/d60-Lab/vertex-tips/pkg/auth"
	"github.com/d60-Lab/vertex-tips/pkg/metrics"
	"github.com/d60-Lab/vertex-tips/pkg/middleware"
)

var registerTagName sync.Once

// useJSONFieldNames 校验错误中使用 json 字段名
func useJSONFieldNames() {
	registerTagName.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// SetupRouter 注册中间件与全部路由
func SetupRouter(cfg *config.Config, h *handler.Handler, verifier auth.Verifier, limiter *middleware.IPRateLimiter) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.SecurityHeaders(),
		corsMiddleware(cfg.Server.AllowedOrigins),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
		metrics.Middleware(),
	)

	r.GET("/metrics", metrics.Handler())
	if cfg.Server.Mode != gin.ReleaseMode {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := middleware.RequireAuth(verifier)
	requireAdmin := middleware.RequireAdmin(verifier)

	api := r.Group("/api", middleware.RateLimit(limiter))
	{
		api.GET("/health", h.Health)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
			authGroup.POST("/register", h.Register)
			authGroup.GET("/me", requireAuth, h.Me)
		}

		preds := api.Group("/predictions")
		{
			preds.GET("", h.ListUpcoming)
			preds.GET("/followed", requireAuth, h.ListFollowed)
			preds.GET("/all", requireAuth, h.ListAll)
			preds.GET("/latest", requireAdmin, h.Latest)
			preds.GET("/:id", h.GetPrediction)
			preds.POST("/create", requireAdmin, h.CreatePrediction)
			preds.POST("/follow", requireAuth, h.Follow)
			preds.DELETE("/:id/follow", requireAuth, h.Unfollow)
			preds.PATCH("/:id/status", requireAdmin, h.SetStatus)
		}

		admin := api.Group("/admin", requireAuth, middleware.AdminOnly())
		{
			admin.GET("/predictions", h.AdminListPredictions)
			admin.POST("/create-prediction", h.CreatePrediction)
			admin.PATCH("/predictions/:id/status", h.SetStatus)
			admin.GET("/users", h.ListUsers)
			admin.PATCH("/users/:id", h.SetRole)
		}

		api.GET("/user/roi", requireAuth, h.ROI)

		notes := api.Group("/notifications", requireAuth)
		{
			notes.GET("", h.ListNotifications)
			notes.GET("/unread-count", h.UnreadCount)
			notes.PATCH("/read-all", h.MarkAllRead)
			notes.PATCH("/:id/read", h.MarkRead)
		}
	}

	return r
}
