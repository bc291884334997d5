package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/worldbeesion/beecareful-backend/internal/api/http"
	"github.com/worldbeesion/beecareful-backend/internal/api/http/middleware"
	authn "github.com/worldbeesion/beecareful-backend/internal/auth"
	authmw "github.com/worldbeesion/beecareful-backend/internal/auth/middleware"
	diaghttp "github.com/worldbeesion/beecareful-backend/internal/diagnosis/http"
	"github.com/worldbeesion/beecareful-backend/internal/members"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
	DB             *sql.DB
	Redis          *redis.Client
	Gatherer       prometheus.Gatherer
	AuthClient     *auth.Client // nil falls back to X-User-Id headers (development only)
	Members        *members.Repo
	Diagnosis      *diaghttp.Handler
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(dep.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     dep.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id", "X-User-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	var dbPinger, redisPinger httpapi.Pinger
	if dep.DB != nil {
		dbPinger = httpapi.PingFunc(dep.DB.PingContext)
	}
	if dep.Redis != nil {
		redisPinger = httpapi.PingFunc(func(ctx context.Context) error { return dep.Redis.Ping(ctx).Err() })
	}
	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dbPinger, redisPinger)
	healthHandler.RegisterRoutes(r)

	if dep.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dep.Gatherer, promhttp.HandlerOpts{})))
	}

	// Storage notification relay, authenticated by API key instead of Firebase.
	internal := r.Group("/api/v1")
	dep.Diagnosis.RegisterStorageRoutes(internal)

	api := r.Group("/api/v1")
	if dep.AuthClient != nil {
		api.Use(authmw.FirebaseAuthMiddleware(dep.AuthClient))
	} else {
		dep.Logger.Warn("firebase auth disabled, trusting X-User-Id headers")
		api.Use(authn.DevUser())
	}
	api.Use(authn.WithMember(dep.Members))

	httpapi.NewDeviceHandler(dep.Members).RegisterRoutes(api)
	dep.Diagnosis.Register(api)

	return r
}
