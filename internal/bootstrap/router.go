package bootstrap

import (
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	httpapi "github.com/querypad/querypad-backend/internal/api/http"
	"github.com/querypad/querypad-backend/internal/api/http/middleware"
	"github.com/querypad/querypad-backend/internal/auth"
	"github.com/querypad/querypad-backend/internal/datasources"
	"github.com/querypad/querypad-backend/internal/events"
	querieshttp "github.com/querypad/querypad-backend/internal/queries/http"
	"github.com/querypad/querypad-backend/internal/queries/repository"
	"github.com/querypad/querypad-backend/internal/queries/service"
	"github.com/querypad/querypad-backend/internal/queries/session"
	"github.com/querypad/querypad-backend/internal/results"
	"github.com/querypad/querypad-backend/internal/users"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	DB          *pgxpool.Pool
	Redis       *redis.Client
	AuthClient  *fbauth.Client
	Exporter    *results.S3Exporter
	ResultRepo  *results.Repo

	// ResultMaxAge is the default freshness window for latest-result
	// lookups when the request does not pass max_age.
	ResultMaxAge time.Duration
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-Id", "X-User-Id", "X-User-Email", "X-User-Name"},
		ExposeHeaders: []string{"X-Request-Id"},
	}))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(middleware.RequestIDMiddleware())

	userRepo := users.NewRepo(dep.DB)
	api.Use(auth.WithUser(userRepo, dep.AuthClient))
	api.Use(middleware.RateLimitMiddleware(rate.Limit(20), 40))

	recorder := events.NewRedisRecorder(dep.Redis)

	queryRepo := repository.NewQueryRepo(dep.DB)
	visRepo := repository.NewVisualizationRepo(dep.DB)
	querySvc := service.NewQueryService(queryRepo, visRepo, recorder)
	querieshttp.Register(api, querySvc, session.NewManager())

	resultHandler := results.NewHandler(dep.ResultRepo, dep.Exporter, dep.ResultMaxAge)
	resultHandler.Register(api)

	dsRepo := datasources.NewRepo(dep.DB)
	pause := datasources.NewPauseState(dep.Redis)
	datasources.Register(api.Group("/data_sources"), dsRepo, pause)

	return r
}
