package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "valuation-backend/internal/auth"
	"valuation-backend/internal/shared/config"
	"valuation-backend/internal/shared/metrics"
	"valuation-backend/internal/shared/server/middleware"
	"valuation-backend/internal/shared/server/respond"
	"valuation-backend/internal/usage"
	"valuation-backend/internal/users"
	"valuation-backend/internal/valuations"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config           config.Config
	ValuationHandler *valuations.Handler
	UsageHandler     *usage.Handler
	UserHandler      *users.Handler
	GoogleAuth       *googleauth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.Env),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.UserHandler != nil {
		api.GET("/me", deps.UserHandler.Me)
		api.PUT("/me", deps.UserHandler.UpdateMe)
	}
	if deps.UsageHandler != nil {
		api.GET("/usage", deps.UsageHandler.Status)
	}
	if deps.ValuationHandler != nil {
		deps.ValuationHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
