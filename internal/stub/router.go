// Package stub implements a local development backend that serves the CRM
// list protocol from a SQL store. crmctl and the integration tests run
// against it.
package stub

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/crm-client/pkg/crm"
	"github.com/Sternrassler/crm-client/pkg/metrics"
)

// APIPrefix is the path under which the entity routes are mounted.
const APIPrefix = "/api"

// MaxPerPage caps the per_page parameter.
const MaxPerPage = 100

// Lister is the storage the stub reads from. *store.Store implements it.
type Lister interface {
	List(ctx context.Context, entity string, filter map[string]string, page, perPage int) ([]any, int, error)
	Ping(ctx context.Context) error
}

// Config configures the stub router.
type Config struct {
	// JWTSecret enables HS256 bearer authentication on the API routes.
	JWTSecret string

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string

	// Throttle is the allowed requests per minute on the API routes, 0 disables.
	Throttle int

	Logger zerolog.Logger
}

// NewRouter builds the gin engine serving health, metrics and the entity
// list routes.
func NewRouter(store Lister, cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(cfg.Logger), gin.Recovery(), cors.New(corsConfig(cfg.CORSOrigins)), countRequests())

	if err := r.SetTrustedProxies(nil); err != nil {
		cfg.Logger.Warn().Err(err).Msg("Failed to set trusted proxies")
	}

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "route not found")
	})

	r.GET("/health", health(store))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(APIPrefix)
	if cfg.Throttle > 0 {
		api.Use(Throttle(cfg.Throttle))
	}
	if cfg.JWTSecret != "" {
		api.Use(RequireBearer([]byte(cfg.JWTSecret)))
	}

	for _, name := range crm.Names() {
		d, _ := crm.Lookup(name)
		h := listHandler(store, d)
		api.GET(d.Endpoints.Listing, h)
		api.GET(d.Endpoints.Search, h)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Accept", "Authorization", "Content-Type", HeaderRequestID, "If-None-Match"}
	cfg.ExposeHeaders = []string{HeaderRequestID, "ETag", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func health(store Lister) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// fail writes the error envelope and aborts the chain.
func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": message})
}
