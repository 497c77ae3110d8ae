package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/models"
	"xui-shop-core/internal/services"
)

// Entitlements is the core surface exposed over HTTP
type Entitlements interface {
	Catalog() *catalog.Catalog
	Lookup(ctx context.Context, userID int64, serviceKey string) (*models.Inbound, models.ClientRecord, error)
	Link(ctx context.Context, userID int64, serviceKey string) (string, error)
	QRCode(ctx context.Context, userID int64, serviceKey string) ([]byte, error)
	Grant(ctx context.Context, userID int64, serviceKey string, days int) (*services.GrantResult, error)
	Reconcile(ctx context.Context) (models.SyncStats, error)
}

// Users is the read side of the local user registry
type Users interface {
	Get(ctx context.Context, telegramID int64) (*models.LocalUser, error)
	Count(ctx context.Context) (int64, error)
	CountWithVPN(ctx context.Context) (int64, error)
}

// Options configures the router
type Options struct {
	// Token enables bearer authentication when non-empty
	Token    string
	Gatherer prometheus.Gatherer
	// Users enables the registry routes when set
	Users   Users
	Release bool
}

// NewRouter builds the caller API
func NewRouter(svc Entitlements, opts Options, logger *logrus.Logger) *gin.Engine {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(Recovery(logger))
	router.Use(Logger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handler{svc: svc, users: opts.Users, logger: logger}

	protected := router.Group("")
	protected.Use(BearerAuth(opts.Token))
	{
		if opts.Gatherer != nil {
			protected.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
		}

		api := protected.Group("/api")
		api.GET("/services", h.listServices)
		api.POST("/reconcile", h.reconcile)
		if opts.Users != nil {
			api.GET("/registry/stats", h.registryStats)
			api.GET("/users/:tg_id", h.user)
		}

		users := api.Group("/users/:tg_id")
		{
			users.GET("/lookup", h.lookup)
			users.GET("/link", h.link)
			users.GET("/qr", h.qr)
			users.POST("/grant", h.grant)
		}
	}

	return router
}
