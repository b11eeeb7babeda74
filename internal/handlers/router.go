package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imrishuroy/go-shopflow/internal/identity"
)

// Deps groups everything the router wires together.
type Deps struct {
	Logger      *slog.Logger
	Verifier    *identity.Verifier
	Validator   *validatorv10.Validate
	Carts       CartEngine
	Orders      OrderService
	Finder      ShopFinder
	Shops       ShopDirectory
	Idempotency IdempotencyStore // optional

	// Registry defaults to a fresh registry so routers built in tests do not
	// collide on metric names.
	Registry *prometheus.Registry
}

func NewRouter(d Deps) *gin.Engine {
	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := gin.New()
	r.Use(gin.Recovery(), NewHTTPMetrics(reg).Middleware(), RequestLogger(d.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/", identity.Require(d.Verifier))
	NewCartHandler(d.Carts, d.Validator).Register(api)
	NewOrdersHandler(d.Orders, d.Carts, d.Idempotency, d.Validator).Register(api)
	NewShopsHandler(d.Finder, d.Shops, d.Orders).Register(api)
	api.POST("/signup/validate", ValidateSignup)

	return r
}
