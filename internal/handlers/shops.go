package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/discovery"
	"github.com/imrishuroy/go-shopflow/internal/identity"
	"github.com/imrishuroy/go-shopflow/internal/orders"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

type ShopFinder interface {
	FindNearby(ctx context.Context, r discovery.Request) (*discovery.Page, error)
}

// ShopDirectory resolves shop ownership.
type ShopDirectory interface {
	GetShop(ctx context.Context, shopID string) (*catalog.Shop, error)
}

type ShopsHandler struct {
	finder ShopFinder
	shops  ShopDirectory
	orders OrderService
}

func NewShopsHandler(finder ShopFinder, shops ShopDirectory, svc OrderService) *ShopsHandler {
	return &ShopsHandler{finder: finder, shops: shops, orders: svc}
}

func (h *ShopsHandler) Register(g gin.IRoutes) {
	g.GET("/shops/nearby", h.Nearby)
	g.GET("/shops/:id/orders", h.Orders)
	g.GET("/shops/:id/aggregate", h.Aggregate)
	g.POST("/shops/:id/aggregate/reconcile", h.Reconcile)
}

type nearbyResponse struct {
	Success bool `json:"success"`
	*discovery.Page
}

func (h *ShopsHandler) Nearby(c *gin.Context) {
	req, err := discovery.ParseQuery(c.Request.URL.Query())
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.finder.FindNearby(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nearbyResponse{Success: true, Page: page})
}

func (h *ShopsHandler) Orders(c *gin.Context) {
	shopID, err := h.authorize(c, "handlers.ShopOrders")
	if err != nil {
		fail(c, err)
		return
	}
	list, err := h.orders.ListByShop(c.Request.Context(), shopID)
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []orders.CustomerOrder{}
	}
	ok(c, http.StatusOK, list)
}

func (h *ShopsHandler) Aggregate(c *gin.Context) {
	shopID, err := h.authorize(c, "handlers.ShopAggregate")
	if err != nil {
		fail(c, err)
		return
	}
	a, err := h.orders.GetAggregate(c.Request.Context(), shopID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (h *ShopsHandler) Reconcile(c *gin.Context) {
	shopID, err := h.authorize(c, "handlers.ReconcileAggregate")
	if err != nil {
		fail(c, err)
		return
	}
	res, err := h.orders.Reconcile(c.Request.Context(), shopID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// authorize admits admins and the shopkeeper who owns the :id shop.
func (h *ShopsHandler) authorize(c *gin.Context, op string) (string, error) {
	id, _ := identity.From(c)
	shopID := c.Param("id")
	if !validation.ValidID(shopID) {
		return "", apperr.InvalidArgument(op, "malformed shop id %q", shopID)
	}
	if id.IsAdmin() {
		return shopID, nil
	}
	if id.Role != identity.RoleShopkeeper {
		return "", apperr.Forbidden(op, "shop views require a shopkeeper or admin")
	}
	sh, err := h.shops.GetShop(c.Request.Context(), shopID)
	if err != nil {
		return "", apperr.Storage(op, err)
	}
	if sh == nil {
		return "", apperr.NotFound(op, "shop %s not found", shopID)
	}
	if sh.OwnerID != id.UserID {
		return "", apperr.Forbidden(op, "shop %s is owned by another shopkeeper", shopID)
	}
	return shopID, nil
}
