package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-shopflow/internal/cart"
	"github.com/imrishuroy/go-shopflow/internal/identity"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

// CartEngine is the cart surface the HTTP layer drives.
type CartEngine interface {
	AddItem(ctx context.Context, customerID, productID string, quantity int) (*cart.View, error)
	GetCart(ctx context.Context, customerID string) (*cart.View, error)
	UpdateQuantity(ctx context.Context, customerID, productID string, quantity int) (*cart.View, error)
	RemoveItem(ctx context.Context, customerID, productID string) (*cart.View, error)
	Clear(ctx context.Context, customerID string) (*cart.View, error)
}

type CartHandler struct {
	carts CartEngine
	v     *validatorv10.Validate
}

func NewCartHandler(carts CartEngine, v *validatorv10.Validate) *CartHandler {
	return &CartHandler{carts: carts, v: v}
}

func (h *CartHandler) Register(g gin.IRoutes) {
	g.POST("/cart/items", h.AddItem)
	g.GET("/cart", h.Get)
	g.PUT("/cart/items/:productId", h.UpdateQuantity)
	g.DELETE("/cart/items/:productId", h.RemoveItem)
	g.DELETE("/cart", h.Clear)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req validation.AddItemRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	id, _ := identity.From(c)
	view, err := h.carts.AddItem(c.Request.Context(), id.UserID, req.ProductID, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

func (h *CartHandler) Get(c *gin.Context) {
	id, _ := identity.From(c)
	view, err := h.carts.GetCart(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	var req validation.UpdateQuantityRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	id, _ := identity.From(c)
	view, err := h.carts.UpdateQuantity(c.Request.Context(), id.UserID, c.Param("productId"), req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	id, _ := identity.From(c)
	view, err := h.carts.RemoveItem(c.Request.Context(), id.UserID, c.Param("productId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

func (h *CartHandler) Clear(c *gin.Context) {
	id, _ := identity.From(c)
	view, err := h.carts.Clear(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}
