package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/cart"
	"github.com/imrishuroy/go-shopflow/internal/idempotency"
	"github.com/imrishuroy/go-shopflow/internal/identity"
	"github.com/imrishuroy/go-shopflow/internal/logging"
	"github.com/imrishuroy/go-shopflow/internal/orders"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// OrderService is the order surface the HTTP layer drives.
type OrderService interface {
	PlaceOrder(ctx context.Context, customerID string, snapshot *cart.View, shipping orders.Shipping) (*orders.Placement, error)
	GetOrder(ctx context.Context, orderID string) (*orders.CustomerOrder, error)
	ListByCustomer(ctx context.Context, customerID string) ([]orders.CustomerOrder, error)
	ListByShop(ctx context.Context, shopID string) ([]orders.CustomerOrder, error)
	CancelOrder(ctx context.Context, orderID string) (*orders.CustomerOrder, error)
	GetAggregate(ctx context.Context, shopID string) (*orders.Aggregate, error)
	Reconcile(ctx context.Context, shopID string) (*orders.ReconcileResult, error)
}

// IdempotencyStore remembers POST /orders responses per Idempotency-Key.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, owner, requestHash string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

type OrdersHandler struct {
	orders OrderService
	carts  CartEngine
	idemp  IdempotencyStore // optional
	v      *validatorv10.Validate
}

func NewOrdersHandler(svc OrderService, carts CartEngine, idemp IdempotencyStore, v *validatorv10.Validate) *OrdersHandler {
	return &OrdersHandler{orders: svc, carts: carts, idemp: idemp, v: v}
}

func (h *OrdersHandler) Register(g gin.IRoutes) {
	g.POST("/orders", h.Place)
	g.GET("/orders", h.List)
	g.GET("/orders/:id", h.Get)
	g.PUT("/orders/:id/cancel", h.Cancel)
}

// Place turns the caller's current cart into orders. With an
// Idempotency-Key header a retried request replays the first response
// instead of placing again.
func (h *OrdersHandler) Place(c *gin.Context) {
	const op = "handlers.PlaceOrder"
	ctx := c.Request.Context()
	id, _ := identity.From(c)

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, apperr.InvalidArgument(op, "unreadable body"))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var req validation.PlaceOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	clientKey := c.GetHeader(idempotencyHeader)
	if clientKey == "" || h.idemp == nil {
		status, body, err := h.place(ctx, id.UserID, req.Shipping)
		if err != nil {
			fail(c, err)
			return
		}
		c.Data(status, gin.MIMEJSON, body)
		return
	}
	if !validation.ValidID(clientKey) {
		fail(c, apperr.InvalidArgument(op, "malformed %s header", idempotencyHeader))
		return
	}

	key := idempotency.Key(id.UserID, clientKey)
	hash := idempotency.HashRequest(raw)
	log := logging.From(c).With("idempotency_key", clientKey)

	created, err := h.idemp.CreateIfNotExists(ctx, key, id.UserID, hash)
	if err != nil {
		fail(c, apperr.Storage(op, err))
		return
	}
	if !created {
		h.replay(c, key, hash)
		return
	}

	status, body, err := h.place(ctx, id.UserID, req.Shipping)
	if err != nil {
		if merr := h.idemp.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.Warn("idempotency_mark_failed_error", "err", merr)
		}
		fail(c, err)
		return
	}
	if err := h.idemp.MarkDone(ctx, key, string(body), status); err != nil {
		// The orders exist; a retry will see IN_PROGRESS until the key expires.
		log.Error("idempotency_mark_done_error", "err", err)
	}
	c.Data(status, gin.MIMEJSON, body)
}

func (h *OrdersHandler) place(ctx context.Context, customerID string, s validation.Shipping) (int, []byte, error) {
	snapshot, err := h.carts.GetCart(ctx, customerID)
	if err != nil {
		return 0, nil, err
	}
	placement, err := h.orders.PlaceOrder(ctx, customerID, snapshot, orders.Shipping{
		FullName:   s.FullName,
		Phone:      s.Phone,
		Address:    s.Address,
		City:       s.City,
		PostalCode: s.PostalCode,
		Country:    s.Country,
		Lat:        s.Lat,
		Lng:        s.Lng,
	})
	if err != nil {
		return 0, nil, err
	}
	body, err := json.Marshal(gin.H{"success": true, "data": placement})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal placement: %w", err)
	}
	return http.StatusCreated, body, nil
}

func (h *OrdersHandler) replay(c *gin.Context, key, hash string) {
	const op = "handlers.PlaceOrder"
	rec, err := h.idemp.Get(c.Request.Context(), key)
	if err != nil {
		fail(c, apperr.Storage(op, err))
		return
	}
	switch {
	case rec == nil:
		fail(c, apperr.New(apperr.KindConflict, op, "idempotency key changed state, retry"))
	case rec.RequestHash != hash:
		fail(c, apperr.New(apperr.KindConflict, op, "idempotency key reused with a different request"))
	case rec.Status == idempotency.StatusDone:
		c.Header(replayedHeader, "true")
		c.Data(rec.ResponseStatus, gin.MIMEJSON, []byte(rec.ResponseBody))
	default:
		fail(c, apperr.New(apperr.KindConflict, op, "request with this idempotency key is in progress"))
	}
}

func (h *OrdersHandler) List(c *gin.Context) {
	id, _ := identity.From(c)
	list, err := h.orders.ListByCustomer(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []orders.CustomerOrder{}
	}
	ok(c, http.StatusOK, list)
}

func (h *OrdersHandler) Get(c *gin.Context) {
	o, err := h.owned(c, "handlers.GetOrder")
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

func (h *OrdersHandler) Cancel(c *gin.Context) {
	const op = "handlers.CancelOrder"
	o, err := h.owned(c, op)
	if err != nil {
		fail(c, err)
		return
	}
	cancelled, err := h.orders.CancelOrder(c.Request.Context(), o.OrderID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, cancelled)
}

// owned loads the :id order and checks the caller may act on it. Admins
// may act on any order.
func (h *OrdersHandler) owned(c *gin.Context, op string) (*orders.CustomerOrder, error) {
	id, _ := identity.From(c)
	o, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if o.CustomerID != id.UserID && !id.IsAdmin() {
		return nil, apperr.Forbidden(op, "order %s belongs to another customer", o.OrderID)
	}
	return o, nil
}
