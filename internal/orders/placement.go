package orders

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/cart"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/logging"
	"github.com/imrishuroy/go-shopflow/internal/money"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

type shopGroup struct {
	shop  *catalog.Shop
	lines []cart.Line
}

// PlaceOrder turns a priced cart snapshot into one CustomerOrder per shop,
// folds each into its shop aggregate and clears the ordered lines from the
// cart. Aggregate failures after an order is written are queued for repair
// rather than returned.
func (s *Service) PlaceOrder(ctx context.Context, customerID string, snapshot *cart.View, shipping Shipping) (*Placement, error) {
	const op = "orders.PlaceOrder"
	if !validation.ValidID(customerID) {
		return nil, apperr.InvalidArgument(op, "malformed customer id %q", customerID)
	}
	if snapshot == nil || snapshot.Empty() {
		return nil, apperr.InvalidArgument(op, "empty cart")
	}

	groups, err := s.groupByShop(ctx, op, snapshot.Lines)
	if err != nil {
		return nil, err
	}

	// Ids are allocated before any order is written so a counter failure
	// leaves nothing behind.
	ids := make([]string, len(groups))
	for i := range groups {
		seq, err := s.counter.Next(ctx, OrderCounter)
		if err != nil {
			return nil, apperr.Storage(op, err)
		}
		ids[i] = FormatOrderID(seq)
	}

	log := logging.FromCtx(ctx).With("customer_id", customerID)
	placement := &Placement{}
	for i, g := range groups {
		o := buildOrder(ids[i], customerID, g, shipping)
		if err := s.orders.Put(ctx, o); err != nil {
			if errors.Is(err, ErrOrderExists) {
				return nil, apperr.New(apperr.KindConflict, op, "order id %s already used", o.OrderID)
			}
			return nil, apperr.Storage(op, err)
		}
		log.Info("order_placed", "order_id", o.OrderID, "shop_id", o.ShopID, "total", o.Total.String(), "items", len(o.Items))

		if s.foldWithRetry(ctx, o) {
			o.AggregateApplied = true
		}

		// Lines leave the cart as soon as their order exists, so a failure on a
		// later shop cannot make a retry place this one again.
		ordered := make([]string, 0, len(g.lines))
		for _, l := range g.lines {
			ordered = append(ordered, l.ProductID)
		}
		cleared, err := s.carts.RemoveLines(ctx, customerID, ordered...)
		if err != nil {
			// The order stands; the lines stay in the cart for the customer to remove.
			log.Error("cart_clear_failed", "order_id", o.OrderID, "err", err)
		} else {
			placement.ClearedCart = cleared
		}

		placement.Orders = append(placement.Orders, *o)
		placement.Total += o.Total
	}
	return placement, nil
}

// groupByShop validates every line and resolves its shop before anything is
// written. Groups are ordered by shop id.
func (s *Service) groupByShop(ctx context.Context, op string, lines []cart.Line) ([]shopGroup, error) {
	byShop := map[string]*shopGroup{}
	var shopIDs []string
	for _, l := range lines {
		if l.Product == nil {
			return nil, apperr.InvalidArgument(op, "product %s is no longer available", l.ProductID)
		}
		if l.Product.ShopID == "" {
			return nil, apperr.InvalidArgument(op, "product %s has no shop", l.ProductID)
		}
		if l.Quantity < 1 {
			return nil, apperr.InvalidArgument(op, "quantity for %s must be positive", l.ProductID)
		}
		g, ok := byShop[l.Product.ShopID]
		if !ok {
			g = &shopGroup{}
			byShop[l.Product.ShopID] = g
			shopIDs = append(shopIDs, l.Product.ShopID)
		}
		g.lines = append(g.lines, l)
	}
	sort.Strings(shopIDs)

	groups := make([]shopGroup, 0, len(shopIDs))
	for _, id := range shopIDs {
		shop, err := s.shops.GetShop(ctx, id)
		if err != nil {
			return nil, apperr.Storage(op, err)
		}
		if shop == nil {
			return nil, apperr.NotFound(op, "shop %s not found", id)
		}
		g := byShop[id]
		g.shop = shop
		groups = append(groups, *g)
	}
	return groups, nil
}

func buildOrder(orderID, customerID string, g shopGroup, shipping Shipping) *CustomerOrder {
	o := &CustomerOrder{
		OrderID:       orderID,
		CustomerID:    customerID,
		ShopID:        g.shop.ShopID,
		ShopName:      g.shop.Name,
		Items:         make([]Item, 0, len(g.lines)),
		PaymentStatus: PaymentPaid,
		Status:        StatusProcessing,
		Shipping:      shipping,
	}
	for _, l := range g.lines {
		unit := l.UnitPrice
		if unit == 0 {
			unit = money.FromFloat(l.Product.Price)
		}
		discount := l.Product.Discount()
		it := Item{
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			Discount:  discount,
			LineTotal: money.LineTotal(l.Quantity, unit, discount),
		}
		o.Items = append(o.Items, it)
		o.Total += it.LineTotal
	}
	return o
}

// foldWithRetry applies the order to its aggregate, retrying transient
// failures. It reports whether the aggregate now includes the order.
func (s *Service) foldWithRetry(ctx context.Context, o *CustomerOrder) bool {
	log := logging.FromCtx(ctx).With("order_id", o.OrderID, "shop_id", o.ShopID)

	var err error
	delay := s.foldBackoff
	for attempt := 1; attempt <= s.foldAttempts; attempt++ {
		_, err = s.aggregates.Fold(ctx, o)
		if err == nil || errors.Is(err, ErrAlreadyFolded) {
			if merr := s.orders.MarkAggregateApplied(ctx, o.OrderID); merr != nil {
				log.Warn("mark_aggregate_applied_failed", "err", merr)
			}
			return true
		}
		log.Warn("aggregate_fold_failed", "attempt", attempt, "err", err)
		if attempt == s.foldAttempts || delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			attempt = s.foldAttempts
		case <-time.After(delay):
			delay *= 2
		}
	}

	s.requestRepair(ctx, MetricFoldFailed, RepairMessage{
		Kind:    RepairFold,
		ShopID:  o.ShopID,
		OrderID: o.OrderID,
		Reason:  err.Error(),
	})
	return false
}
