package orders

import (
	"context"
	"sort"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

// GetOrder returns a single order or NotFound.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*CustomerOrder, error) {
	const op = "orders.GetOrder"
	if !validation.ValidID(orderID) {
		return nil, apperr.InvalidArgument(op, "malformed order id %q", orderID)
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if o == nil {
		return nil, apperr.NotFound(op, "order %s not found", orderID)
	}
	return o, nil
}

// ListByCustomer returns a customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]CustomerOrder, error) {
	const op = "orders.ListByCustomer"
	if !validation.ValidID(customerID) {
		return nil, apperr.InvalidArgument(op, "malformed customer id %q", customerID)
	}
	list, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	newestFirst(list)
	return list, nil
}

// ListByShop returns a shop's orders, newest first.
func (s *Service) ListByShop(ctx context.Context, shopID string) ([]CustomerOrder, error) {
	const op = "orders.ListByShop"
	if !validation.ValidID(shopID) {
		return nil, apperr.InvalidArgument(op, "malformed shop id %q", shopID)
	}
	list, err := s.orders.ListByShop(ctx, shopID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	newestFirst(list)
	return list, nil
}

// GetAggregate returns the shop aggregate or NotFound when the shop has no
// outstanding orders.
func (s *Service) GetAggregate(ctx context.Context, shopID string) (*Aggregate, error) {
	const op = "orders.GetAggregate"
	if !validation.ValidID(shopID) {
		return nil, apperr.InvalidArgument(op, "malformed shop id %q", shopID)
	}
	a, err := s.aggregates.Get(ctx, shopID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if a == nil {
		return nil, apperr.NotFound(op, "no outstanding orders for shop %s", shopID)
	}
	return a, nil
}

func newestFirst(list []CustomerOrder) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].OrderID > list[j].OrderID
	})
}
