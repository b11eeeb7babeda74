package orders

import (
	"context"
	"errors"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/logging"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

// CancelOrder moves the order to Cancelled and subtracts its total from the
// shop aggregate. A second cancel fails with InvalidState and touches
// nothing. Aggregate trouble is logged and queued for reconciliation; the
// cancellation itself still succeeds.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*CustomerOrder, error) {
	const op = "orders.CancelOrder"
	if !validation.ValidID(orderID) {
		return nil, apperr.InvalidArgument(op, "malformed order id %q", orderID)
	}

	cur, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if cur == nil {
		return nil, apperr.NotFound(op, "order %s not found", orderID)
	}
	if cur.Status == StatusCancelled {
		return nil, apperr.InvalidState(op, "already cancelled")
	}
	if !CanTransition(cur.Status, StatusCancelled) {
		return nil, apperr.InvalidState(op, "cannot cancel an order that is %s", cur.Status)
	}

	o, err := s.orders.Transition(ctx, orderID, StatusCancelled)
	if errors.Is(err, ErrStatusMismatch) {
		// Lost a race with another cancel or a delivery.
		return nil, apperr.InvalidState(op, "already cancelled")
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	log := logging.FromCtx(ctx).With("order_id", o.OrderID, "shop_id", o.ShopID)
	log.Info("order_cancelled", "total", o.Total.String())

	agg, err := s.aggregates.Subtract(ctx, o)
	switch {
	case err == nil && agg == nil:
		log.Info("aggregate_deleted")
	case err == nil:
		log.Info("aggregate_decremented", "aggregate_total", agg.Total.String())
	case !o.AggregateApplied && (errors.Is(err, ErrNotFolded) || errors.Is(err, ErrAggregateMissing)):
		// Its fold is still queued; the worker skips cancelled orders.
		log.Info("aggregate_fold_pending")
	case errors.Is(err, ErrAggregateMissing), errors.Is(err, ErrNotFolded):
		s.requestRepair(ctx, "", RepairMessage{Kind: RepairReconcile, ShopID: o.ShopID, OrderID: o.OrderID, Reason: err.Error()})
	default:
		s.requestRepair(ctx, MetricSubtractFailed, RepairMessage{Kind: RepairReconcile, ShopID: o.ShopID, OrderID: o.OrderID, Reason: err.Error()})
	}
	return o, nil
}
