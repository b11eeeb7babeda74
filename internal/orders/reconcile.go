package orders

import (
	"context"
	"errors"
	"sort"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/logging"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

const reconcileAttempts = 3

// Reconcile recomputes a shop aggregate from its non-cancelled orders and
// replaces the stored one. A concurrent fold or subtract makes the replace
// fail its condition, in which case the recompute starts over.
func (s *Service) Reconcile(ctx context.Context, shopID string) (*ReconcileResult, error) {
	const op = "orders.Reconcile"
	if !validation.ValidID(shopID) {
		return nil, apperr.InvalidArgument(op, "malformed shop id %q", shopID)
	}

	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		res, err := s.reconcileOnce(ctx, shopID)
		if errors.Is(err, ErrAggregateChanged) {
			continue
		}
		if err != nil {
			return nil, apperr.Storage(op, err)
		}

		log := logging.FromCtx(ctx).With("shop_id", shopID)
		if drift := res.Drift(); drift != 0 {
			log.Warn("aggregate_drift_repaired", "before", res.Before.String(), "after", res.After.String())
			if s.metrics != nil {
				if err := s.metrics.Count(ctx, MetricDriftCents, shopID, float64(drift)); err != nil {
					log.Warn("metric_publish_failed", "metric", MetricDriftCents, "err", err)
				}
			}
		} else {
			log.Info("aggregate_in_sync", "total", res.After.String())
		}
		return res, nil
	}
	return nil, apperr.New(apperr.KindConflict, op, "aggregate for %s kept changing, retry later", shopID)
}

func (s *Service) reconcileOnce(ctx context.Context, shopID string) (*ReconcileResult, error) {
	cur, err := s.aggregates.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}
	list, err := s.orders.ListByShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OrderID < list[j].OrderID })

	next := &Aggregate{ShopID: shopID, Items: []Item{}}
	res := &ReconcileResult{ShopID: shopID}
	seen := ""
	if cur != nil {
		res.Before = cur.Total
		next.ShopName = cur.ShopName
		seen = cur.UpdatedAt
	}
	for _, o := range list {
		if o.Status == StatusCancelled {
			continue
		}
		next.ShopName = o.ShopName
		for _, it := range o.Items {
			it.OrderID = o.OrderID
			next.Items = append(next.Items, it)
		}
		next.Total += o.Total
		next.OrderIDs = append(next.OrderIDs, o.OrderID)
		res.Orders++
	}
	res.After = next.Total

	if err := s.aggregates.Replace(ctx, next, seen); err != nil {
		return nil, err
	}
	for _, o := range list {
		if o.Status != StatusCancelled && !o.AggregateApplied {
			if err := s.orders.MarkAggregateApplied(ctx, o.OrderID); err != nil {
				logging.FromCtx(ctx).Warn("mark_aggregate_applied_failed", "order_id", o.OrderID, "err", err)
			}
		}
	}
	return res, nil
}

// ApplyFold re-runs the aggregate fold for an order whose fold failed at
// placement. Cancelled orders are skipped.
func (s *Service) ApplyFold(ctx context.Context, orderID string) error {
	const op = "orders.ApplyFold"
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return apperr.Storage(op, err)
	}
	if o == nil {
		return apperr.NotFound(op, "order %s not found", orderID)
	}
	log := logging.FromCtx(ctx).With("order_id", orderID, "shop_id", o.ShopID)
	if o.Status == StatusCancelled {
		log.Info("fold_skipped_cancelled")
		return nil
	}

	_, err = s.aggregates.Fold(ctx, o)
	if err != nil && !errors.Is(err, ErrAlreadyFolded) {
		return apperr.Storage(op, err)
	}
	if err := s.orders.MarkAggregateApplied(ctx, orderID); err != nil {
		return apperr.Storage(op, err)
	}
	log.Info("fold_applied", "already_folded", err != nil)
	return nil
}
