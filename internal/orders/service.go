package orders

import (
	"context"
	"time"

	"github.com/imrishuroy/go-shopflow/internal/cart"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/logging"
)

// Metric names published when the aggregate drifts from its orders.
const (
	MetricFoldFailed     = "AggregateFoldFailed"
	MetricSubtractFailed = "AggregateSubtractFailed"
	MetricDriftCents     = "AggregateDriftCents"
)

// Shops resolves shop display names at placement time.
type Shops interface {
	GetShop(ctx context.Context, shopID string) (*catalog.Shop, error)
}

// Carts clears the lines that were turned into orders.
type Carts interface {
	RemoveLines(ctx context.Context, customerID string, productIDs ...string) (*cart.View, error)
}

// RepairQueue receives RepairMessages for the worker.
type RepairQueue interface {
	Send(ctx context.Context, payload any, attributes map[string]string) error
}

// Metrics records operational counters.
type Metrics interface {
	Count(ctx context.Context, name, shopID string, value float64) error
}

// Service places, cancels and reconciles orders.
type Service struct {
	orders     *Store
	aggregates *AggregateStore
	counter    *Counter
	shops      Shops
	carts      Carts
	queue      RepairQueue
	metrics    Metrics

	foldAttempts int
	foldBackoff  time.Duration
}

type Option func(*Service)

// WithRepairQueue sets where failed folds and reconcile requests are sent.
func WithRepairQueue(q RepairQueue) Option { return func(s *Service) { s.queue = q } }

func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithFoldRetry sets how many times placement tries the aggregate fold and
// the base delay between tries (doubled each time).
func WithFoldRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.foldAttempts = attempts
		}
		s.foldBackoff = backoff
	}
}

func NewService(orders *Store, aggregates *AggregateStore, counter *Counter, shops Shops, carts Carts, opts ...Option) *Service {
	s := &Service{
		orders:       orders,
		aggregates:   aggregates,
		counter:      counter,
		shops:        shops,
		carts:        carts,
		foldAttempts: 3,
		foldBackoff:  50 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// requestRepair queues msg and counts metric. Both are best effort; the
// caller has already committed the order. The send outlives a cancelled
// request context.
func (s *Service) requestRepair(ctx context.Context, metric string, msg RepairMessage) {
	ctx = context.WithoutCancel(ctx)
	log := logging.FromCtx(ctx).With("shop_id", msg.ShopID, "order_id", msg.OrderID, "repair", msg.Kind)

	if s.metrics != nil && metric != "" {
		if err := s.metrics.Count(ctx, metric, msg.ShopID, 1); err != nil {
			log.Warn("metric_publish_failed", "metric", metric, "err", err)
		}
	}
	if s.queue == nil {
		log.Error("aggregate_repair_needed", "reason", msg.Reason, "queued", false)
		return
	}
	attrs := map[string]string{"kind": string(msg.Kind), "shop_id": msg.ShopID}
	if err := s.queue.Send(ctx, msg, attrs); err != nil {
		log.Error("aggregate_repair_enqueue_failed", "reason", msg.Reason, "err", err)
		return
	}
	log.Warn("aggregate_repair_queued", "reason", msg.Reason)
}
