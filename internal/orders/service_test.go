package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/cart"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/dynamotest"
	"github.com/imrishuroy/go-shopflow/internal/money"
)

type recordingQueue struct {
	mu   sync.Mutex
	msgs []RepairMessage
}

func (q *recordingQueue) Send(ctx context.Context, payload any, attributes map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, payload.(RepairMessage))
	return nil
}

func (q *recordingQueue) kinds() []RepairKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []RepairKind
	for _, m := range q.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	values map[string]float64
}

func (m *recordingMetrics) Count(ctx context.Context, name, shopID string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]float64{}
	}
	m.values[name] += value
	return nil
}

type harness struct {
	fake    *dynamotest.Fake
	carts   *cart.Engine
	svc     *Service
	aggs    *AggregateStore
	queue   *recordingQueue
	metrics *recordingMetrics
}

func newHarness(t *testing.T, extra ...Option) *harness {
	t.Helper()
	fake := dynamotest.New().
		CreateTable("carts", "customer_id").
		CreateTable("products", "product_id").
		CreateTable("shops", "shop_id").
		CreateTable("orders", "order_id").
		CreateTable("aggregates", "shop_id").
		CreateTable("counters", "counter_name")

	cat := catalog.NewStore(fake, "products", "shops")
	ctx := context.Background()
	require.NoError(t, cat.PutShop(ctx, catalog.Shop{ShopID: "s1", Name: "Green Grocer", Lat: 12.97, Lng: 77.59}))
	require.NoError(t, cat.PutShop(ctx, catalog.Shop{ShopID: "s2", Name: "Corner Bakery", Lat: 12.98, Lng: 77.60}))
	require.NoError(t, cat.PutProduct(ctx, catalog.Product{ProductID: "apple", ShopID: "s1", Name: "Apple", Price: 2.00}))
	require.NoError(t, cat.PutProduct(ctx, catalog.Product{ProductID: "melon", ShopID: "s1", Name: "Melon", Price: 10.00}))
	require.NoError(t, cat.PutProduct(ctx, catalog.Product{ProductID: "bread", ShopID: "s2", Name: "Bread", Price: 3.50}))
	require.NoError(t, cat.PutProduct(ctx, catalog.Product{ProductID: "orphan", ShopID: "s9", Name: "Orphan", Price: 1}))

	carts := cart.NewEngine(cart.NewStore(fake, "carts"), cat)
	aggs := NewAggregateStore(fake, "aggregates")
	q := &recordingQueue{}
	m := &recordingMetrics{}
	opts := append([]Option{WithRepairQueue(q), WithMetrics(m), WithFoldRetry(2, 0)}, extra...)
	svc := NewService(NewStore(fake, "orders"), aggs, NewCounter(fake, "counters"), cat, carts, opts...)
	return &harness{fake: fake, carts: carts, svc: svc, aggs: aggs, queue: q, metrics: m}
}

func (h *harness) fill(t *testing.T, customerID string, lines map[string]int) *cart.View {
	t.Helper()
	var v *cart.View
	for pid, q := range lines {
		var err error
		v, err = h.carts.AddItem(context.Background(), customerID, pid, q)
		require.NoError(t, err)
	}
	return v
}

func (h *harness) place(t *testing.T, customerID string, lines map[string]int) *Placement {
	t.Helper()
	snap := h.fill(t, customerID, lines)
	p, err := h.svc.PlaceOrder(context.Background(), customerID, snap, Shipping{FullName: "A", City: "B"})
	require.NoError(t, err)
	return p
}

func (h *harness) aggregateTotal(t *testing.T, shopID string) (money.Cents, bool) {
	t.Helper()
	a, err := h.aggs.Get(context.Background(), shopID)
	require.NoError(t, err)
	if a == nil {
		return 0, false
	}
	return a.Total, true
}

func TestPlaceOrder_ScenarioTenDollars(t *testing.T) {
	h := newHarness(t)

	p := h.place(t, "c1", map[string]int{"apple": 5})

	require.Len(t, p.Orders, 1)
	o := p.Orders[0]
	assert.Equal(t, "ORDER-000001", o.OrderID)
	assert.Equal(t, money.Cents(1000), o.Total)
	assert.Equal(t, money.Cents(1000), p.Total)
	assert.Equal(t, "Green Grocer", o.ShopName)
	assert.Equal(t, StatusProcessing, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.True(t, o.AggregateApplied)
	require.Len(t, o.Items, 1)
	assert.Equal(t, money.Cents(200), o.Items[0].UnitPrice)

	total, ok := h.aggregateTotal(t, "s1")
	require.True(t, ok)
	assert.Equal(t, money.Cents(1000), total)

	require.NotNil(t, p.ClearedCart)
	assert.True(t, p.ClearedCart.Empty())
	v, err := h.carts.GetCart(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, v.Empty())

	stored, err := h.svc.GetOrder(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.True(t, stored.AggregateApplied)

	_, err = h.svc.CancelOrder(context.Background(), o.OrderID)
	require.NoError(t, err)
	_, ok = h.aggregateTotal(t, "s1")
	assert.False(t, ok, "aggregate must be deleted once its total is exactly zero")
}

func TestPlaceOrder_TotalEqualsSumOfLines(t *testing.T) {
	h := newHarness(t)

	p := h.place(t, "c1", map[string]int{"apple": 3, "melon": 2})

	require.Len(t, p.Orders, 1)
	var sum money.Cents
	for _, it := range p.Orders[0].Items {
		sum += money.Cents(it.Quantity) * it.UnitPrice
	}
	assert.Equal(t, sum, p.Orders[0].Total)
	assert.Equal(t, money.Cents(2600), sum)
}

func TestTwoOrdersThenCancelOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.place(t, "c1", map[string]int{"melon": 1})
	h.place(t, "c2", map[string]int{"melon": 1})

	total, ok := h.aggregateTotal(t, "s1")
	require.True(t, ok)
	assert.Equal(t, money.Cents(2000), total)

	a, err := h.aggs.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, a.Items, 2)
	assert.ElementsMatch(t, []string{"ORDER-000001", "ORDER-000002"}, a.OrderIDs)

	_, err = h.svc.CancelOrder(ctx, first.Orders[0].OrderID)
	require.NoError(t, err)

	total, ok = h.aggregateTotal(t, "s1")
	require.True(t, ok, "aggregate must survive while its total is positive")
	assert.Equal(t, money.Cents(1000), total)
}

func TestCancelOrder_TwiceIsInvalidStateWithoutMutation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p1 := h.place(t, "c1", map[string]int{"melon": 1})
	h.place(t, "c2", map[string]int{"melon": 1})

	_, err := h.svc.CancelOrder(ctx, p1.Orders[0].OrderID)
	require.NoError(t, err)
	before := h.fake.Item("aggregates", "s1")
	updates := h.fake.Calls["UpdateItem"]

	_, err = h.svc.CancelOrder(ctx, p1.Orders[0].OrderID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Equal(t, before, h.fake.Item("aggregates", "s1"))
	assert.Equal(t, updates, h.fake.Calls["UpdateItem"])
}

func TestCancelOrder_NotFoundAndTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CancelOrder(ctx, "ORDER-999999")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = h.svc.CancelOrder(ctx, "not an id")
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	p := h.place(t, "c1", map[string]int{"apple": 1})
	_, err = h.svc.orders.Transition(ctx, p.Orders[0].OrderID, StatusDelivered)
	require.NoError(t, err)

	_, err = h.svc.CancelOrder(ctx, p.Orders[0].OrderID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestCancelOrder_MissingAggregateIsTolerated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.place(t, "c1", map[string]int{"apple": 1})
	require.NoError(t, h.aggs.deleteIfZero(ctx, "s1"), "not zero, so kept")
	require.Equal(t, 1, h.fake.Len("aggregates"))
	require.NoError(t, h.aggs.Replace(ctx, &Aggregate{ShopID: "s1"}, mustAggregate(t, h, "s1").UpdatedAt))
	require.Equal(t, 0, h.fake.Len("aggregates"))

	o, err := h.svc.CancelOrder(ctx, p.Orders[0].OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, []RepairKind{RepairReconcile}, h.queue.kinds())
	_, ok := h.aggregateTotal(t, "s1")
	assert.False(t, ok)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.PlaceOrder(ctx, "c1", &cart.View{}, Shipping{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument), "empty cart")

	snap := &cart.View{Lines: []cart.Line{{ProductID: "gone", Quantity: 1}}}
	_, err = h.svc.PlaceOrder(ctx, "c1", snap, Shipping{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument), "unresolved product")

	snap = h.fill(t, "c1", map[string]int{"apple": 1, "orphan": 1})
	_, err = h.svc.PlaceOrder(ctx, "c1", snap, Shipping{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown shop")

	assert.Equal(t, 0, h.fake.Len("orders"), "nothing is written when validation fails")
	assert.Equal(t, 0, h.fake.Len("counters"))
}

func TestPlaceOrder_MixedCartSplitsPerShop(t *testing.T) {
	h := newHarness(t)

	p := h.place(t, "c1", map[string]int{"apple": 2, "bread": 2})

	require.Len(t, p.Orders, 2)
	assert.Equal(t, "s1", p.Orders[0].ShopID)
	assert.Equal(t, "s2", p.Orders[1].ShopID)
	assert.NotEqual(t, p.Orders[0].OrderID, p.Orders[1].OrderID)
	assert.Equal(t, money.Cents(400+700), p.Total)

	t1, _ := h.aggregateTotal(t, "s1")
	t2, _ := h.aggregateTotal(t, "s2")
	assert.Equal(t, money.Cents(400), t1)
	assert.Equal(t, money.Cents(700), t2)
	assert.True(t, p.ClearedCart.Empty())
}

func TestPlaceOrder_FoldFailureIsQueuedAndRepaired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fake.Fail = func(op, table string) error {
		if op == "UpdateItem" && table == "aggregates" {
			return errors.New("throttled")
		}
		return nil
	}
	p := h.place(t, "c1", map[string]int{"apple": 5})
	h.fake.Fail = nil

	o := p.Orders[0]
	assert.False(t, o.AggregateApplied)
	assert.Equal(t, []RepairKind{RepairFold}, h.queue.kinds())
	assert.Equal(t, float64(1), h.metrics.values[MetricFoldFailed])
	_, ok := h.aggregateTotal(t, "s1")
	assert.False(t, ok)

	require.NoError(t, h.svc.ApplyFold(ctx, o.OrderID))
	require.NoError(t, h.svc.ApplyFold(ctx, o.OrderID), "redelivered message")

	total, ok := h.aggregateTotal(t, "s1")
	require.True(t, ok)
	assert.Equal(t, money.Cents(1000), total)

	stored, err := h.svc.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.True(t, stored.AggregateApplied)
}

func TestApplyFold_SkipsCancelledOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fake.Fail = func(op, table string) error {
		if op == "UpdateItem" && table == "aggregates" {
			return errors.New("throttled")
		}
		return nil
	}
	p := h.place(t, "c1", map[string]int{"apple": 5})
	h.fake.Fail = nil

	_, err := h.svc.CancelOrder(ctx, p.Orders[0].OrderID)
	require.NoError(t, err)
	require.NoError(t, h.svc.ApplyFold(ctx, p.Orders[0].OrderID))

	_, ok := h.aggregateTotal(t, "s1")
	assert.False(t, ok)
}

func TestFold_IsIdempotentPerOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	o := &CustomerOrder{OrderID: "ORDER-000042", ShopID: "s1", ShopName: "Green Grocer", Total: 750,
		Items: []Item{{ProductID: "apple", Name: "Apple", Quantity: 3, UnitPrice: 250, LineTotal: 750}}}
	_, err := h.aggs.Fold(ctx, o)
	require.NoError(t, err)
	_, err = h.aggs.Fold(ctx, o)
	assert.ErrorIs(t, err, ErrAlreadyFolded)

	total, _ := h.aggregateTotal(t, "s1")
	assert.Equal(t, money.Cents(750), total)
}

func TestSubtract_FloorsAtZeroAndDeletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	small := &CustomerOrder{OrderID: "ORDER-000001", ShopID: "s1", Total: 300}
	_, err := h.aggs.Fold(ctx, small)
	require.NoError(t, err)

	// An order claiming more than the aggregate holds.
	big := &CustomerOrder{OrderID: "ORDER-000002", ShopID: "s1", Total: 1000}
	_, err = h.aggs.Fold(ctx, big)
	require.NoError(t, err)
	require.NoError(t, h.aggs.Replace(ctx, &Aggregate{ShopID: "s1", Total: 500, OrderIDs: []string{"ORDER-000001", "ORDER-000002"}}, mustAggregate(t, h, "s1").UpdatedAt))

	a, err := h.aggs.Subtract(ctx, big)
	require.NoError(t, err)
	assert.Nil(t, a, "floored to zero, so deleted")
	_, ok := h.aggregateTotal(t, "s1")
	assert.False(t, ok)

	_, err = h.aggs.Subtract(ctx, small)
	assert.ErrorIs(t, err, ErrAggregateMissing)
}

func TestReconcile_RepairsDrift(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p1 := h.place(t, "c1", map[string]int{"melon": 1})
	h.place(t, "c2", map[string]int{"apple": 5})
	require.NoError(t, h.aggs.Replace(ctx, &Aggregate{ShopID: "s1", Total: 123, OrderIDs: []string{"x"}}, mustAggregate(t, h, "s1").UpdatedAt))

	res, err := h.svc.Reconcile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(123), res.Before)
	assert.Equal(t, money.Cents(2000), res.After)
	assert.Equal(t, 2, res.Orders)
	assert.Equal(t, float64(2000-123), h.metrics.values[MetricDriftCents])

	_, err = h.svc.CancelOrder(ctx, p1.Orders[0].OrderID)
	require.NoError(t, err)
	res, err = h.svc.Reconcile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, res.Before, res.After)
	assert.Equal(t, money.Cents(1000), res.After)
}

func TestReconcile_DeletesWhenNothingOutstanding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.aggs.Replace(ctx, &Aggregate{ShopID: "s2", Total: 999, OrderIDs: []string{"ghost"}}, ""))

	res, err := h.svc.Reconcile(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), res.After)
	_, ok := h.aggregateTotal(t, "s2")
	assert.False(t, ok)
}

func TestPlaceOrder_ConcurrentPlacementsGetDistinctIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 10
	snaps := make([]*cart.View, n)
	for i := range snaps {
		snaps[i] = h.fill(t, fmt.Sprintf("c%d", i), map[string]int{"apple": 1})
	}

	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := h.svc.PlaceOrder(ctx, fmt.Sprintf("c%d", i), snaps[i], Shipping{})
			errs[i] = err
			if err == nil {
				ids[i] = p.Orders[0].OrderID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "duplicate id %s", ids[i])
		seen[ids[i]] = true
	}
	total, _ := h.aggregateTotal(t, "s1")
	assert.Equal(t, money.Cents(n*200), total)
}

func TestListings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.place(t, "c1", map[string]int{"apple": 1})
	h.place(t, "c1", map[string]int{"bread": 1})
	h.place(t, "c2", map[string]int{"apple": 1})

	mine, err := h.svc.ListByCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	shop, err := h.svc.ListByShop(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, shop, 2)

	_, err = h.svc.GetAggregate(ctx, "s9")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusDelivered, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, true},
		{StatusShipped, StatusProcessing, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCounter(t *testing.T) {
	fake := dynamotest.New().CreateTable("counters", "counter_name")
	c := NewCounter(fake, "counters")

	for want := int64(1); want <= 3; want++ {
		got, err := c.Next(context.Background(), OrderCounter)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, "ORDER-000042", FormatOrderID(42))
}

func mustAggregate(t *testing.T, h *harness, shopID string) *Aggregate {
	t.Helper()
	a, err := h.aggs.Get(context.Background(), shopID)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func TestCancelOrder_PendingFoldQueuesNothingExtra(t *testing.T) {
	h := newHarness(t)

	h.fake.Fail = func(op, table string) error {
		if op == "UpdateItem" && table == "aggregates" {
			return errors.New("throttled")
		}
		return nil
	}
	p := h.place(t, "c1", map[string]int{"apple": 1})
	h.fake.Fail = nil

	_, err := h.svc.CancelOrder(context.Background(), p.Orders[0].OrderID)
	require.NoError(t, err)
	assert.Equal(t, []RepairKind{RepairFold}, h.queue.kinds())
}

func TestPlaceOrder_PartialFailureLeavesNothingToPlaceTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fill(t, "c1", map[string]int{"apple": 5, "bread": 2})

	puts := 0
	h.fake.Fail = func(op, table string) error {
		if op == "PutItem" && table == "orders" {
			puts++
			if puts == 2 {
				return errors.New("throttled")
			}
		}
		return nil
	}
	snap, err := h.carts.GetCart(ctx, "c1")
	require.NoError(t, err)
	_, err = h.svc.PlaceOrder(ctx, "c1", snap, Shipping{FullName: "A"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	h.fake.Fail = nil

	// the s1 order was committed, so its lines are gone from the cart
	snap, err = h.carts.GetCart(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "bread", snap.Lines[0].ProductID)

	p, err := h.svc.PlaceOrder(ctx, "c1", snap, Shipping{FullName: "A"})
	require.NoError(t, err)
	require.Len(t, p.Orders, 1)
	assert.Equal(t, "s2", p.Orders[0].ShopID)

	s1Orders, err := h.svc.ListByShop(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s1Orders, 1)
	total, _ := h.aggregateTotal(t, "s1")
	assert.Equal(t, money.Cents(1000), total)
	total, _ = h.aggregateTotal(t, "s2")
	assert.Equal(t, money.Cents(700), total)
}

func TestPlaceOrder_AppliesLineDiscount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cat := catalog.NewStore(h.fake, "products", "shops")
	require.NoError(t, cat.PutProduct(ctx, catalog.Product{
		ProductID: "promo", ShopID: "s1", Name: "Promo Pack", Price: 7.50, OriginalPrice: 10, DiscountPct: 20,
	}))

	snap := h.fill(t, "c1", map[string]int{"promo": 2, "apple": 1})
	assert.Equal(t, money.Cents(1200+200), snap.Subtotal)

	p, err := h.svc.PlaceOrder(ctx, "c1", snap, Shipping{FullName: "A"})
	require.NoError(t, err)
	require.Len(t, p.Orders, 1)

	var promo Item
	for _, it := range p.Orders[0].Items {
		if it.ProductID == "promo" {
			promo = it
		}
	}
	assert.Equal(t, money.Cents(750), promo.UnitPrice, "unit price is the list price before the line discount")
	assert.Equal(t, 20.0, promo.Discount)
	assert.Equal(t, money.Cents(1200), promo.LineTotal)
	assert.Equal(t, money.Cents(1400), p.Orders[0].Total)

	stored, err := h.svc.GetOrder(ctx, p.Orders[0].OrderID)
	require.NoError(t, err)
	assert.Equal(t, p.Orders[0].Items, stored.Items)
	total, _ := h.aggregateTotal(t, "s1")
	assert.Equal(t, money.Cents(1400), total)
}

func TestPlaceOrder_RepairQueuedAfterRequestCancelled(t *testing.T) {
	h := newHarness(t, WithFoldRetry(3, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snap := h.fill(t, "c1", map[string]int{"apple": 1})

	h.fake.Fail = func(op, table string) error {
		if op == "UpdateItem" && table == "aggregates" {
			cancel()
			return errors.New("throttled")
		}
		return nil
	}
	p, err := h.svc.PlaceOrder(ctx, "c1", snap, Shipping{FullName: "A"})
	require.NoError(t, err)
	assert.False(t, p.Orders[0].AggregateApplied)
	assert.Equal(t, []RepairKind{RepairFold}, h.queue.kinds())
	assert.Equal(t, 1.0, h.metrics.values[MetricFoldFailed])
}
