package orders

import (
	"time"

	"github.com/imrishuroy/go-shopflow/internal/cart"
	"github.com/imrishuroy/go-shopflow/internal/money"
)

// Status is the fulfilment state of a CustomerOrder.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// PaymentStatus is recorded at placement. Capture happens upstream.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "Paid"
	PaymentPending PaymentStatus = "Pending"
	PaymentFailed  PaymentStatus = "Failed"
)

var transitions = map[Status][]Status{
	StatusProcessing: {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
// Delivered and Cancelled are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sourcesOf lists every status that may move to to.
func sourcesOf(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Item is a priced line captured at order time.
type Item struct {
	OrderID   string      `json:"orderId,omitempty" dynamodbav:"order_id,omitempty"` // set on aggregate items only
	ProductID string      `json:"productId" dynamodbav:"product_id"`
	Name      string      `json:"name" dynamodbav:"name"`
	Quantity  int         `json:"quantity" dynamodbav:"quantity"`
	UnitPrice money.Cents `json:"unitPrice" dynamodbav:"unit_price_cents"`
	Discount  float64     `json:"discount" dynamodbav:"discount"` // percent, 0-100
	LineTotal money.Cents `json:"lineTotal" dynamodbav:"line_total_cents"`
}

// Shipping is the delivery address snapshot stored on the order.
type Shipping struct {
	FullName   string   `json:"fullName" dynamodbav:"full_name"`
	Phone      string   `json:"phone" dynamodbav:"phone"`
	Address    string   `json:"address" dynamodbav:"address"`
	City       string   `json:"city" dynamodbav:"city"`
	PostalCode string   `json:"postalCode" dynamodbav:"postal_code"`
	Country    string   `json:"country,omitempty" dynamodbav:"country,omitempty"`
	Lat        *float64 `json:"lat,omitempty" dynamodbav:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty" dynamodbav:"lng,omitempty"`
}

// CustomerOrder is the item stored in the orders table.
type CustomerOrder struct {
	OrderID          string        `json:"orderId" dynamodbav:"order_id"` // PK
	CustomerID       string        `json:"customerId" dynamodbav:"customer_id"`
	ShopID           string        `json:"shopId" dynamodbav:"shop_id"`
	ShopName         string        `json:"shopName" dynamodbav:"shop_name"`
	Items            []Item        `json:"items" dynamodbav:"items"`
	Total            money.Cents   `json:"total" dynamodbav:"total_cents"`
	PaymentStatus    PaymentStatus `json:"paymentStatus" dynamodbav:"payment_status"`
	Status           Status        `json:"status" dynamodbav:"status"`
	Shipping         Shipping      `json:"shipping" dynamodbav:"shipping"`
	AggregateApplied bool          `json:"-" dynamodbav:"aggregate_applied"`
	CreatedAt        time.Time     `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt        time.Time     `json:"updatedAt" dynamodbav:"updated_at"`
}

// Aggregate is the per-shop running view of outstanding orders, stored in
// the aggregates table.
type Aggregate struct {
	ShopID    string      `json:"shopId" dynamodbav:"shop_id"` // PK
	ShopName  string      `json:"shopName" dynamodbav:"shop_name"`
	Items     []Item      `json:"items" dynamodbav:"items"`
	Total     money.Cents `json:"total" dynamodbav:"total_cents"`
	OrderIDs  []string    `json:"orderIds" dynamodbav:"order_ids,stringset,omitempty"`
	UpdatedAt string      `json:"updatedAt" dynamodbav:"updated_at"`
}

// Placement is the result of PlaceOrder. A cart spanning several shops
// yields one order per shop.
type Placement struct {
	Orders      []CustomerOrder `json:"orders"`
	Total       money.Cents     `json:"total"`
	ClearedCart *cart.View      `json:"clearedCart,omitempty"`
}

// RepairKind selects what the worker does with a RepairMessage.
type RepairKind string

const (
	RepairFold      RepairKind = "fold"
	RepairReconcile RepairKind = "reconcile"
)

// RepairMessage is queued when an aggregate could not be kept in step with
// its orders.
type RepairMessage struct {
	Kind    RepairKind `json:"kind"`
	ShopID  string     `json:"shop_id"`
	OrderID string     `json:"order_id,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// ReconcileResult reports the aggregate total before and after a recompute.
type ReconcileResult struct {
	ShopID string      `json:"shopId"`
	Before money.Cents `json:"before"`
	After  money.Cents `json:"after"`
	Orders int         `json:"orders"`
}

func (r ReconcileResult) Drift() money.Cents { return r.After - r.Before }
