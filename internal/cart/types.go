package cart

import (
	"time"

	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/money"
)

// Cart is the item stored in the carts table, one per customer.
type Cart struct {
	CustomerID string         `dynamodbav:"customer_id"` // PK
	Lines      map[string]int `dynamodbav:"lines"`       // productID -> quantity
	CreatedAt  time.Time      `dynamodbav:"created_at"`
	UpdatedAt  time.Time      `dynamodbav:"updated_at"`
}

// Line is a cart line joined with its catalog product. Product is nil when
// the product has since been removed from the catalog.
type Line struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Product   *catalog.Product `json:"product,omitempty"`
	UnitPrice money.Cents      `json:"unitPrice"`
	Discount  float64          `json:"discount,omitempty"` // percent
	LineTotal money.Cents      `json:"lineTotal"`
}

// View is the resolved cart returned by every engine operation.
type View struct {
	CustomerID string      `json:"customerId"`
	Lines      []Line      `json:"items"`
	Subtotal   money.Cents `json:"subtotal"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

func (v View) Empty() bool { return len(v.Lines) == 0 }
