package cart

import (
	"context"
	"errors"
	"sort"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/logging"
	"github.com/imrishuroy/go-shopflow/internal/money"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

// Products is the part of the catalog the cart needs.
type Products interface {
	GetProduct(ctx context.Context, productID string) (*catalog.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*catalog.Product, error)
}

// Engine implements the cart operations on top of Store.
type Engine struct {
	store    *Store
	products Products
}

func NewEngine(store *Store, products Products) *Engine {
	return &Engine{store: store, products: products}
}

// AddItem merges quantity into the customer's line for productID, creating
// the cart on first use.
func (e *Engine) AddItem(ctx context.Context, customerID, productID string, quantity int) (*View, error) {
	const op = "cart.AddItem"
	if err := checkIDs(op, customerID, productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperr.InvalidArgument(op, "quantity must be a positive integer")
	}

	p, err := e.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if p == nil {
		return nil, apperr.NotFound(op, "product %s not found", productID)
	}

	c, err := e.store.IncrementLine(ctx, customerID, productID, quantity)
	if errors.Is(err, ErrCartNotFound) {
		if _, err := e.store.CreateIfNotExists(ctx, customerID); err != nil {
			return nil, apperr.Storage(op, err)
		}
		c, err = e.store.IncrementLine(ctx, customerID, productID, quantity)
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	logging.FromCtx(ctx).Info("cart_item_added",
		"customer_id", customerID, "product_id", productID,
		"quantity", quantity, "line_quantity", c.Lines[productID])
	return e.resolve(ctx, op, c)
}

// GetCart returns the customer's cart, creating an empty one if needed.
func (e *Engine) GetCart(ctx context.Context, customerID string) (*View, error) {
	const op = "cart.GetCart"
	if err := checkIDs(op, customerID); err != nil {
		return nil, err
	}

	c, err := e.store.Get(ctx, customerID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if c == nil {
		if _, err := e.store.CreateIfNotExists(ctx, customerID); err != nil {
			return nil, apperr.Storage(op, err)
		}
		if c, err = e.store.Get(ctx, customerID); err != nil {
			return nil, apperr.Storage(op, err)
		}
		if c == nil {
			return nil, apperr.Storage(op, errors.New("cart vanished after create"))
		}
	}
	return e.resolve(ctx, op, c)
}

// UpdateQuantity overwrites an existing line. Fails with NotFound if the cart
// or the line is missing.
func (e *Engine) UpdateQuantity(ctx context.Context, customerID, productID string, quantity int) (*View, error) {
	const op = "cart.UpdateQuantity"
	if err := checkIDs(op, customerID, productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperr.InvalidArgument(op, "quantity must be a positive integer")
	}

	c, err := e.store.SetLine(ctx, customerID, productID, quantity)
	if errors.Is(err, ErrLineNotFound) {
		return nil, apperr.NotFound(op, "no cart line for product %s", productID)
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return e.resolve(ctx, op, c)
}

// RemoveItem drops the line for productID. Removing an absent line succeeds.
func (e *Engine) RemoveItem(ctx context.Context, customerID, productID string) (*View, error) {
	const op = "cart.RemoveItem"
	if err := checkIDs(op, customerID, productID); err != nil {
		return nil, err
	}
	return e.removeLines(ctx, op, customerID, productID)
}

// RemoveLines drops every given line in one update. Order placement uses it
// to clear the lines it has turned into orders.
func (e *Engine) RemoveLines(ctx context.Context, customerID string, productIDs ...string) (*View, error) {
	const op = "cart.RemoveLines"
	if err := checkIDs(op, append([]string{customerID}, productIDs...)...); err != nil {
		return nil, err
	}
	return e.removeLines(ctx, op, customerID, productIDs...)
}

func (e *Engine) removeLines(ctx context.Context, op, customerID string, productIDs ...string) (*View, error) {
	c, err := e.store.RemoveLines(ctx, customerID, productIDs...)
	if errors.Is(err, ErrCartNotFound) {
		return nil, apperr.NotFound(op, "cart for %s not found", customerID)
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return e.resolve(ctx, op, c)
}

// Clear empties the cart in place.
func (e *Engine) Clear(ctx context.Context, customerID string) (*View, error) {
	const op = "cart.Clear"
	if err := checkIDs(op, customerID); err != nil {
		return nil, err
	}

	c, err := e.store.Clear(ctx, customerID)
	if errors.Is(err, ErrCartNotFound) {
		return nil, apperr.NotFound(op, "cart for %s not found", customerID)
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return e.resolve(ctx, op, c)
}

// resolve joins the raw lines with catalog products, ordered by product id.
func (e *Engine) resolve(ctx context.Context, op string, c *Cart) (*View, error) {
	ids := make([]string, 0, len(c.Lines))
	for pid := range c.Lines {
		ids = append(ids, pid)
	}
	sort.Strings(ids)

	products, err := e.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	v := &View{CustomerID: c.CustomerID, Lines: make([]Line, 0, len(ids)), UpdatedAt: c.UpdatedAt}
	for _, pid := range ids {
		l := Line{ProductID: pid, Quantity: c.Lines[pid], Product: products[pid]}
		if l.Product != nil {
			l.UnitPrice = money.FromFloat(l.Product.Price)
			l.Discount = l.Product.Discount()
			l.LineTotal = money.LineTotal(l.Quantity, l.UnitPrice, l.Discount)
			v.Subtotal += l.LineTotal
		}
		v.Lines = append(v.Lines, l)
	}
	return v, nil
}

func checkIDs(op string, ids ...string) error {
	for _, id := range ids {
		if !validation.ValidID(id) {
			return apperr.InvalidArgument(op, "malformed id %q", id)
		}
	}
	return nil
}
