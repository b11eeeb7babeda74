package validation

// AddItemRequest is the payload for POST /cart/items.
type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required,entity_id"`
	Quantity  int    `json:"quantity" validate:"required,min=1"` // merged into any existing line
}

// UpdateQuantityRequest is the payload for PUT /cart/items/:productId.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// Shipping is where a placed order is delivered. Lat/Lng are optional but
// must be supplied together.
type Shipping struct {
	FullName   string   `json:"fullName" validate:"required,max=120"`
	Phone      string   `json:"phone" validate:"required,e164"`
	Address    string   `json:"address" validate:"required,max=300"`
	City       string   `json:"city" validate:"required,max=100"`
	PostalCode string   `json:"postalCode" validate:"required,alphanum,max=12"`
	Country    string   `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	Lat        *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lng        *float64 `json:"lng,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// PlaceOrderRequest is the payload for POST /orders. The lines come from the
// caller's current cart.
type PlaceOrderRequest struct {
	Shipping Shipping `json:"shipping" validate:"required"`
}
