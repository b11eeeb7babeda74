package catalog

import "time"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat" dynamodbav:"lat"`
	Lng float64 `json:"lng" dynamodbav:"lng"`
}

// Shop is stored in the shops table.
type Shop struct {
	ShopID             string    `json:"id" dynamodbav:"shop_id"` // PK
	Name               string    `json:"name" dynamodbav:"name"`
	NameLower          string    `json:"-" dynamodbav:"name_lower"` // for case-insensitive search
	Lat                float64   `json:"lat" dynamodbav:"lat"`
	Lng                float64   `json:"lng" dynamodbav:"lng"`
	Category           string    `json:"category" dynamodbav:"category"`
	Rating             float64   `json:"rating" dynamodbav:"rating"`
	IsOrganicCertified bool      `json:"isOrganicCertified" dynamodbav:"is_organic_certified"`
	IsLocalFarm        bool      `json:"isLocalFarm" dynamodbav:"is_local_farm"`
	ProductIDs         []string  `json:"productIds,omitempty" dynamodbav:"product_ids,stringset,omitempty"`
	OwnerID            string    `json:"ownerId" dynamodbav:"owner_id"`
	CreatedAt          time.Time `json:"createdAt" dynamodbav:"created_at"`
}

func (s Shop) Location() Point { return Point{Lat: s.Lat, Lng: s.Lng} }

// Product is stored in the products table; shop_id carries a GSI.
type Product struct {
	ProductID     string  `json:"id" dynamodbav:"product_id"` // PK
	ShopID        string  `json:"shopId" dynamodbav:"shop_id"`
	Name          string  `json:"name" dynamodbav:"name"`
	Price         float64 `json:"price" dynamodbav:"price"`
	OriginalPrice float64 `json:"originalPrice,omitempty" dynamodbav:"original_price,omitempty"`
	Category      string  `json:"category" dynamodbav:"category"`
	IsOrganic     bool    `json:"isOrganic" dynamodbav:"is_organic"`
	Quantity      int     `json:"quantity" dynamodbav:"quantity"`
	// DiscountPct is taken off Price at checkout. OriginalPrice is only the
	// pre-markdown price for display and is already reflected in Price.
	DiscountPct float64 `json:"discountPct,omitempty" dynamodbav:"discount_pct,omitempty"`
}

// Discount is the checkout discount percent, clamped to [0, 100].
func (p Product) Discount() float64 {
	switch {
	case p.DiscountPct <= 0:
		return 0
	case p.DiscountPct >= 100:
		return 100
	}
	return p.DiscountPct
}

// ShopFilter is an already validated attribute filter for nearby queries.
type ShopFilter struct {
	Categories []string
	MinRating  *float64
	Organic    bool
	Local      bool
	Search     string // lower-cased substring of the shop name
}

// ShopHit is a shop matched by a geo query with its distance from the center.
type ShopHit struct {
	Shop       Shop
	DistanceKm float64
}
