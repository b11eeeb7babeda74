// Package discovery answers nearby-shop searches: it validates the query,
// runs the geo and attribute filter against the catalog and attaches a few
// products to every shop on the page.
package discovery

import (
	"context"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/config"
	"github.com/imrishuroy/go-shopflow/internal/logging"
)

// Catalog is the part of the catalog store the finder reads.
type Catalog interface {
	QueryShopsNear(ctx context.Context, center catalog.Point, radiusKm float64, f catalog.ShopFilter, skip, limit int) ([]catalog.ShopHit, int, error)
	ProductsByShop(ctx context.Context, shopID string, limit int) ([]catalog.Product, error)
}

// Request is a parsed nearby query. Nil Lat/Lng mean the parameter was absent.
type Request struct {
	Lat, Lng   *float64
	RadiusKm   float64
	Page       int
	PageSize   int
	Categories []string
	Rating     *float64
	Organic    bool
	Local      bool
	Search     string
}

// ShopResult is one shop on a result page.
type ShopResult struct {
	catalog.Shop
	DistanceKm float64           `json:"distanceKm"`
	Products   []catalog.Product `json:"products"`
}

// Page is a well formed result page, possibly empty.
type Page struct {
	Items       []ShopResult `json:"data"`
	Count       int          `json:"count"`
	TotalCount  int          `json:"totalCount"`
	TotalPages  int          `json:"totalPages"`
	CurrentPage int          `json:"currentPage"`
}

type Finder struct {
	catalog Catalog
	cfg     config.Discovery
	allowed map[string]bool
}

func NewFinder(c Catalog, cfg config.Discovery) *Finder {
	allowed := make(map[string]bool, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		allowed[strings.ToLower(strings.TrimSpace(cat))] = true
	}
	return &Finder{catalog: c, cfg: cfg, allowed: allowed}
}

// FindNearby validates r and returns the requested page of shops ordered by
// distance from the given point.
func (f *Finder) FindNearby(ctx context.Context, r Request) (*Page, error) {
	const op = "discovery.FindNearby"

	if r.Lat == nil || r.Lng == nil {
		return nil, apperr.InvalidArgument(op, "lat and lng are required")
	}
	if !inRange(*r.Lat, -90, 90) || !inRange(*r.Lng, -180, 180) {
		return nil, apperr.InvalidArgument(op, "invalid latitude/longitude")
	}
	if r.Rating != nil && !inRange(*r.Rating, 0, 5) {
		return nil, apperr.InvalidArgument(op, "rating must be between 0 and 5")
	}

	radius := r.RadiusKm
	if !(radius > 0) || math.IsInf(radius, 0) {
		radius = f.cfg.DefaultRadiusKm
	}
	page := r.Page
	if page <= 0 {
		page = f.cfg.DefaultPage
	}
	size := r.PageSize
	if size <= 0 {
		size = f.cfg.DefaultPageSize
	}
	if f.cfg.MaxPageSize > 0 && size > f.cfg.MaxPageSize {
		size = f.cfg.MaxPageSize
	}

	filter := catalog.ShopFilter{
		Categories: f.allowedCategories(r.Categories),
		MinRating:  r.Rating,
		Organic:    r.Organic,
		Local:      r.Local,
		Search:     strings.ToLower(strings.TrimSpace(r.Search)),
	}
	center := catalog.Point{Lat: *r.Lat, Lng: *r.Lng}

	skip := math.MaxInt // past any result set
	if page-1 <= math.MaxInt/size {
		skip = (page - 1) * size
	}
	hits, total, err := f.catalog.QueryShopsNear(ctx, center, radius, filter, skip, size)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	items, err := f.attachProducts(ctx, hits)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	logging.FromCtx(ctx).Debug("nearby_search",
		"lat", center.Lat, "lng", center.Lng, "radius_km", radius,
		"page", page, "page_size", size, "total", total)

	return &Page{
		Items:       items,
		Count:       len(items),
		TotalCount:  total,
		TotalPages:  (total + size - 1) / size,
		CurrentPage: page,
	}, nil
}

// allowedCategories keeps the whitelisted entries of in, lower-cased and
// de-duplicated.
func (f *Finder) allowedCategories(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if f.allowed[c] && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// attachProducts fetches up to ProductsPerShop products for every shop that
// lists any, in parallel.
func (f *Finder) attachProducts(ctx context.Context, hits []catalog.ShopHit) ([]ShopResult, error) {
	items := make([]ShopResult, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, h := range hits {
		items[i] = ShopResult{Shop: h.Shop, DistanceKm: h.DistanceKm, Products: []catalog.Product{}}
		if len(h.Shop.ProductIDs) == 0 {
			continue
		}
		g.Go(func() error {
			products, err := f.catalog.ProductsByShop(gctx, h.Shop.ShopID, f.cfg.ProductsPerShop)
			if err != nil {
				return err
			}
			items[i].Products = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
