package catalog

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/dynamotest"
)

func newTestStore(t *testing.T) (*Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New().
		CreateTable("products", "product_id").
		CreateTable("shops", "shop_id")
	return NewStore(fake, "products", "shops"), fake
}

var center = Point{Lat: 12.9716, Lng: 77.5946}

func seedShops(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	shops := []Shop{
		{ShopID: "s-near", Name: "Green Grocer", Lat: 12.975, Lng: 77.595, Category: "groceries", Rating: 4.5, IsOrganicCertified: true, ProductIDs: []string{"p1"}},
		{ShopID: "s-mid", Name: "City Electronics", Lat: 13.05, Lng: 77.60, Category: "electronics", Rating: 3.0},
		{ShopID: "s-farm", Name: "Sunrise FARM stand", Lat: 12.90, Lng: 77.50, Category: "farm", Rating: 4.9, IsLocalFarm: true, IsOrganicCertified: true},
		{ShopID: "s-far", Name: "Far Away Mart", Lat: 28.61, Lng: 77.20, Category: "groceries", Rating: 5},
	}
	for _, sh := range shops {
		require.NoError(t, s.PutShop(ctx, sh))
	}
}

func TestQueryShopsNear_RadiusAndOrder(t *testing.T) {
	s, _ := newTestStore(t)
	seedShops(t, s)

	hits, total, err := s.QueryShopsNear(context.Background(), center, 50, ShopFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, hits, 3)
	assert.Equal(t, "s-near", hits[0].Shop.ShopID)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].DistanceKm, hits[i].DistanceKm)
	}
}

func TestQueryShopsNear_Filters(t *testing.T) {
	s, _ := newTestStore(t)
	seedShops(t, s)
	ctx := context.Background()

	rating := 4.0
	hits, total, err := s.QueryShopsNear(ctx, center, 50, ShopFilter{MinRating: &rating, Organic: true}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, hits, 2)

	hits, _, err = s.QueryShopsNear(ctx, center, 50, ShopFilter{Categories: []string{"farm", "clothing"}, Local: true}, 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s-farm", hits[0].Shop.ShopID)

	hits, _, err = s.QueryShopsNear(ctx, center, 50, ShopFilter{Search: "farm"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Sunrise FARM stand", hits[0].Shop.Name)
}

func TestQueryShopsNear_Pagination(t *testing.T) {
	s, _ := newTestStore(t)
	seedShops(t, s)

	hits, total, err := s.QueryShopsNear(context.Background(), center, 50, ShopFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, hits, 1)

	hits, total, err = s.QueryShopsNear(context.Background(), center, 50, ShopFilter{}, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)

	hits, total, err = s.QueryShopsNear(context.Background(), center, 50, ShopFilter{}, -5, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, hits, 3)
}

func TestProductsByShop_Limit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.PutProduct(ctx, Product{ProductID: id, ShopID: "s1", Name: id, Price: 1}))
	}
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: "x", ShopID: "s2", Name: "x", Price: 1}))

	products, err := s.ProductsByShop(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Len(t, products, 3)
	for _, p := range products {
		assert.Equal(t, "s1", p.ShopID)
	}
}

func TestGetProducts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: "apple", ShopID: "s1", Name: "Apple", Price: 2}))

	got, err := s.GetProducts(ctx, []string{"apple", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "Apple", got["apple"].Name)

	p, err := s.GetProduct(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestStorageErrorsAreClassified(t *testing.T) {
	s, fake := newTestStore(t)
	fake.Fail = func(op, table string) error { return errors.New("throttled") }

	_, err := s.GetShop(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
}

func TestPutShop_RejectsBadLocation(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.PutShop(context.Background(), Shop{ShopID: "bad", Lat: 91})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

func TestPutProduct_LinksShop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutShop(ctx, Shop{ShopID: "s1", Name: "Green Grocer"}))

	require.NoError(t, s.PutProduct(ctx, Product{ProductID: "apple", ShopID: "s1", Name: "Apple", Price: 2}))
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: "pear", ShopID: "s1", Name: "Pear", Price: 3}))
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: "apple", ShopID: "s1", Name: "Apple", Price: 2.5}))

	sh, err := s.GetShop(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"apple", "pear"}, sh.ProductIDs)

	// no shop row yet: the product is still stored
	require.NoError(t, s.PutProduct(ctx, Product{ProductID: "stray", ShopID: "s9", Name: "Stray", Price: 1}))
	p, err := s.GetProduct(ctx, "stray")
	require.NoError(t, err)
	require.NotNil(t, p)
	sh, err = s.GetShop(ctx, "s9")
	require.NoError(t, err)
	assert.Nil(t, sh)
}

func TestPutProduct_RejectsBadDiscount(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.PutProduct(context.Background(), Product{ProductID: "x", ShopID: "s1", DiscountPct: 120})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

func TestDiscount(t *testing.T) {
	assert.Equal(t, 25.0, Product{Price: 10, DiscountPct: 25}.Discount())
	assert.Equal(t, 0.0, Product{Price: 10, OriginalPrice: 20}.Discount(), "markdown is already in Price")
	assert.Equal(t, 100.0, Product{DiscountPct: 150}.Discount())
	assert.Equal(t, 0.0, Product{DiscountPct: -3}.Discount())
}
