package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/dynamotest"
	"github.com/imrishuroy/go-shopflow/internal/money"
)

func newTestEngine(t *testing.T) (*Engine, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New().
		CreateTable("carts", "customer_id").
		CreateTable("products", "product_id").
		CreateTable("shops", "shop_id")
	cat := catalog.NewStore(fake, "products", "shops")
	ctx := context.Background()
	require.NoError(t, cat.PutProduct(ctx, catalog.Product{ProductID: "apple", ShopID: "s1", Name: "Apple", Price: 2.00}))
	require.NoError(t, cat.PutProduct(ctx, catalog.Product{ProductID: "pear", ShopID: "s1", Name: "Pear", Price: 1.25}))
	return NewEngine(NewStore(fake, "carts"), cat), fake
}

func lineQty(v *View, productID string) int {
	for _, l := range v.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

func TestAddItem_MergesQuantity(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", "apple", 2)
	require.NoError(t, err)
	v, err := e.AddItem(ctx, "c1", "apple", 3)
	require.NoError(t, err)

	require.Len(t, v.Lines, 1)
	assert.Equal(t, 5, lineQty(v, "apple"))
	require.NotNil(t, v.Lines[0].Product)
	assert.Equal(t, "Apple", v.Lines[0].Product.Name)
	assert.Equal(t, money.Cents(1000), v.Subtotal)
}

func TestAddItem_ConcurrentAddsAreAllApplied(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.AddItem(ctx, "c1", "apple", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("add failed: %v", err)
	}

	v, err := e.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, n, lineQty(v, "apple"))
}

func TestAddItem_Validation(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", "apple", 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	_, err = e.AddItem(ctx, "bad id", "apple", 1)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	_, err = e.AddItem(ctx, "c1", "ghost", 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.Equal(t, 0, fake.Len("carts"), "no cart may be written on rejected input")
}

func TestGetCart_LazilyCreates(t *testing.T) {
	e, fake := newTestEngine(t)

	v, err := e.GetCart(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, v.Empty())
	assert.Equal(t, 1, fake.Len("carts"))
}

func TestUpdateQuantity(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.UpdateQuantity(ctx, "c1", "apple", 4)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "no cart")

	_, err = e.AddItem(ctx, "c1", "apple", 1)
	require.NoError(t, err)

	_, err = e.UpdateQuantity(ctx, "c1", "pear", 4)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "no line")

	_, err = e.UpdateQuantity(ctx, "c1", "apple", -1)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	v, err := e.UpdateQuantity(ctx, "c1", "apple", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, lineQty(v, "apple"))
}

func TestRemoveItem_IsSafeToRepeat(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RemoveItem(ctx, "c1", "apple")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "no cart")

	_, err = e.AddItem(ctx, "c1", "apple", 2)
	require.NoError(t, err)
	_, err = e.AddItem(ctx, "c1", "pear", 1)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		v, err := e.RemoveItem(ctx, "c1", "apple")
		require.NoError(t, err)
		assert.Equal(t, 0, lineQty(v, "apple"))
	}

	v, err := e.GetCart(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "pear", v.Lines[0].ProductID)
}

func TestClear(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Clear(ctx, "c1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = e.AddItem(ctx, "c1", "apple", 2)
	require.NoError(t, err)
	v, err := e.Clear(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, v.Empty())
	assert.Equal(t, 1, fake.Len("carts"), "cleared in place, never deleted")
}

func TestRemoveLines(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", "apple", 2)
	require.NoError(t, err)
	_, err = e.AddItem(ctx, "c1", "pear", 1)
	require.NoError(t, err)

	v, err := e.RemoveLines(ctx, "c1", "apple", "pear", "never-added")
	require.NoError(t, err)
	assert.True(t, v.Empty())
}

func TestDeletedProductStaysVisible(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", "apple", 2)
	require.NoError(t, err)
	_, err = fake.DeleteItem(ctx, deleteProduct("apple"))
	require.NoError(t, err)

	v, err := e.GetCart(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Nil(t, v.Lines[0].Product)
	assert.Equal(t, money.Cents(0), v.Subtotal)
}

func TestStorageFailureIsClassified(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.Fail = func(op, table string) error {
		if table == "carts" {
			return errors.New("throttled")
		}
		return nil
	}

	_, err := e.AddItem(context.Background(), "c1", "apple", 1)
	assert.True(t, apperr.Is(err, apperr.KindStorage))
}

func deleteProduct(id string) *dyn.DeleteItemInput {
	table := "products"
	return &dyn.DeleteItemInput{
		TableName: &table,
		Key:       map[string]types.AttributeValue{"product_id": &types.AttributeValueMemberS{Value: id}},
	}
}
