package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/aws"
)

// ShopIndex is the GSI on products.shop_id.
const ShopIndex = "shop_id-index"

// Store reads shops and products. It is the catalog collaborator used by the
// cart, order placement and nearby search engines.
type Store struct {
	client        aws.DynamoDBAPI
	productsTable string
	shopsTable    string
}

func NewStore(client aws.DynamoDBAPI, productsTable, shopsTable string) *Store {
	return &Store{client: client, productsTable: productsTable, shopsTable: shopsTable}
}

// GetProduct returns (nil, nil) if the product does not exist.
func (s *Store) GetProduct(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.productsTable,
		Key:       map[string]types.AttributeValue{"product_id": &types.AttributeValueMemberS{Value: productID}},
	})
	if err != nil {
		return nil, apperr.Storage("catalog.GetProduct", fmt.Errorf("get item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, apperr.Storage("catalog.GetProduct", fmt.Errorf("unmarshal product: %w", err))
	}
	return &p, nil
}

// GetProducts resolves ids concurrently. Missing products are absent from the map.
func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]*Product, error) {
	results := make([]*Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.GetProduct(gctx, id)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*Product, len(ids))
	for _, p := range results {
		if p != nil {
			out[p.ProductID] = p
		}
	}
	return out, nil
}

// GetShop returns (nil, nil) if the shop does not exist.
func (s *Store) GetShop(ctx context.Context, shopID string) (*Shop, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.shopsTable,
		Key:       map[string]types.AttributeValue{"shop_id": &types.AttributeValueMemberS{Value: shopID}},
	})
	if err != nil {
		return nil, apperr.Storage("catalog.GetShop", fmt.Errorf("get item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var sh Shop
	if err := attributevalue.UnmarshalMap(out.Item, &sh); err != nil {
		return nil, apperr.Storage("catalog.GetShop", fmt.Errorf("unmarshal shop: %w", err))
	}
	return &sh, nil
}

// PutShop writes a shop, keeping name_lower in sync with name. It replaces
// the whole item, product_ids included.
func (s *Store) PutShop(ctx context.Context, sh Shop) error {
	if sh.Lat < -90 || sh.Lat > 90 || sh.Lng < -180 || sh.Lng > 180 {
		return apperr.InvalidArgument("catalog.PutShop", "shop location out of range")
	}
	sh.NameLower = strings.ToLower(sh.Name)
	item, err := attributevalue.MarshalMap(sh)
	if err != nil {
		return apperr.Storage("catalog.PutShop", fmt.Errorf("marshal shop: %w", err))
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.shopsTable, Item: item}); err != nil {
		return apperr.Storage("catalog.PutShop", fmt.Errorf("put item: %w", err))
	}
	return nil
}

// PutProduct writes a product and adds it to its shop's product_ids set.
// A product whose shop does not exist yet is stored without the link.
func (s *Store) PutProduct(ctx context.Context, p Product) error {
	const op = "catalog.PutProduct"
	if p.DiscountPct < 0 || p.DiscountPct > 100 {
		return apperr.InvalidArgument(op, "discount must be between 0 and 100")
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("marshal product: %w", err))
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.productsTable, Item: item}); err != nil {
		return apperr.Storage(op, fmt.Errorf("put item: %w", err))
	}
	if p.ShopID == "" {
		return nil
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.shopsTable,
		Key:                      map[string]types.AttributeValue{"shop_id": &types.AttributeValueMemberS{Value: p.ShopID}},
		UpdateExpression:         awsString("ADD #pids :pid"),
		ConditionExpression:      awsString("attribute_exists(shop_id)"),
		ExpressionAttributeNames: map[string]string{"#pids": "product_ids"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberSS{Value: []string{p.ProductID}},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &ccf) {
		return apperr.Storage(op, fmt.Errorf("link product to shop: %w", err))
	}
	return nil
}

// ProductsByShop returns at most limit products of a shop via the shop_id GSI.
func (s *Store) ProductsByShop(ctx context.Context, shopID string, limit int) ([]Product, error) {
	in := &dyn.QueryInput{
		TableName:                 &s.productsTable,
		IndexName:                 awsString(ShopIndex),
		KeyConditionExpression:    awsString("#shop = :sid"),
		ExpressionAttributeNames:  map[string]string{"#shop": "shop_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":sid": &types.AttributeValueMemberS{Value: shopID}},
	}
	if limit > 0 {
		l := int32(limit)
		in.Limit = &l
	}
	out, err := s.client.Query(ctx, in)
	if err != nil {
		return nil, apperr.Storage("catalog.ProductsByShop", fmt.Errorf("query: %w", err))
	}
	products := make([]Product, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &products); err != nil {
		return nil, apperr.Storage("catalog.ProductsByShop", fmt.Errorf("unmarshal products: %w", err))
	}
	return products, nil
}

// QueryShopsNear returns the page of shops within radiusKm of center that
// match f, ordered by distance, plus the total number of matches. The
// bounding box and attribute filters run in DynamoDB; the exact great-circle
// check runs here.
func (s *Store) QueryShopsNear(ctx context.Context, center Point, radiusKm float64, f ShopFilter, skip, limit int) ([]ShopHit, int, error) {
	in := buildNearbyScan(s.shopsTable, NewBoundingBox(center, radiusKm), f)

	var hits []ShopHit
	p := dyn.NewScanPaginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, 0, apperr.Storage("catalog.QueryShopsNear", fmt.Errorf("scan: %w", err))
		}
		var shops []Shop
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &shops); err != nil {
			return nil, 0, apperr.Storage("catalog.QueryShopsNear", fmt.Errorf("unmarshal shops: %w", err))
		}
		for _, sh := range shops {
			if d := DistanceKm(center, sh.Location()); d <= radiusKm {
				hits = append(hits, ShopHit{Shop: sh, DistanceKm: d})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].Shop.ShopID < hits[j].Shop.ShopID
	})

	total := len(hits)
	if skip < 0 {
		skip = 0
	}
	if skip >= total {
		return []ShopHit{}, total, nil
	}
	end := total
	if limit > 0 && limit < total-skip {
		end = skip + limit
	}
	return hits[skip:end], total, nil
}

func buildNearbyScan(table string, box BoundingBox, f ShopFilter) *dyn.ScanInput {
	names := map[string]string{"#lat": "lat"}
	values := map[string]types.AttributeValue{
		":latMin": numberAV(box.MinLat),
		":latMax": numberAV(box.MaxLat),
	}
	clauses := []string{"#lat BETWEEN :latMin AND :latMax"}

	if !box.WrapsLng {
		names["#lng"] = "lng"
		values[":lngMin"] = numberAV(box.MinLng)
		values[":lngMax"] = numberAV(box.MaxLng)
		clauses = append(clauses, "#lng BETWEEN :lngMin AND :lngMax")
	}
	if len(f.Categories) > 0 {
		names["#cat"] = "category"
		placeholders := make([]string, len(f.Categories))
		for i, c := range f.Categories {
			ph := ":cat" + strconv.Itoa(i)
			placeholders[i] = ph
			values[ph] = &types.AttributeValueMemberS{Value: c}
		}
		clauses = append(clauses, "#cat IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.MinRating != nil {
		names["#rating"] = "rating"
		values[":rating"] = numberAV(*f.MinRating)
		clauses = append(clauses, "#rating >= :rating")
	}
	if f.Organic || f.Local {
		values[":true"] = &types.AttributeValueMemberBOOL{Value: true}
	}
	if f.Organic {
		names["#org"] = "is_organic_certified"
		clauses = append(clauses, "#org = :true")
	}
	if f.Local {
		names["#local"] = "is_local_farm"
		clauses = append(clauses, "#local = :true")
	}
	if f.Search != "" {
		names["#nl"] = "name_lower"
		values[":search"] = &types.AttributeValueMemberS{Value: f.Search}
		clauses = append(clauses, "contains(#nl, :search)")
	}

	return &dyn.ScanInput{
		TableName:                 &table,
		FilterExpression:          awsString(strings.Join(clauses, " AND ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
}

func numberAV(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func awsString(s string) *string { return &s }
