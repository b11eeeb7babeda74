package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-shopflow/internal/aws"
)

const (
	CustomerIndex = "customer_id-index"
	ShopIndex     = "shop_id-index"
)

var (
	// ErrOrderExists is returned by Put when the order id is already taken.
	ErrOrderExists = errors.New("order already exists")
	// ErrStatusMismatch is returned when a conditional status change finds
	// the order in a status that cannot make the transition.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// Put writes a new order. It never overwrites an existing one.
func (s *Store) Put(ctx context.Context, o *CustomerOrder) error {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrOrderExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*CustomerOrder, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o CustomerOrder
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Transition moves the order to newStatus if its current status allows it.
// Returns the updated order, or ErrStatusMismatch if the condition failed.
func (s *Store) Transition(ctx context.Context, orderID string, newStatus Status) (*CustomerOrder, error) {
	from := sourcesOf(newStatus)
	if len(from) == 0 {
		return nil, ErrStatusMismatch
	}

	values := map[string]types.AttributeValue{
		":new": &types.AttributeValueMemberS{Value: string(newStatus)},
		":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	cond := "attribute_exists(order_id) AND #s IN ("
	for i, st := range from {
		ph := fmt.Sprintf(":from%d", i)
		values[ph] = &types.AttributeValueMemberS{Value: string(st)}
		if i > 0 {
			cond += ", "
		}
		cond += ph
	}
	cond += ")"

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var o CustomerOrder
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// MarkAggregateApplied records that the order's fold reached its aggregate.
func (s *Store) MarkAggregateApplied(ctx context.Context, orderID string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 orderKey(orderID),
		UpdateExpression:    awsString("SET aggregate_applied = :t, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(order_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":  &types.AttributeValueMemberBOOL{Value: true},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("mark aggregate applied: %w", err)
	}
	return nil
}

// ListByCustomer returns a customer's orders via the customer_id GSI.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]CustomerOrder, error) {
	return s.queryIndex(ctx, CustomerIndex, "customer_id", customerID)
}

// ListByShop returns every order for a shop via the shop_id GSI.
func (s *Store) ListByShop(ctx context.Context, shopID string) ([]CustomerOrder, error) {
	return s.queryIndex(ctx, ShopIndex, "shop_id", shopID)
}

func (s *Store) queryIndex(ctx context.Context, index, attr, value string) ([]CustomerOrder, error) {
	p := dyn.NewQueryPaginator(s.client, &dyn.QueryInput{
		TableName:                 &s.tableName,
		IndexName:                 &index,
		KeyConditionExpression:    awsString("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
	})

	var out []CustomerOrder
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", index, err)
		}
		var batch []CustomerOrder
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
