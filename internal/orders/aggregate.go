package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-shopflow/internal/aws"
	"github.com/imrishuroy/go-shopflow/internal/money"
)

var (
	// ErrAlreadyFolded means the order is already part of the aggregate.
	ErrAlreadyFolded = errors.New("order already folded into aggregate")
	// ErrAggregateMissing means the shop has no aggregate document.
	ErrAggregateMissing = errors.New("aggregate not found")
	// ErrNotFolded means the aggregate exists but never received the order.
	ErrNotFolded = errors.New("order not part of aggregate")
	// ErrAggregateChanged is returned when a conditional write lost a race
	// with another writer and should be retried.
	ErrAggregateChanged = errors.New("aggregate changed concurrently")
)

// subtractAttempts bounds the subtract/floor loop when it keeps racing folds.
const subtractAttempts = 4

// AggregateStore maintains one running aggregate per shop. Every mutation is
// a single conditional UpdateItem or DeleteItem keyed by shop_id.
type AggregateStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewAggregateStore(client aws.DynamoDBAPI, tableName string) *AggregateStore {
	return &AggregateStore{client: client, tableName: tableName, nowFunc: time.Now}
}

func aggregateKey(shopID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"shop_id": &types.AttributeValueMemberS{Value: shopID},
	}
}

func (s *AggregateStore) now() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)}
}

// Get returns (nil, nil) if the shop has no aggregate.
func (s *AggregateStore) Get(ctx context.Context, shopID string) (*Aggregate, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            aggregateKey(shopID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Aggregate
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal aggregate: %w", err)
	}
	return &a, nil
}

// Fold appends the order's items to the shop aggregate and adds its total,
// creating the aggregate if absent. Folding the same order twice returns
// ErrAlreadyFolded and changes nothing.
func (s *AggregateStore) Fold(ctx context.Context, o *CustomerOrder) (*Aggregate, error) {
	items := make([]Item, len(o.Items))
	for i, it := range o.Items {
		it.OrderID = o.OrderID
		items[i] = it
	}
	itemsAV, err := attributevalue.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key:       aggregateKey(o.ShopID),
		UpdateExpression: awsString("SET #items = list_append(if_not_exists(#items, :empty), :items), " +
			"shop_name = :name, updated_at = :ua ADD total_cents :amt, order_ids :oidset"),
		ConditionExpression:      awsString("NOT contains(order_ids, :oid)"),
		ExpressionAttributeNames: map[string]string{"#items": "items"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty":  &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":items":  itemsAV,
			":name":   &types.AttributeValueMemberS{Value: o.ShopName},
			":ua":     s.now(),
			":amt":    centsAV(o.Total),
			":oidset": &types.AttributeValueMemberSS{Value: []string{o.OrderID}},
			":oid":    &types.AttributeValueMemberS{Value: o.OrderID},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrAlreadyFolded
		}
		return nil, fmt.Errorf("update item (fold): %w", err)
	}
	return decodeAggregate(out.Attributes)
}

// Subtract removes the order's total from its shop aggregate, flooring at
// zero, and deletes the aggregate when the result is exactly zero. It returns
// the aggregate after the update, or nil if it was deleted.
func (s *AggregateStore) Subtract(ctx context.Context, o *CustomerOrder) (*Aggregate, error) {
	for attempt := 0; attempt < subtractAttempts; attempt++ {
		a, err := s.decrement(ctx, o)
		if errors.Is(err, ErrAggregateChanged) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if a.Total != 0 {
			return a, nil
		}
		if err := s.deleteIfZero(ctx, o.ShopID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, ErrAggregateChanged
}

// decrement applies either the plain subtraction or the floor, whichever
// condition holds, and reports ErrAggregateChanged if neither did.
func (s *AggregateStore) decrement(ctx context.Context, o *CustomerOrder) (*Aggregate, error) {
	values := map[string]types.AttributeValue{
		":amt":    centsAV(o.Total),
		":ua":     s.now(),
		":oidset": &types.AttributeValueMemberSS{Value: []string{o.OrderID}},
		":oid":    &types.AttributeValueMemberS{Value: o.OrderID},
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       aggregateKey(o.ShopID),
		UpdateExpression:          awsString("SET total_cents = total_cents - :amt, updated_at = :ua DELETE order_ids :oidset"),
		ConditionExpression:       awsString("contains(order_ids, :oid) AND total_cents >= :amt"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err == nil {
		return decodeAggregate(out.Attributes)
	}
	if !isConditionFailed(err) {
		return nil, fmt.Errorf("update item (subtract): %w", err)
	}

	cur, err := s.Get(ctx, o.ShopID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrAggregateMissing
	}
	if !containsString(cur.OrderIDs, o.OrderID) {
		return nil, ErrNotFolded
	}

	values[":zero"] = centsAV(0)
	out, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       aggregateKey(o.ShopID),
		UpdateExpression:          awsString("SET total_cents = :zero, updated_at = :ua DELETE order_ids :oidset"),
		ConditionExpression:       awsString("contains(order_ids, :oid) AND total_cents < :amt"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrAggregateChanged
		}
		return nil, fmt.Errorf("update item (floor): %w", err)
	}
	return decodeAggregate(out.Attributes)
}

// deleteIfZero removes the aggregate only while its total is still zero. A
// fold that lands first wins and the aggregate stays.
func (s *AggregateStore) deleteIfZero(ctx context.Context, shopID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                 &s.tableName,
		Key:                       aggregateKey(shopID),
		ConditionExpression:       awsString("total_cents = :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":zero": centsAV(0)},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// Replace overwrites the aggregate with a recomputed one, provided nobody
// wrote it since seenUpdatedAt ("" meaning it did not exist). A zero total
// deletes it instead.
func (s *AggregateStore) Replace(ctx context.Context, a *Aggregate, seenUpdatedAt string) error {
	cond := "attribute_not_exists(shop_id)"
	values := map[string]types.AttributeValue{}
	if seenUpdatedAt != "" {
		cond = "updated_at = :seen"
		values[":seen"] = &types.AttributeValueMemberS{Value: seenUpdatedAt}
	}

	var err error
	if a.Total == 0 && len(a.OrderIDs) == 0 {
		if seenUpdatedAt == "" {
			return nil
		}
		_, err = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
			TableName:                 &s.tableName,
			Key:                       aggregateKey(a.ShopID),
			ConditionExpression:       &cond,
			ExpressionAttributeValues: values,
		})
	} else {
		a.UpdatedAt = s.nowFunc().UTC().Format(time.RFC3339Nano)
		item, merr := attributevalue.MarshalMap(a)
		if merr != nil {
			return fmt.Errorf("marshal aggregate: %w", merr)
		}
		in := &dyn.PutItemInput{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: &cond,
		}
		if len(values) > 0 {
			in.ExpressionAttributeValues = values
		}
		_, err = s.client.PutItem(ctx, in)
	}
	if err != nil {
		if isConditionFailed(err) {
			return ErrAggregateChanged
		}
		return fmt.Errorf("replace aggregate: %w", err)
	}
	return nil
}

func decodeAggregate(item map[string]types.AttributeValue) (*Aggregate, error) {
	var a Aggregate
	if err := attributevalue.UnmarshalMap(item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal aggregate: %w", err)
	}
	return &a, nil
}

func centsAV(c money.Cents) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(c), 10)}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
