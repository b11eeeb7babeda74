package cart

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
)

var (
	// ErrCartNotFound is returned when a conditional update finds no cart.
	ErrCartNotFound = errors.New("cart not found")
	// ErrLineNotFound is returned when a cart has no line for the product.
	ErrLineNotFound = errors.New("cart line not found")
)

// Store encapsulates operations on the carts table. Every line mutation is a
// single conditional UpdateItem so concurrent writers never lose updates.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) key(customerID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"customer_id": &types.AttributeValueMemberS{Value: customerID},
	}
}

func (s *Store) now() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)}
}

// Get returns (nil, nil) if the customer has no cart.
func (s *Store) Get(ctx context.Context, customerID string) (*Cart, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(customerID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeCart(out.Item)
}

// CreateIfNotExists writes an empty cart. It reports false if one already existed.
func (s *Store) CreateIfNotExists(ctx context.Context, customerID string) (bool, error) {
	now := s.now()
	item := s.key(customerID)
	item["lines"] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}}
	item["created_at"] = now
	item["updated_at"] = now

	_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(customer_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// IncrementLine adds qty to the product's line, creating the line at qty if
// absent. Returns ErrCartNotFound if the cart does not exist.
func (s *Store) IncrementLine(ctx context.Context, customerID, productID string, qty int) (*Cart, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(customerID),
		UpdateExpression:    awsString("SET #lines.#pid = if_not_exists(#lines.#pid, :zero) + :qty, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(customer_id)"),
		ExpressionAttributeNames: map[string]string{
			"#lines": "lines",
			"#pid":   productID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":qty":  &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":ua":   s.now(),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("update item (increment line): %w", err)
	}
	return decodeCart(out.Attributes)
}

// SetLine overwrites the quantity of an existing line.
func (s *Store) SetLine(ctx context.Context, customerID, productID string, qty int) (*Cart, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(customerID),
		UpdateExpression:    awsString("SET #lines.#pid = :qty, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(#lines.#pid)"),
		ExpressionAttributeNames: map[string]string{
			"#lines": "lines",
			"#pid":   productID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":ua":  s.now(),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("update item (set line): %w", err)
	}
	return decodeCart(out.Attributes)
}

// RemoveLines drops the given product lines; absent lines are ignored.
func (s *Store) RemoveLines(ctx context.Context, customerID string, productIDs ...string) (*Cart, error) {
	if len(productIDs) == 0 {
		c, err := s.Get(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, ErrCartNotFound
		}
		return c, nil
	}
	names := map[string]string{"#lines": "lines"}
	expr := "REMOVE "
	for i, pid := range productIDs {
		ph := "#p" + strconv.Itoa(i)
		names[ph] = pid
		if i > 0 {
			expr += ", "
		}
		expr += "#lines." + ph
	}
	expr += " SET updated_at = :ua"

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.key(customerID),
		UpdateExpression:          &expr,
		ConditionExpression:       awsString("attribute_exists(customer_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: map[string]types.AttributeValue{":ua": s.now()},
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("update item (remove lines): %w", err)
	}
	return decodeCart(out.Attributes)
}

// Clear empties the line set in place.
func (s *Store) Clear(ctx context.Context, customerID string) (*Cart, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(customerID),
		UpdateExpression:         awsString("SET #lines = :empty, updated_at = :ua"),
		ConditionExpression:      awsString("attribute_exists(customer_id)"),
		ExpressionAttributeNames: map[string]string{"#lines": "lines"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
			":ua":    s.now(),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("update item (clear): %w", err)
	}
	return decodeCart(out.Attributes)
}

func decodeCart(item map[string]types.AttributeValue) (*Cart, error) {
	var c Cart
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if c.Lines == nil {
		c.Lines = map[string]int{}
	}
	return &c, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
