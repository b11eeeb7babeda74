package orders

import (
	"context"
	"fmt"
	"strconv"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-shopflow/internal/aws"
)

// OrderCounter is the counters table row that sequences order ids.
const OrderCounter = "orders"

// Counter hands out strictly increasing sequence numbers from a counters
// table with one atomic ADD per call.
type Counter struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewCounter(client aws.DynamoDBAPI, tableName string) *Counter {
	return &Counter{client: client, tableName: tableName}
}

// Next increments the named counter and returns the new value. The first
// call for a name returns 1.
func (c *Counter) Next(ctx context.Context, name string) (int64, error) {
	out, err := c.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &c.tableName,
		Key: map[string]types.AttributeValue{
			"counter_name": &types.AttributeValueMemberS{Value: name},
		},
		UpdateExpression: awsString("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	n, ok := out.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("counter %s: missing seq in response", name)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", name, err)
	}
	return v, nil
}

// FormatOrderID renders a sequence number as a fixed-width order id.
func FormatOrderID(seq int64) string {
	return fmt.Sprintf("ORDER-%06d", seq)
}
