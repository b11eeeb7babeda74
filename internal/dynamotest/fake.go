// Package dynamotest provides an in-memory DynamoDB used by store tests. It
// evaluates the condition, filter, key-condition and update expressions the
// stores issue, with single-table-lock atomicity per call.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// FailFunc lets a test inject an error for an operation on a table. Returning
// nil lets the call proceed.
type FailFunc func(op, table string) error

// Fake implements the DynamoDBAPI interface of internal/aws.
type Fake struct {
	mu     sync.Mutex
	keys   map[string]string // table -> hash key attribute
	tables map[string]map[string]map[string]types.AttributeValue
	Fail   FailFunc
	Calls  map[string]int
}

func New() *Fake {
	return &Fake{
		keys:   map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
		Calls:  map[string]int{},
	}
}

// CreateTable registers a table with a single string hash key.
func (f *Fake) CreateTable(name, hashKey string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = hashKey
	if _, ok := f.tables[name]; !ok {
		f.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return f
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len returns the number of items in table.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

// Seed stores item unconditionally.
func (f *Fake) Seed(table string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk, err := f.pk(table, item)
	if err != nil {
		panic(err)
	}
	f.tables[table][pk] = copyItem(item)
}

func (f *Fake) begin(op string, table *string) (string, error) {
	if table == nil {
		return "", errors.New("missing table name")
	}
	f.Calls[op]++
	if _, ok := f.keys[*table]; !ok {
		return "", &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + *table)}
	}
	if f.Fail != nil {
		if err := f.Fail(op, *table); err != nil {
			return "", err
		}
	}
	return *table, nil
}

func (f *Fake) pk(table string, item map[string]types.AttributeValue) (string, error) {
	keyName := f.keys[table]
	v, ok := item[keyName].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("item for %s missing string key %s", table, keyName)
	}
	return v.Value, nil
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
}

func checkCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	if expr == nil || *expr == "" {
		return nil
	}
	cond, err := compileCondition(*expr, names, values)
	if err != nil {
		return fmt.Errorf("ValidationException: %w", err)
	}
	if item == nil {
		item = map[string]types.AttributeValue{}
	}
	ok, err := cond(item)
	if err != nil {
		return fmt.Errorf("ValidationException: %w", err)
	}
	if !ok {
		return conditionFailed()
	}
	return nil
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, err := f.begin("PutItem", in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pk(table, in.Item)
	if err != nil {
		return nil, err
	}
	old := f.tables[table][pk]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old); err != nil {
		return nil, err
	}
	f.tables[table][pk] = copyItem(in.Item)
	out := &dyn.PutItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, err := f.begin("GetItem", in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pk(table, in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := f.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, err := f.begin("UpdateItem", in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pk(table, in.Key)
	if err != nil {
		return nil, err
	}
	old, exists := f.tables[table][pk]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old); err != nil {
		return nil, err
	}

	var item map[string]types.AttributeValue
	if exists {
		item = copyItem(old)
	} else {
		item = copyItem(in.Key)
	}
	if in.UpdateExpression != nil {
		actions, err := compileUpdate(*in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, fmt.Errorf("ValidationException: %w", err)
		}
		for _, a := range actions {
			if err := a(item); err != nil {
				return nil, fmt.Errorf("ValidationException: %w", err)
			}
		}
	}
	f.tables[table][pk] = item

	out := &dyn.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = copyItem(item)
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		if exists {
			out.Attributes = copyItem(old)
		}
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, err := f.begin("DeleteItem", in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pk(table, in.Key)
	if err != nil {
		return nil, err
	}
	old, exists := f.tables[table][pk]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old); err != nil {
		return nil, err
	}
	delete(f.tables[table], pk)
	out := &dyn.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld && exists {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

// Query treats the key condition as a filter over the whole table, so
// IndexName only needs to name an attribute that exists on the items.
func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, err := f.begin("Query", in.TableName)
	if err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, errors.New("ValidationException: missing key condition")
	}
	keyCond, err := compileCondition(*in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, fmt.Errorf("ValidationException: %w", err)
	}
	items, last, scanned, err := f.collect(table, keyCond, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, in.ExclusiveStartKey, in.Limit)
	if err != nil {
		return nil, err
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items)), ScannedCount: scanned, LastEvaluatedKey: last}, nil
}

func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, err := f.begin("Scan", in.TableName)
	if err != nil {
		return nil, err
	}
	items, last, scanned, err := f.collect(table, nil, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, in.ExclusiveStartKey, in.Limit)
	if err != nil {
		return nil, err
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items)), ScannedCount: scanned, LastEvaluatedKey: last}, nil
}

// collect walks items in key order. Limit bounds the items evaluated, not the
// items returned, matching DynamoDB.
func (f *Fake) collect(table string, keyCond condFunc, filter *string, names map[string]string, values map[string]types.AttributeValue,
	start map[string]types.AttributeValue, limit *int32) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, int32, error) {

	var filterFn condFunc
	if filter != nil && *filter != "" {
		var err error
		filterFn, err = compileCondition(*filter, names, values)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("ValidationException: %w", err)
		}
	}

	keyName := f.keys[table]
	pks := make([]string, 0, len(f.tables[table]))
	for pk := range f.tables[table] {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	startAfter := ""
	if start != nil {
		if v, ok := start[keyName].(*types.AttributeValueMemberS); ok {
			startAfter = v.Value
		}
	}

	var (
		out     []map[string]types.AttributeValue
		scanned int32
		lastPK  string
		last    map[string]types.AttributeValue
	)
	for _, pk := range pks {
		if startAfter != "" && pk <= startAfter {
			continue
		}
		item := f.tables[table][pk]
		if keyCond != nil {
			ok, err := keyCond(item)
			if err != nil {
				return nil, nil, 0, err
			}
			if !ok {
				continue
			}
		}
		if limit != nil && scanned >= *limit {
			last = map[string]types.AttributeValue{keyName: &types.AttributeValueMemberS{Value: lastPK}}
			break
		}
		scanned++
		lastPK = pk
		if filterFn != nil {
			ok, err := filterFn(item)
			if err != nil {
				return nil, nil, 0, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, copyItem(item))
	}
	return out, last, scanned, nil
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v types.AttributeValue) types.AttributeValue {
	switch t := v.(type) {
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: copyItem(t.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(t.Value))
		for i, x := range t.Value {
			l[i] = copyValue(x)
		}
		return &types.AttributeValueMemberL{Value: l}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), t.Value...)}
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: t.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: t.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: t.Value}
	}
	return v
}
