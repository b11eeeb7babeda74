package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"
)

type captureSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (c *captureSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c.inputs = append(c.inputs, in)
	if c.err != nil {
		return nil, c.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type captureCW struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (c *captureCW) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.inputs = append(c.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestPublisherSend(t *testing.T) {
	q := &captureSQS{}
	p := NewPublisher(q, "https://sqs.local/queue")

	err := p.Send(context.Background(), map[string]string{"kind": "fold"}, map[string]string{"shop_id": "s1"})
	require.NoError(t, err)
	require.Len(t, q.inputs, 1)

	in := q.inputs[0]
	require.Equal(t, "https://sqs.local/queue", *in.QueueUrl)
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &body))
	require.Equal(t, "fold", body["kind"])
	require.Equal(t, "s1", *in.MessageAttributes["shop_id"].StringValue)
}

func TestPublisherSend_Error(t *testing.T) {
	p := NewPublisher(&captureSQS{err: errors.New("boom")}, "q")
	err := p.Send(context.Background(), struct{}{}, nil)
	require.Error(t, err)
}

func TestMetricsCount(t *testing.T) {
	cw := &captureCW{}
	m := NewMetrics(cw)

	require.NoError(t, m.Count(context.Background(), "AggregateFoldFailures", "shop-1", 1))
	require.Len(t, cw.inputs, 1)
	datum := cw.inputs[0].MetricData[0]
	require.Equal(t, "AggregateFoldFailures", *datum.MetricName)
	require.Equal(t, "shop-1", *datum.Dimensions[0].Value)

	var nilMetrics *Metrics
	require.NoError(t, nilMetrics.Count(context.Background(), "x", "", 1))
}
