package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const metricsNamespace = "Shopflow"

// Metrics publishes operational counters to CloudWatch.
type Metrics struct {
	CloudWatch CloudWatchAPI
	nowFunc    func() time.Time
}

func NewMetrics(cw CloudWatchAPI) *Metrics {
	return &Metrics{CloudWatch: cw, nowFunc: time.Now}
}

// Count records value for metric name with a single "Shop" dimension
// (omitted when shopID is empty).
func (m *Metrics) Count(ctx context.Context, name, shopID string, value float64) error {
	if m == nil || m.CloudWatch == nil {
		return nil
	}
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Timestamp:  sdkaws.Time(m.nowFunc()),
		Unit:       cwtypes.StandardUnitCount,
		Value:      sdkaws.Float64(value),
	}
	if shopID != "" {
		datum.Dimensions = []cwtypes.Dimension{{Name: sdkaws.String("Shop"), Value: sdkaws.String(shopID)}}
	}
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(metricsNamespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
