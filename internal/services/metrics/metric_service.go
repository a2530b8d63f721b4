package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/awsweep/awsweep/internal/types"
)

type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// Query describes a single metric to pull over a time window.
type Query struct {
	Namespace  string
	MetricName string
	Dimensions []cwtypes.Dimension
	Window     types.CloudWatchTimeWindow
	Statistics []cwtypes.Statistic
}

type Service struct {
	client CloudWatchAPI
}

func NewService(client CloudWatchAPI) *Service {
	return &Service{client: client}
}

// Dimension is a small convenience for building metric dimensions inline.
func Dimension(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// Datapoints fetches the raw datapoints for a query. Errors from CloudWatch
// are surfaced to the caller; resources with no activity simply return an
// empty slice.
func (s *Service) Datapoints(ctx context.Context, q Query) ([]cwtypes.Datapoint, error) {
	out, err := s.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(q.Namespace),
		MetricName: aws.String(q.MetricName),
		Dimensions: q.Dimensions,
		StartTime:  aws.Time(q.Window.StartTime),
		EndTime:    aws.Time(q.Window.EndTime),
		Period:     aws.Int32(q.Window.Period),
		Statistics: q.Statistics,
	})
	if err != nil {
		return nil, err
	}
	return out.Datapoints, nil
}

// SumOverWindow totals the Sum statistic across the window. Used for
// count-style metrics such as request counts and invocations.
func (s *Service) SumOverWindow(ctx context.Context, q Query) (float64, error) {
	q.Statistics = []cwtypes.Statistic{cwtypes.StatisticSum}
	points, err := s.Datapoints(ctx, q)
	if err != nil {
		slog.Warn("⚠️ Failed to fetch CloudWatch metric", "namespace", q.Namespace, "metric", q.MetricName, "error", err)
		return 0, err
	}
	var total float64
	for _, p := range points {
		if p.Sum != nil {
			total += *p.Sum
		}
	}
	return total, nil
}

// MeanOverWindow averages the Average statistic across the window.
func (s *Service) MeanOverWindow(ctx context.Context, q Query) (float64, error) {
	q.Statistics = []cwtypes.Statistic{cwtypes.StatisticAverage}
	points, err := s.Datapoints(ctx, q)
	if err != nil {
		slog.Warn("⚠️ Failed to fetch CloudWatch metric", "namespace", q.Namespace, "metric", q.MetricName, "error", err)
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}
	var total float64
	for _, p := range points {
		if p.Average != nil {
			total += *p.Average
		}
	}
	return total / float64(len(points)), nil
}

// PeakOverWindow returns the highest Average datapoint in the window. Used
// where a single busy day is enough to call a resource active.
func (s *Service) PeakOverWindow(ctx context.Context, q Query) (float64, error) {
	q.Statistics = []cwtypes.Statistic{cwtypes.StatisticAverage}
	points, err := s.Datapoints(ctx, q)
	if err != nil {
		slog.Warn("⚠️ Failed to fetch CloudWatch metric", "namespace", q.Namespace, "metric", q.MetricName, "error", err)
		return 0, err
	}
	var peak float64
	for _, p := range points {
		if p.Average != nil && *p.Average > peak {
			peak = *p.Average
		}
	}
	return peak, nil
}

// MaxOverWindow returns the highest Maximum datapoint in the window.
func (s *Service) MaxOverWindow(ctx context.Context, q Query) (float64, error) {
	q.Statistics = []cwtypes.Statistic{cwtypes.StatisticMaximum}
	points, err := s.Datapoints(ctx, q)
	if err != nil {
		slog.Warn("⚠️ Failed to fetch CloudWatch metric", "namespace", q.Namespace, "metric", q.MetricName, "error", err)
		return 0, err
	}
	var max float64
	for _, p := range points {
		if p.Maximum != nil && *p.Maximum > max {
			max = *p.Maximum
		}
	}
	return max, nil
}
