package cost

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	costexplorertypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// ManagedServices are the Cost Explorer service names covered by the
// cleanup commands. The costs command reports only on these so the
// numbers line up with what the sweeps can actually reclaim.
var ManagedServices = []string{
	"Amazon Elastic Compute Cloud - Compute",
	"EC2 - Other",
	"Amazon Elastic Load Balancing",
	"Amazon Elastic File System",
	"Amazon Elastic Container Service for Kubernetes",
	"AWS Key Management Service",
	"AWS Lambda",
	"Amazon Relational Database Service",
	"AWS Secrets Manager",
	"Amazon Simple Storage Service",
}

type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// ServiceSpend is the month-to-date unblended spend for one service.
type ServiceSpend struct {
	Service string  `json:"service"`
	Amount  float64 `json:"amount"`
}

type CostService struct {
	client CostExplorerAPI
}

func NewCostService(client CostExplorerAPI) *CostService {
	return &CostService{client: client}
}

// MonthToDateSpend returns the unblended spend per managed service from
// the first of the month through now, sorted by amount descending.
func (cs *CostService) MonthToDateSpend(ctx context.Context, now time.Time) ([]ServiceSpend, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return cs.SpendForTimeRange(ctx, start, now)
}

// SpendForTimeRange totals the unblended spend per managed service
// across the window, following Cost Explorer pagination.
func (cs *CostService) SpendForTimeRange(ctx context.Context, startDate, endDate time.Time) ([]ServiceSpend, error) {
	slog.Info("💰 Getting AWS costs", "start", startDate.Format("2006-01-02"), "end", endDate.Format("2006-01-02"))

	byService := make(map[string]float64)
	var nextToken *string
	for {
		input := cs.buildCostExplorerInput(startDate, endDate, nextToken)

		output, err := cs.client.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to get cost and usage: %v", err)
		}

		for _, result := range output.ResultsByTime {
			for _, group := range result.Groups {
				metric, ok := group.Metrics[string(costexplorertypes.MetricUnblendedCost)]
				if !ok || metric.Amount == nil {
					continue
				}
				amount, err := strconv.ParseFloat(*metric.Amount, 64)
				if err != nil {
					continue
				}
				if len(group.Keys) > 0 {
					byService[group.Keys[0]] += amount
				}
			}
		}

		if output.NextPageToken == nil {
			break
		}
		nextToken = output.NextPageToken
	}

	spend := make([]ServiceSpend, 0, len(byService))
	for service, amount := range byService {
		spend = append(spend, ServiceSpend{Service: service, Amount: amount})
	}
	sort.Slice(spend, func(i, j int) bool {
		return spend[i].Amount > spend[j].Amount
	})

	return spend, nil
}

func (cs *CostService) buildCostExplorerInput(startDate, endDate time.Time, nextToken *string) *costexplorer.GetCostAndUsageInput {
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &costexplorertypes.DateInterval{
			Start: aws.String(startDate.Format("2006-01-02")),
			End:   aws.String(endDate.Format("2006-01-02")),
		},
		Granularity: costexplorertypes.GranularityDaily,
		Filter: &costexplorertypes.Expression{
			Dimensions: &costexplorertypes.DimensionValues{
				Key:    costexplorertypes.DimensionService,
				Values: ManagedServices,
			},
		},
		Metrics: []string{string(costexplorertypes.MetricUnblendedCost)},
		GroupBy: []costexplorertypes.GroupDefinition{
			{
				Type: costexplorertypes.GroupDefinitionTypeDimension,
				Key:  aws.String(string(costexplorertypes.DimensionService)),
			},
		},
	}

	if nextToken != nil {
		input.NextPageToken = nextToken
	}

	return input
}
