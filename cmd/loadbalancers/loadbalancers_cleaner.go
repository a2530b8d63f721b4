package loadbalancers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/metrics"
	"github.com/awsweep/awsweep/internal/services/pricing"
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

// riskyNamePatterns each produce their own warning when found in a
// load balancer name.
var riskyNamePatterns = []string{"prod", "production", "api", "public", "main", "primary", "critical", "live", "web", "app", "frontend"}

const activeRequestThreshold = 1000

type ELBv2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	DescribeTargetGroups(ctx context.Context, params *elbv2.DescribeTargetGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error)
	DescribeTargetHealth(ctx context.Context, params *elbv2.DescribeTargetHealthInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error)
	DeleteLoadBalancer(ctx context.Context, params *elbv2.DeleteLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.DeleteLoadBalancerOutput, error)
}

type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error)
	DescribeInstanceHealth(ctx context.Context, params *elb.DescribeInstanceHealthInput, optFns ...func(*elb.Options)) (*elb.DescribeInstanceHealthOutput, error)
	DeleteLoadBalancer(ctx context.Context, params *elb.DeleteLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerOutput, error)
}

type MetricsAPI interface {
	SumOverWindow(ctx context.Context, q metrics.Query) (float64, error)
	PeakOverWindow(ctx context.Context, q metrics.Query) (float64, error)
}

// loadBalancer is one discovered load balancer with its enrichment.
type loadBalancer struct {
	Name           string
	Arn            string
	Type           string
	Region         string
	Scheme         string
	Classic        bool
	CreatedAt      time.Time
	Requests       float64
	TargetsTotal   int
	TargetsHealthy int
	MonthlyCost    float64
	Safety         types.SafetyReport
}

func (lb loadBalancer) unused() bool {
	return lb.Requests == 0 && lb.TargetsTotal == 0
}

type Cleaner struct {
	opts       *cleanup.SweepOptions
	profile    string
	regions    []string
	pricer     *pricing.Service
	newELBv2   func(region string) (ELBv2API, error)
	newELB     func(region string) (ELBAPI, error)
	newMetrics func(region string) (MetricsAPI, error)
	now        func() time.Time
}

func NewCleaner(opts *cleanup.SweepOptions) (*Cleaner, error) {
	profile, regions, pricer, err := opts.Resolve()
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		opts:    opts,
		profile: profile,
		regions: regions,
		pricer:  pricer,
		newELBv2: func(region string) (ELBv2API, error) {
			return client.NewELBv2Client(region, profile)
		},
		newELB: func(region string) (ELBAPI, error) {
			return client.NewELBClient(region, profile)
		},
		newMetrics: func(region string) (MetricsAPI, error) {
			cw, err := client.NewCloudWatchClient(region, profile)
			if err != nil {
				return nil, err
			}
			return metrics.NewService(cw), nil
		},
		now: time.Now,
	}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	stsClient, err := client.NewSTSClient("", c.profile)
	if err != nil {
		return err
	}
	if _, err := cleanup.CallerIdentity(ctx, stsClient); err != nil {
		return err
	}

	regions, err := cleanup.ProbeRegions(ctx, c.regions, c.probe)
	if err != nil {
		return err
	}

	var balancers []loadBalancer
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "load_balancers", len(found))
		balancers = append(balancers, found...)
	}

	if err := c.summarize(balancers); err != nil {
		return err
	}

	items, filters := c.buildSelection(balancers)
	flow := c.opts.NewFlow("load balancers", items, filters, rate.NewLimiter(rate.Every(2*time.Second), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newELBv2(region)
	if err != nil {
		return err
	}
	_, err = api.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{PageSize: aws.Int32(1)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]loadBalancer, error) {
	v2, err := c.newELBv2(region)
	if err != nil {
		return nil, err
	}
	classic, err := c.newELB(region)
	if err != nil {
		return nil, err
	}
	metricsAPI, err := c.newMetrics(region)
	if err != nil {
		return nil, err
	}

	window, err := metrics.GetTimeWindow(c.now(), metrics.LastMonth)
	if err != nil {
		return nil, err
	}

	var balancers []loadBalancer

	v2Paginator := elbv2.NewDescribeLoadBalancersPaginator(v2, &elbv2.DescribeLoadBalancersInput{})
	for v2Paginator.HasMorePages() {
		page, err := v2Paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list load balancers: %v", err)
		}
		for _, lb := range page.LoadBalancers {
			balancers = append(balancers, c.enrichV2(ctx, region, v2, metricsAPI, window, lb))
		}
	}

	classicPaginator := elb.NewDescribeLoadBalancersPaginator(classic, &elb.DescribeLoadBalancersInput{})
	for classicPaginator.HasMorePages() {
		page, err := classicPaginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list classic load balancers: %v", err)
		}
		for _, lb := range page.LoadBalancerDescriptions {
			balancers = append(balancers, c.enrichClassic(ctx, region, classic, metricsAPI, window, lb))
		}
	}

	return balancers, nil
}

func (c *Cleaner) enrichV2(ctx context.Context, region string, api ELBv2API, metricsAPI MetricsAPI, window types.CloudWatchTimeWindow, lb elbv2types.LoadBalancer) loadBalancer {
	balancer := loadBalancer{
		Name:   aws.ToString(lb.LoadBalancerName),
		Arn:    aws.ToString(lb.LoadBalancerArn),
		Type:   string(lb.Type),
		Region: region,
		Scheme: string(lb.Scheme),
	}
	if lb.CreatedTime != nil {
		balancer.CreatedAt = *lb.CreatedTime
	}

	// CloudWatch identifies the load balancer by the ARN suffix,
	// e.g. app/my-lb/50dc6c495c0c9188.
	dimension := balancer.Arn
	if idx := strings.Index(dimension, ":loadbalancer/"); idx >= 0 {
		dimension = dimension[idx+len(":loadbalancer/"):]
	}

	switch lb.Type {
	case elbv2types.LoadBalancerTypeEnumApplication:
		requests, err := metricsAPI.SumOverWindow(ctx, metrics.Query{
			Namespace:  "AWS/ApplicationELB",
			MetricName: "RequestCount",
			Dimensions: []cwtypes.Dimension{metrics.Dimension("LoadBalancer", dimension)},
			Window:     window,
		})
		if err == nil {
			balancer.Requests = requests
		}
	case elbv2types.LoadBalancerTypeEnumNetwork:
		flows, err := metricsAPI.PeakOverWindow(ctx, metrics.Query{
			Namespace:  "AWS/NetworkELB",
			MetricName: "ActiveFlowCount_TCP",
			Dimensions: []cwtypes.Dimension{metrics.Dimension("LoadBalancer", dimension)},
			Window:     window,
		})
		if err == nil {
			balancer.Requests = flows
		}
	}

	balancer.TargetsTotal, balancer.TargetsHealthy = c.countTargets(ctx, api, balancer.Arn)
	balancer.MonthlyCost = c.pricer.LoadBalancerMonthly(balancer.Type, region)
	balancer.Safety = c.safetyReport(balancer)
	return balancer
}

func (c *Cleaner) enrichClassic(ctx context.Context, region string, api ELBAPI, metricsAPI MetricsAPI, window types.CloudWatchTimeWindow, lb elbtypes.LoadBalancerDescription) loadBalancer {
	balancer := loadBalancer{
		Name:    aws.ToString(lb.LoadBalancerName),
		Type:    "classic",
		Region:  region,
		Scheme:  aws.ToString(lb.Scheme),
		Classic: true,
	}
	if lb.CreatedTime != nil {
		balancer.CreatedAt = *lb.CreatedTime
	}

	requests, err := metricsAPI.SumOverWindow(ctx, metrics.Query{
		Namespace:  "AWS/ELB",
		MetricName: "RequestCount",
		Dimensions: []cwtypes.Dimension{metrics.Dimension("LoadBalancerName", balancer.Name)},
		Window:     window,
	})
	if err == nil {
		balancer.Requests = requests
	}

	health, err := api.DescribeInstanceHealth(ctx, &elb.DescribeInstanceHealthInput{LoadBalancerName: lb.LoadBalancerName})
	if err == nil {
		balancer.TargetsTotal = len(health.InstanceStates)
		for _, state := range health.InstanceStates {
			if aws.ToString(state.State) == "InService" {
				balancer.TargetsHealthy++
			}
		}
	}

	balancer.MonthlyCost = c.pricer.LoadBalancerMonthly(balancer.Type, region)
	balancer.Safety = c.safetyReport(balancer)
	return balancer
}

func (c *Cleaner) countTargets(ctx context.Context, api ELBv2API, arn string) (total, healthy int) {
	groups, err := api.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{LoadBalancerArn: aws.String(arn)})
	if err != nil {
		return 0, 0
	}
	for _, group := range groups.TargetGroups {
		health, err := api.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{TargetGroupArn: group.TargetGroupArn})
		if err != nil {
			continue
		}
		total += len(health.TargetHealthDescriptions)
		for _, description := range health.TargetHealthDescriptions {
			if description.TargetHealth != nil && description.TargetHealth.State == elbv2types.TargetHealthStateEnumHealthy {
				healthy++
			}
		}
	}
	return total, healthy
}

func (c *Cleaner) safetyReport(lb loadBalancer) types.SafetyReport {
	report := types.SafetyReport{}

	lowered := strings.ToLower(lb.Name)
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(lowered, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("name contains '%s'", pattern))
		}
	}

	if lb.TargetsTotal > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d registered targets (%d healthy)", lb.TargetsTotal, lb.TargetsHealthy))
	}
	if lb.Scheme == string(elbv2types.LoadBalancerSchemeEnumInternetFacing) {
		report.Warnings = append(report.Warnings, "internet-facing")
	}
	if lb.Requests > activeRequestThreshold {
		report.Warnings = append(report.Warnings, fmt.Sprintf("served %.0f requests in the last 30 days", lb.Requests))
	}

	if !lb.CreatedAt.IsZero() {
		days := int(c.now().Sub(lb.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(balancers []loadBalancer) error {
	report := markdown.New()
	report.Heading(1, "Load balancer inventory")

	unused, risky := 0, 0
	for _, lb := range balancers {
		if lb.unused() {
			unused++
		}
		if lb.Safety.IsRisky() {
			risky++
		}
	}
	total := 0.0
	rows := make([][]string, 0, len(balancers))
	sorted := append([]loadBalancer(nil), balancers...)
	for i := range sorted {
		total += sorted[i].MonthlyCost
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})
	for _, lb := range sorted {
		status := "✓"
		if lb.Safety.IsRisky() {
			status = "⚠️"
		}
		rows = append(rows, []string{
			status, lb.Name, lb.Type, lb.Region,
			fmt.Sprintf("%.0f", lb.Requests),
			fmt.Sprintf("%d", lb.TargetsTotal),
			utils.FormatMoney(lb.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d load balancers, %d potentially unused, %d with warnings. Estimated %s/month (%s/year).",
		len(balancers), unused, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Name", "Type", "Region", "Requests (30d)", "Targets", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(balancers []loadBalancer) ([]cleanup.Item, []cleanup.Filter) {
	unusedNames := make(map[string]bool)
	classicNames := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(balancers))
	for _, lb := range balancers {
		lb := lb
		if lb.unused() {
			unusedNames[lb.Arn+lb.Name] = true
		}
		if lb.Classic {
			classicNames[lb.Arn+lb.Name] = true
		}

		items = append(items, cleanup.Item{
			ID:          lb.Arn + lb.Name,
			Name:        lb.Name,
			Region:      lb.Region,
			MonthlyCost: lb.MonthlyCost,
			Display: fmt.Sprintf("%s [%s, %s] %.0f requests/30d, %d targets, %s/month",
				lb.Name, lb.Type, lb.Region, lb.Requests, lb.TargetsTotal, utils.FormatMoney(lb.MonthlyCost)),
			Safety: lb.Safety,
			Delete: c.deleteFunc(lb),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "unused",
			Description: "no requests and no registered targets",
			Match:       func(item cleanup.Item) bool { return unusedNames[item.ID] },
		},
		{
			Keyword:     "clb",
			Description: "classic load balancers",
			Match:       func(item cleanup.Item) bool { return classicNames[item.ID] },
		},
		{
			Keyword:     "safe",
			Description: "no safety warnings",
			Match:       func(item cleanup.Item) bool { return !item.Safety.IsRisky() },
		},
	}

	return items, filters
}

func (c *Cleaner) deleteFunc(lb loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if lb.Classic {
			api, err := c.newELB(lb.Region)
			if err != nil {
				return err
			}
			_, err = api.DeleteLoadBalancer(ctx, &elb.DeleteLoadBalancerInput{LoadBalancerName: aws.String(lb.Name)})
			return ignoreNotFound(err)
		}

		api, err := c.newELBv2(lb.Region)
		if err != nil {
			return err
		}
		_, err = api.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{LoadBalancerArn: aws.String(lb.Arn)})
		return ignoreNotFound(err)
	}
}

// ignoreNotFound treats an already-deleted load balancer as success.
func ignoreNotFound(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "LoadBalancerNotFound" {
		return nil
	}
	return err
}
