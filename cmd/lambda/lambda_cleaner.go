package lambda

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
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
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

// riskyNamePatterns each produce their own warning.
var riskyNamePatterns = []string{"prod", "production", "api", "webhook", "auth", "payment", "critical", "main", "core", "live", "backup"}

// sensitiveEnvPatterns flag env var names that suggest the function
// holds credentials.
var sensitiveEnvPatterns = []string{"API_KEY", "SECRET", "TOKEN", "PASSWORD", "DATABASE"}

// lastModifiedLayout is Lambda's LastModified timestamp format.
const lastModifiedLayout = "2006-01-02T15:04:05.000-0700"

type LambdaAPI interface {
	ListFunctions(ctx context.Context, params *awslambda.ListFunctionsInput, optFns ...func(*awslambda.Options)) (*awslambda.ListFunctionsOutput, error)
	ListEventSourceMappings(ctx context.Context, params *awslambda.ListEventSourceMappingsInput, optFns ...func(*awslambda.Options)) (*awslambda.ListEventSourceMappingsOutput, error)
	DeleteFunction(ctx context.Context, params *awslambda.DeleteFunctionInput, optFns ...func(*awslambda.Options)) (*awslambda.DeleteFunctionOutput, error)
}

type MetricsAPI interface {
	SumOverWindow(ctx context.Context, q metrics.Query) (float64, error)
}

type function struct {
	Name            string
	Region          string
	Runtime         string
	MemoryMB        int32
	TimeoutSeconds  int32
	Invocations     float64
	Errors          float64
	EventSources    int
	SensitiveEnv    []string
	LastModified    time.Time
	MonthlyCost     float64
	Safety          types.SafetyReport
}

type Cleaner struct {
	opts       *cleanup.SweepOptions
	profile    string
	regions    []string
	pricer     *pricing.Service
	newLambda  func(region string) (LambdaAPI, error)
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
		newLambda: func(region string) (LambdaAPI, error) {
			return client.NewLambdaClient(region, profile)
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

	var functions []function
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "functions", len(found))
		functions = append(functions, found...)
	}

	if err := c.summarize(functions); err != nil {
		return err
	}

	items, filters := c.buildSelection(functions)
	flow := c.opts.NewFlow("Lambda functions", items, filters, rate.NewLimiter(rate.Every(500*time.Millisecond), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newLambda(region)
	if err != nil {
		return err
	}
	_, err = api.ListFunctions(ctx, &awslambda.ListFunctionsInput{MaxItems: aws.Int32(1)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]function, error) {
	api, err := c.newLambda(region)
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

	var functions []function
	paginator := awslambda.NewListFunctionsPaginator(api, &awslambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list functions: %v", err)
		}
		for _, config := range page.Functions {
			functions = append(functions, c.enrich(ctx, region, api, metricsAPI, window, config))
		}
	}

	return functions, nil
}

func (c *Cleaner) enrich(ctx context.Context, region string, api LambdaAPI, metricsAPI MetricsAPI, window types.CloudWatchTimeWindow, config lambdatypes.FunctionConfiguration) function {
	fn := function{
		Name:           aws.ToString(config.FunctionName),
		Region:         region,
		Runtime:        string(config.Runtime),
		MemoryMB:       aws.ToInt32(config.MemorySize),
		TimeoutSeconds: aws.ToInt32(config.Timeout),
	}
	if config.LastModified != nil {
		if modified, err := time.Parse(lastModifiedLayout, *config.LastModified); err == nil {
			fn.LastModified = modified
		}
	}
	if config.Environment != nil {
		for name := range config.Environment.Variables {
			upper := strings.ToUpper(name)
			for _, pattern := range sensitiveEnvPatterns {
				if strings.Contains(upper, pattern) {
					fn.SensitiveEnv = append(fn.SensitiveEnv, name)
					break
				}
			}
		}
		sort.Strings(fn.SensitiveEnv)
	}

	dimensions := []cwtypes.Dimension{metrics.Dimension("FunctionName", fn.Name)}
	if invocations, err := metricsAPI.SumOverWindow(ctx, metrics.Query{
		Namespace: "AWS/Lambda", MetricName: "Invocations", Dimensions: dimensions, Window: window,
	}); err == nil {
		fn.Invocations = invocations
	}
	if errorCount, err := metricsAPI.SumOverWindow(ctx, metrics.Query{
		Namespace: "AWS/Lambda", MetricName: "Errors", Dimensions: dimensions, Window: window,
	}); err == nil {
		fn.Errors = errorCount
	}

	if mappings, err := api.ListEventSourceMappings(ctx, &awslambda.ListEventSourceMappingsInput{FunctionName: config.FunctionName}); err == nil {
		fn.EventSources = len(mappings.EventSourceMappings)
	}

	fn.MonthlyCost = c.pricer.LambdaMonthly(fn.MemoryMB, fn.TimeoutSeconds, fn.Invocations)
	fn.Safety = c.safetyReport(fn)
	return fn
}

func (c *Cleaner) safetyReport(fn function) types.SafetyReport {
	report := types.SafetyReport{}

	lowered := strings.ToLower(fn.Name)
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(lowered, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("name contains '%s'", pattern))
		}
	}

	if fn.EventSources > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d event source mappings", fn.EventSources))
	}
	if len(fn.SensitiveEnv) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("sensitive environment variables: %s", strings.Join(fn.SensitiveEnv, ", ")))
	}

	if !fn.LastModified.IsZero() {
		days := int(c.now().Sub(fn.LastModified).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("modified only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(functions []function) error {
	report := markdown.New()
	report.Heading(1, "Lambda function inventory")

	unused, risky := 0, 0
	total := 0.0
	for _, fn := range functions {
		if fn.Invocations == 0 {
			unused++
		}
		if fn.Safety.IsRisky() {
			risky++
		}
		total += fn.MonthlyCost
	}

	sorted := append([]function(nil), functions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, fn := range sorted {
		status := "✓"
		if fn.Safety.IsRisky() {
			status = "⚠️"
		}
		rows = append(rows, []string{
			status, fn.Name, fn.Region, fn.Runtime,
			fmt.Sprintf("%d MB", fn.MemoryMB),
			fmt.Sprintf("%.0f", fn.Invocations),
			fmt.Sprintf("%.0f", fn.Errors),
			utils.FormatMoney(fn.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d functions, %d without invocations, %d with warnings. Estimated %s/month (%s/year).",
		len(functions), unused, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Name", "Region", "Runtime", "Memory", "Invocations (30d)", "Errors (30d)", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(functions []function) ([]cleanup.Item, []cleanup.Filter) {
	unusedIDs := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(functions))
	for _, fn := range functions {
		fn := fn
		id := fn.Region + "/" + fn.Name
		if fn.Invocations == 0 {
			unusedIDs[id] = true
		}

		items = append(items, cleanup.Item{
			ID:          id,
			Name:        fn.Name,
			Region:      fn.Region,
			MonthlyCost: fn.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %s, %.0f invocations/30d, %s/month",
				fn.Name, fn.Region, fn.Runtime, fn.Invocations, utils.FormatMoney(fn.MonthlyCost)),
			Safety: fn.Safety,
			Delete: c.deleteFunc(fn),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "unused",
			Description: "no invocations in 30 days",
			Match:       func(item cleanup.Item) bool { return unusedIDs[item.ID] },
		},
		{
			Keyword:     "safe",
			Description: "no safety warnings",
			Match:       func(item cleanup.Item) bool { return !item.Safety.IsRisky() },
		},
	}

	return items, filters
}

func (c *Cleaner) deleteFunc(fn function) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newLambda(fn.Region)
		if err != nil {
			return err
		}
		if _, err := api.DeleteFunction(ctx, &awslambda.DeleteFunctionInput{FunctionName: aws.String(fn.Name)}); err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to delete function: %v", err)
		}
		return nil
	}
}

// isNotFound treats a function that is already gone as deleted.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}
