package rds

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	awsrds "github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/metrics"
	"github.com/awsweep/awsweep/internal/services/pricing"
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

// riskyNamePatterns each produce their own warning when found in the
// instance identifier.
var riskyNamePatterns = []string{"prod", "production", "live", "main", "primary", "master", "critical", "backup", "replica", "standby"}

// activeCPUPercent is the average CPU above which an instance counts as
// active even with zero recorded connections.
const activeCPUPercent = 1.0

type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *awsrds.DescribeDBInstancesInput, optFns ...func(*awsrds.Options)) (*awsrds.DescribeDBInstancesOutput, error)
	DeleteDBInstance(ctx context.Context, params *awsrds.DeleteDBInstanceInput, optFns ...func(*awsrds.Options)) (*awsrds.DeleteDBInstanceOutput, error)
}

type MetricsAPI interface {
	MeanOverWindow(ctx context.Context, q metrics.Query) (float64, error)
	MaxOverWindow(ctx context.Context, q metrics.Query) (float64, error)
}

type dbInstance struct {
	ID                 string
	Region             string
	Engine             string
	InstanceClass      string
	Status             string
	StorageGB          int32
	MultiAZ            bool
	Encrypted          bool
	InVPC              bool
	BackupRetention    int32
	DeletionProtection bool
	ReadReplicas       int
	AvgConnections     float64
	MaxConnections     float64
	AvgCPU             float64
	MaxCPU             float64
	CreatedAt          time.Time
	MonthlyCost        float64
	Safety             types.SafetyReport
}

// active reports whether the instance saw any traffic over the metrics
// window.
func (db dbInstance) active() bool {
	return db.AvgConnections > 0 || db.AvgCPU > activeCPUPercent
}

type Cleaner struct {
	opts       *cleanup.SweepOptions
	profile    string
	regions    []string
	pricer     *pricing.Service
	newRDS     func(region string) (RDSAPI, error)
	newMetrics func(region string) (MetricsAPI, error)
	now        func() time.Time

	skipFinalSnapshot bool
}

func NewCleaner(opts *cleanup.SweepOptions, skipFinalSnapshot bool) (*Cleaner, error) {
	profile, regions, pricer, err := opts.Resolve()
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		opts:    opts,
		profile: profile,
		regions: regions,
		pricer:  pricer,
		newRDS: func(region string) (RDSAPI, error) {
			return client.NewRDSClient(region, profile)
		},
		newMetrics: func(region string) (MetricsAPI, error) {
			cw, err := client.NewCloudWatchClient(region, profile)
			if err != nil {
				return nil, err
			}
			return metrics.NewService(cw), nil
		},
		now:               time.Now,
		skipFinalSnapshot: skipFinalSnapshot,
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

	var instances []dbInstance
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "instances", len(found))
		instances = append(instances, found...)
	}

	if err := c.summarize(instances); err != nil {
		return err
	}

	if len(instances) > 0 && !c.opts.DryRun && !c.skipFinalSnapshot {
		prompter := cleanup.NewPrompter(os.Stdin, os.Stdout, c.opts.Yes)
		take, err := prompter.Confirm("Take a final snapshot of each instance before deleting? [recommended]")
		if err != nil {
			return err
		}
		c.skipFinalSnapshot = !take
	}

	items, filters := c.buildSelection(instances)
	flow := c.opts.NewFlow("RDS instances", items, filters, rate.NewLimiter(rate.Every(2*time.Second), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newRDS(region)
	if err != nil {
		return err
	}
	_, err = api.DescribeDBInstances(ctx, &awsrds.DescribeDBInstancesInput{MaxRecords: aws.Int32(20)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]dbInstance, error) {
	api, err := c.newRDS(region)
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

	var instances []dbInstance
	paginator := awsrds.NewDescribeDBInstancesPaginator(api, &awsrds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe DB instances: %v", err)
		}
		for _, instance := range page.DBInstances {
			// Aurora cluster members are deleted through their cluster,
			// not one instance at a time.
			if instance.DBClusterIdentifier != nil {
				slog.Info("⏭️ Skipping Aurora cluster member", "instance", aws.ToString(instance.DBInstanceIdentifier), "cluster", aws.ToString(instance.DBClusterIdentifier))
				continue
			}
			instances = append(instances, c.enrich(ctx, region, metricsAPI, window, instance))
		}
	}

	return instances, nil
}

func (c *Cleaner) enrich(ctx context.Context, region string, metricsAPI MetricsAPI, window types.CloudWatchTimeWindow, instance rdstypes.DBInstance) dbInstance {
	db := dbInstance{
		ID:                 aws.ToString(instance.DBInstanceIdentifier),
		Region:             region,
		Engine:             aws.ToString(instance.Engine),
		InstanceClass:      aws.ToString(instance.DBInstanceClass),
		Status:             aws.ToString(instance.DBInstanceStatus),
		StorageGB:          aws.ToInt32(instance.AllocatedStorage),
		MultiAZ:            aws.ToBool(instance.MultiAZ),
		Encrypted:          aws.ToBool(instance.StorageEncrypted),
		InVPC:              instance.DBSubnetGroup != nil,
		BackupRetention:    aws.ToInt32(instance.BackupRetentionPeriod),
		DeletionProtection: aws.ToBool(instance.DeletionProtection),
		ReadReplicas:       len(instance.ReadReplicaDBInstanceIdentifiers),
	}
	if instance.InstanceCreateTime != nil {
		db.CreatedAt = *instance.InstanceCreateTime
	}

	dimensions := []cwtypes.Dimension{metrics.Dimension("DBInstanceIdentifier", db.ID)}
	if avg, err := metricsAPI.MeanOverWindow(ctx, metrics.Query{
		Namespace: "AWS/RDS", MetricName: "DatabaseConnections", Dimensions: dimensions, Window: window,
	}); err == nil {
		db.AvgConnections = avg
	}
	if max, err := metricsAPI.MaxOverWindow(ctx, metrics.Query{
		Namespace: "AWS/RDS", MetricName: "DatabaseConnections", Dimensions: dimensions, Window: window,
	}); err == nil {
		db.MaxConnections = max
	}
	if avg, err := metricsAPI.MeanOverWindow(ctx, metrics.Query{
		Namespace: "AWS/RDS", MetricName: "CPUUtilization", Dimensions: dimensions, Window: window,
	}); err == nil {
		db.AvgCPU = avg
	}
	if max, err := metricsAPI.MaxOverWindow(ctx, metrics.Query{
		Namespace: "AWS/RDS", MetricName: "CPUUtilization", Dimensions: dimensions, Window: window,
	}); err == nil {
		db.MaxCPU = max
	}

	db.MonthlyCost = c.pricer.RDSMonthly(db.InstanceClass, db.Engine, db.Region)
	db.Safety = c.safetyReport(db)
	return db
}

func (c *Cleaner) safetyReport(db dbInstance) types.SafetyReport {
	report := types.SafetyReport{}

	lowered := strings.ToLower(db.ID)
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(lowered, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("name contains '%s'", pattern))
		}
	}

	if db.active() {
		report.Warnings = append(report.Warnings, fmt.Sprintf("active in the last 30 days (%.1f avg connections, %.1f%% avg CPU)", db.AvgConnections, db.AvgCPU))
	}
	if db.DeletionProtection {
		report.Warnings = append(report.Warnings, "deletion protection is enabled")
	}
	if db.ReadReplicas > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d read replicas", db.ReadReplicas))
	}
	if db.MultiAZ {
		report.Warnings = append(report.Warnings, "Multi-AZ deployment")
	}
	if db.BackupRetention > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("automated backups enabled (%d day retention)", db.BackupRetention))
	}
	if db.InVPC {
		report.Warnings = append(report.Warnings, "runs inside a VPC")
	}
	if db.Encrypted {
		report.Warnings = append(report.Warnings, "storage is encrypted")
	}

	if !db.CreatedAt.IsZero() {
		days := int(c.now().Sub(db.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(instances []dbInstance) error {
	report := markdown.New()
	report.Heading(1, "RDS instance inventory")

	inactive, risky := 0, 0
	total := 0.0
	for _, db := range instances {
		if !db.active() {
			inactive++
		}
		if db.Safety.IsRisky() {
			risky++
		}
		total += db.MonthlyCost
	}

	sorted := append([]dbInstance(nil), instances...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, db := range sorted {
		status := "✓"
		if db.Safety.IsRisky() {
			status = "⚠️"
		}
		rows = append(rows, []string{
			status, db.ID, db.Region, db.Engine, db.InstanceClass,
			fmt.Sprintf("%.1f", db.AvgConnections),
			fmt.Sprintf("%.1f%%", db.AvgCPU),
			utils.FormatMoney(db.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d instances, %d inactive, %d with warnings. Estimated %s/month (%s/year).",
		len(instances), inactive, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Instance", "Region", "Engine", "Class", "Avg Conns (30d)", "Avg CPU (30d)", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(instances []dbInstance) ([]cleanup.Item, []cleanup.Filter) {
	inactiveIDs := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(instances))
	for _, db := range instances {
		db := db
		id := db.Region + "/" + db.ID
		if !db.active() {
			inactiveIDs[id] = true
		}

		items = append(items, cleanup.Item{
			ID:          id,
			Name:        db.ID,
			Region:      db.Region,
			MonthlyCost: db.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %s %s, %.1f avg connections/30d, %s/month",
				db.ID, db.Region, db.Engine, db.InstanceClass, db.AvgConnections, utils.FormatMoney(db.MonthlyCost)),
			Safety: db.Safety,
			Delete: c.deleteFunc(db),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "inactive",
			Description: "no connections and idle CPU in 30 days",
			Match:       func(item cleanup.Item) bool { return inactiveIDs[item.ID] },
		},
		{
			Keyword:     "safe",
			Description: "no safety warnings",
			Match:       func(item cleanup.Item) bool { return !item.Safety.IsRisky() },
		},
	}

	return items, filters
}

// finalSnapshotID builds a snapshot identifier that stays unique across
// repeated runs against the same instance.
func (c *Cleaner) finalSnapshotID(db dbInstance) string {
	return fmt.Sprintf("%s-final-snapshot-%s-%s", db.ID, c.now().Format("20060102-150405"), uuid.NewString()[:8])
}

func (c *Cleaner) deleteFunc(db dbInstance) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db.DeletionProtection {
			return fmt.Errorf("deletion protection is enabled, disable it first")
		}

		api, err := c.newRDS(db.Region)
		if err != nil {
			return err
		}

		input := &awsrds.DeleteDBInstanceInput{
			DBInstanceIdentifier: aws.String(db.ID),
			SkipFinalSnapshot:    aws.Bool(c.skipFinalSnapshot),
		}
		if !c.skipFinalSnapshot {
			input.FinalDBSnapshotIdentifier = aws.String(c.finalSnapshotID(db))
		}
		if _, err := api.DeleteDBInstance(ctx, input); err != nil {
			return fmt.Errorf("failed to delete DB instance: %v", err)
		}
		return nil
	}
}
