package efs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	awsefs "github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/metrics"
	"github.com/awsweep/awsweep/internal/services/pricing"
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

// riskyNamePatterns stop at the first match so a file system gets at
// most one name warning.
var riskyNamePatterns = []string{"prod", "production", "live", "main", "primary", "shared", "data", "backup", "content", "web"}

const (
	mountTargetPollInterval = 5 * time.Second
	mountTargetPollTimeout  = 2 * time.Minute
)

type EFSAPI interface {
	DescribeFileSystems(ctx context.Context, params *awsefs.DescribeFileSystemsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeFileSystemsOutput, error)
	DescribeMountTargets(ctx context.Context, params *awsefs.DescribeMountTargetsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeMountTargetsOutput, error)
	DescribeAccessPoints(ctx context.Context, params *awsefs.DescribeAccessPointsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeAccessPointsOutput, error)
	DescribeLifecycleConfiguration(ctx context.Context, params *awsefs.DescribeLifecycleConfigurationInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeLifecycleConfigurationOutput, error)
	DeleteAccessPoint(ctx context.Context, params *awsefs.DeleteAccessPointInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteAccessPointOutput, error)
	DeleteMountTarget(ctx context.Context, params *awsefs.DeleteMountTargetInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteMountTargetOutput, error)
	DeleteFileSystem(ctx context.Context, params *awsefs.DeleteFileSystemInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteFileSystemOutput, error)
}

type MetricsAPI interface {
	SumOverWindow(ctx context.Context, q metrics.Query) (float64, error)
	MeanOverWindow(ctx context.Context, q metrics.Query) (float64, error)
}

type fileSystem struct {
	ID               string
	Name             string
	Region           string
	SizeBytes        int64
	Encrypted        bool
	ThroughputMode   string
	ProvisionedMiBps float64
	MountTargets     int
	AccessPoints     int
	LifecyclePolicy  bool
	AvgConnections   float64
	TotalIOBytes     float64
	CreatedAt        time.Time
	MonthlyCost      float64
	Safety           types.SafetyReport
}

func (fs fileSystem) inactive() bool {
	return fs.AvgConnections == 0 && fs.TotalIOBytes == 0
}

type Cleaner struct {
	opts       *cleanup.SweepOptions
	profile    string
	regions    []string
	pricer     *pricing.Service
	newEFS     func(region string) (EFSAPI, error)
	newMetrics func(region string) (MetricsAPI, error)
	now        func() time.Time
	poll       time.Duration
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
		newEFS: func(region string) (EFSAPI, error) {
			return client.NewEFSClient(region, profile)
		},
		newMetrics: func(region string) (MetricsAPI, error) {
			cw, err := client.NewCloudWatchClient(region, profile)
			if err != nil {
				return nil, err
			}
			return metrics.NewService(cw), nil
		},
		now:  time.Now,
		poll: mountTargetPollInterval,
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

	var fileSystems []fileSystem
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "file_systems", len(found))
		fileSystems = append(fileSystems, found...)
	}

	if err := c.summarize(fileSystems); err != nil {
		return err
	}

	items, filters := c.buildSelection(fileSystems)
	flow := c.opts.NewFlow("file systems", items, filters, rate.NewLimiter(rate.Every(2*time.Second), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newEFS(region)
	if err != nil {
		return err
	}
	_, err = api.DescribeFileSystems(ctx, &awsefs.DescribeFileSystemsInput{MaxItems: aws.Int32(1)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]fileSystem, error) {
	api, err := c.newEFS(region)
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

	var fileSystems []fileSystem
	paginator := awsefs.NewDescribeFileSystemsPaginator(api, &awsefs.DescribeFileSystemsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list file systems: %v", err)
		}
		for _, fs := range page.FileSystems {
			fileSystems = append(fileSystems, c.enrich(ctx, region, api, metricsAPI, window, fs))
		}
	}

	return fileSystems, nil
}

func (c *Cleaner) enrich(ctx context.Context, region string, api EFSAPI, metricsAPI MetricsAPI, window types.CloudWatchTimeWindow, description efstypes.FileSystemDescription) fileSystem {
	fs := fileSystem{
		ID:             aws.ToString(description.FileSystemId),
		Name:           fileSystemName(description),
		Region:         region,
		Encrypted:      aws.ToBool(description.Encrypted),
		ThroughputMode: string(description.ThroughputMode),
		MountTargets:   int(description.NumberOfMountTargets),
	}
	if description.SizeInBytes != nil {
		fs.SizeBytes = description.SizeInBytes.Value
	}
	if description.ProvisionedThroughputInMibps != nil {
		fs.ProvisionedMiBps = *description.ProvisionedThroughputInMibps
	}
	if description.CreationTime != nil {
		fs.CreatedAt = *description.CreationTime
	}

	if accessPoints, err := api.DescribeAccessPoints(ctx, &awsefs.DescribeAccessPointsInput{FileSystemId: description.FileSystemId}); err == nil {
		fs.AccessPoints = len(accessPoints.AccessPoints)
	}
	if lifecycle, err := api.DescribeLifecycleConfiguration(ctx, &awsefs.DescribeLifecycleConfigurationInput{FileSystemId: description.FileSystemId}); err == nil {
		fs.LifecyclePolicy = len(lifecycle.LifecyclePolicies) > 0
	}

	dimensions := []cwtypes.Dimension{metrics.Dimension("FileSystemId", fs.ID)}
	if connections, err := metricsAPI.MeanOverWindow(ctx, metrics.Query{
		Namespace: "AWS/EFS", MetricName: "ClientConnections", Dimensions: dimensions, Window: window,
	}); err == nil {
		fs.AvgConnections = connections
	}
	for _, metricName := range []string{"DataReadIOBytes", "DataWriteIOBytes"} {
		if ioBytes, err := metricsAPI.SumOverWindow(ctx, metrics.Query{
			Namespace: "AWS/EFS", MetricName: metricName, Dimensions: dimensions, Window: window,
		}); err == nil {
			fs.TotalIOBytes += ioBytes
		}
	}

	fs.MonthlyCost = c.pricer.EFSMonthly(fs.SizeBytes, fs.ThroughputMode, fs.ProvisionedMiBps)
	fs.Safety = c.safetyReport(fs)
	return fs
}

func fileSystemName(description efstypes.FileSystemDescription) string {
	if description.Name != nil && *description.Name != "" {
		return *description.Name
	}
	for _, tag := range description.Tags {
		if aws.ToString(tag.Key) == "Name" && aws.ToString(tag.Value) != "" {
			return *tag.Value
		}
	}
	return aws.ToString(description.FileSystemId)
}

func (c *Cleaner) safetyReport(fs fileSystem) types.SafetyReport {
	report := types.SafetyReport{}

	lowered := strings.ToLower(fs.Name)
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(lowered, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("name contains '%s'", pattern))
			break
		}
	}

	if fs.MountTargets > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d mount targets", fs.MountTargets))
	}
	if fs.AccessPoints > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d access points", fs.AccessPoints))
	}
	if !fs.inactive() {
		report.Warnings = append(report.Warnings, fmt.Sprintf("recent activity: %.1f avg connections, %s IO in 30 days",
			fs.AvgConnections, utils.FormatBytes(int64(fs.TotalIOBytes))))
	}
	if fs.ThroughputMode == string(efstypes.ThroughputModeProvisioned) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("provisioned throughput of %.0f MiB/s", fs.ProvisionedMiBps))
	}
	if fs.Encrypted {
		report.Warnings = append(report.Warnings, "encrypted")
	}
	if fs.LifecyclePolicy {
		report.Warnings = append(report.Warnings, "has lifecycle policies")
	}

	if !fs.CreatedAt.IsZero() {
		days := int(c.now().Sub(fs.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(fileSystems []fileSystem) error {
	report := markdown.New()
	report.Heading(1, "EFS file system inventory")

	inactive, unmounted, risky := 0, 0, 0
	total := 0.0
	for _, fs := range fileSystems {
		if fs.inactive() {
			inactive++
		}
		if fs.MountTargets == 0 {
			unmounted++
		}
		if fs.Safety.IsRisky() {
			risky++
		}
		total += fs.MonthlyCost
	}

	sorted := append([]fileSystem(nil), fileSystems...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, fs := range sorted {
		status := "✓"
		if fs.Safety.IsRisky() {
			status = "⚠️"
		}
		rows = append(rows, []string{
			status, fs.Name, fs.Region,
			utils.FormatBytes(fs.SizeBytes),
			fmt.Sprintf("%d", fs.MountTargets),
			fmt.Sprintf("%.1f", fs.AvgConnections),
			utils.FormatMoney(fs.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d file systems, %d inactive, %d unmounted, %d with warnings. Estimated %s/month (%s/year).",
		len(fileSystems), inactive, unmounted, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Name", "Region", "Size", "Mount Targets", "Avg Connections", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(fileSystems []fileSystem) ([]cleanup.Item, []cleanup.Filter) {
	inactiveIDs := make(map[string]bool)
	unmountedIDs := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(fileSystems))
	for _, fs := range fileSystems {
		fs := fs
		if fs.inactive() {
			inactiveIDs[fs.ID] = true
		}
		if fs.MountTargets == 0 {
			unmountedIDs[fs.ID] = true
		}

		items = append(items, cleanup.Item{
			ID:          fs.ID,
			Name:        fs.Name,
			Region:      fs.Region,
			MonthlyCost: fs.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %s, %d mount targets, %.1f avg connections, %s/month",
				fs.Name, fs.Region, utils.FormatBytes(fs.SizeBytes), fs.MountTargets, fs.AvgConnections, utils.FormatMoney(fs.MonthlyCost)),
			Safety: fs.Safety,
			Delete: c.deleteFunc(fs),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "inactive",
			Description: "no connections and no IO in 30 days",
			Match:       func(item cleanup.Item) bool { return inactiveIDs[item.ID] },
		},
		{
			Keyword:     "unmounted",
			Description: "no mount targets",
			Match:       func(item cleanup.Item) bool { return unmountedIDs[item.ID] },
		},
		{
			Keyword:     "safe",
			Description: "no safety warnings",
			Match:       func(item cleanup.Item) bool { return !item.Safety.IsRisky() },
		},
	}

	return items, filters
}

// deleteFunc tears a file system down in dependency order: access
// points, then mount targets, then the file system itself once the
// mount targets are gone.
func (c *Cleaner) deleteFunc(fs fileSystem) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newEFS(fs.Region)
		if err != nil {
			return err
		}

		accessPoints, err := api.DescribeAccessPoints(ctx, &awsefs.DescribeAccessPointsInput{FileSystemId: aws.String(fs.ID)})
		if err != nil {
			return fmt.Errorf("failed to list access points: %v", err)
		}
		for _, accessPoint := range accessPoints.AccessPoints {
			if _, err := api.DeleteAccessPoint(ctx, &awsefs.DeleteAccessPointInput{AccessPointId: accessPoint.AccessPointId}); err != nil {
				return fmt.Errorf("failed to delete access point %s: %v", aws.ToString(accessPoint.AccessPointId), err)
			}
		}

		mountTargets, err := api.DescribeMountTargets(ctx, &awsefs.DescribeMountTargetsInput{FileSystemId: aws.String(fs.ID)})
		if err != nil {
			return fmt.Errorf("failed to list mount targets: %v", err)
		}
		for _, mountTarget := range mountTargets.MountTargets {
			if _, err := api.DeleteMountTarget(ctx, &awsefs.DeleteMountTargetInput{MountTargetId: mountTarget.MountTargetId}); err != nil {
				return fmt.Errorf("failed to delete mount target %s: %v", aws.ToString(mountTarget.MountTargetId), err)
			}
		}
		if len(mountTargets.MountTargets) > 0 {
			if err := c.waitForMountTargets(ctx, api, fs.ID); err != nil {
				return err
			}
		}

		if _, err := api.DeleteFileSystem(ctx, &awsefs.DeleteFileSystemInput{FileSystemId: aws.String(fs.ID)}); err != nil {
			return fmt.Errorf("failed to delete file system: %v", err)
		}
		return nil
	}
}

func (c *Cleaner) waitForMountTargets(ctx context.Context, api EFSAPI, fileSystemID string) error {
	deadline := time.Now().Add(mountTargetPollTimeout)
	for {
		mountTargets, err := api.DescribeMountTargets(ctx, &awsefs.DescribeMountTargetsInput{FileSystemId: aws.String(fileSystemID)})
		if err != nil {
			return fmt.Errorf("failed to poll mount targets: %v", err)
		}
		if len(mountTargets.MountTargets) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("mount targets still present after %s", mountTargetPollTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.poll):
		}
	}
}
