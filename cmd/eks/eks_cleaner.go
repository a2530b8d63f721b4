package eks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudtrailtypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/pricing"
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

// riskyNamePatterns stop at the first match. Environment names count
// here because even a staging cluster usually has someone relying on it.
var riskyNamePatterns = []string{"prod", "production", "live", "main", "primary", "staging", "qa", "test", "development", "dev"}

const (
	activityLookbackDays = 7
	activityMaxEvents    = 20

	teardownPollInterval = 15 * time.Second
	teardownPollTimeout  = 10 * time.Minute
)

type EKSAPI interface {
	ListClusters(ctx context.Context, params *awseks.ListClustersInput, optFns ...func(*awseks.Options)) (*awseks.ListClustersOutput, error)
	DescribeCluster(ctx context.Context, params *awseks.DescribeClusterInput, optFns ...func(*awseks.Options)) (*awseks.DescribeClusterOutput, error)
	ListNodegroups(ctx context.Context, params *awseks.ListNodegroupsInput, optFns ...func(*awseks.Options)) (*awseks.ListNodegroupsOutput, error)
	DescribeNodegroup(ctx context.Context, params *awseks.DescribeNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DescribeNodegroupOutput, error)
	ListFargateProfiles(ctx context.Context, params *awseks.ListFargateProfilesInput, optFns ...func(*awseks.Options)) (*awseks.ListFargateProfilesOutput, error)
	ListAddons(ctx context.Context, params *awseks.ListAddonsInput, optFns ...func(*awseks.Options)) (*awseks.ListAddonsOutput, error)
	DeleteNodegroup(ctx context.Context, params *awseks.DeleteNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DeleteNodegroupOutput, error)
	DeleteFargateProfile(ctx context.Context, params *awseks.DeleteFargateProfileInput, optFns ...func(*awseks.Options)) (*awseks.DeleteFargateProfileOutput, error)
	DeleteAddon(ctx context.Context, params *awseks.DeleteAddonInput, optFns ...func(*awseks.Options)) (*awseks.DeleteAddonOutput, error)
	DeleteCluster(ctx context.Context, params *awseks.DeleteClusterInput, optFns ...func(*awseks.Options)) (*awseks.DeleteClusterOutput, error)
}

type CloudTrailAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

type nodeGroup struct {
	Name          string
	InstanceTypes []string
	DesiredSize   int32
}

type cluster struct {
	Name            string
	Region          string
	Status          string
	Version         string
	NodeGroups      []nodeGroup
	FargateProfiles []string
	Addons          []string
	RecentEvents    int
	PrivateEndpoint bool
	Encrypted       bool
	CreatedAt       time.Time
	MonthlyCost     float64
	Safety          types.SafetyReport
}

func (c cluster) totalNodes() int32 {
	var total int32
	for _, ng := range c.NodeGroups {
		total += ng.DesiredSize
	}
	return total
}

type Cleaner struct {
	opts          *cleanup.SweepOptions
	profile       string
	regions       []string
	pricer        *pricing.Service
	newEKS        func(region string) (EKSAPI, error)
	newCloudTrail func(region string) (CloudTrailAPI, error)
	now           func() time.Time
	poll          time.Duration
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
		newEKS: func(region string) (EKSAPI, error) {
			return client.NewEKSClient(region, profile)
		},
		newCloudTrail: func(region string) (CloudTrailAPI, error) {
			return client.NewCloudTrailClient(region, profile)
		},
		now:  time.Now,
		poll: teardownPollInterval,
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

	var clusters []cluster
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "clusters", len(found))
		clusters = append(clusters, found...)
	}

	if err := c.summarize(clusters); err != nil {
		return err
	}

	items, filters := c.buildSelection(clusters)
	// Cluster teardown is heavy, so pace deletions well apart.
	flow := c.opts.NewFlow("EKS clusters", items, filters, rate.NewLimiter(rate.Every(10*time.Second), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newEKS(region)
	if err != nil {
		return err
	}
	_, err = api.ListClusters(ctx, &awseks.ListClustersInput{MaxResults: aws.Int32(1)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]cluster, error) {
	api, err := c.newEKS(region)
	if err != nil {
		return nil, err
	}
	trail, err := c.newCloudTrail(region)
	if err != nil {
		return nil, err
	}

	var clusters []cluster
	paginator := awseks.NewListClustersPaginator(api, &awseks.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list clusters: %v", err)
		}
		for _, name := range page.Clusters {
			enriched, err := c.enrich(ctx, region, api, trail, name)
			if err != nil {
				slog.Warn("⚠️ Skipping cluster", "cluster", name, "error", err)
				continue
			}
			clusters = append(clusters, enriched)
		}
	}

	return clusters, nil
}

func (c *Cleaner) enrich(ctx context.Context, region string, api EKSAPI, trail CloudTrailAPI, name string) (cluster, error) {
	described, err := api.DescribeCluster(ctx, &awseks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		return cluster{}, fmt.Errorf("failed to describe cluster: %v", err)
	}

	cl := cluster{
		Name:      name,
		Region:    region,
		Status:    string(described.Cluster.Status),
		Version:   aws.ToString(described.Cluster.Version),
		Encrypted: len(described.Cluster.EncryptionConfig) > 0,
	}
	if described.Cluster.CreatedAt != nil {
		cl.CreatedAt = *described.Cluster.CreatedAt
	}
	if vpc := described.Cluster.ResourcesVpcConfig; vpc != nil {
		cl.PrivateEndpoint = vpc.EndpointPrivateAccess
	}

	if nodeGroups, err := api.ListNodegroups(ctx, &awseks.ListNodegroupsInput{ClusterName: aws.String(name)}); err == nil {
		for _, nodeGroupName := range nodeGroups.Nodegroups {
			described, err := api.DescribeNodegroup(ctx, &awseks.DescribeNodegroupInput{
				ClusterName:   aws.String(name),
				NodegroupName: aws.String(nodeGroupName),
			})
			if err != nil {
				continue
			}
			ng := nodeGroup{Name: nodeGroupName, InstanceTypes: described.Nodegroup.InstanceTypes}
			if described.Nodegroup.ScalingConfig != nil {
				ng.DesiredSize = aws.ToInt32(described.Nodegroup.ScalingConfig.DesiredSize)
			}
			cl.NodeGroups = append(cl.NodeGroups, ng)
		}
	}

	if profiles, err := api.ListFargateProfiles(ctx, &awseks.ListFargateProfilesInput{ClusterName: aws.String(name)}); err == nil {
		cl.FargateProfiles = profiles.FargateProfileNames
	}
	if addons, err := api.ListAddons(ctx, &awseks.ListAddonsInput{ClusterName: aws.String(name)}); err == nil {
		cl.Addons = addons.Addons
	}

	cl.RecentEvents = c.recentActivity(ctx, trail, name)

	cl.MonthlyCost = c.pricer.EKSControlPlaneMonthly()
	for _, ng := range cl.NodeGroups {
		cl.MonthlyCost += c.pricer.NodeGroupMonthly(ng.InstanceTypes, ng.DesiredSize)
	}
	cl.MonthlyCost += float64(len(cl.FargateProfiles)) * c.pricer.FargateProfileMonthly()

	cl.Safety = c.safetyReport(cl)
	return cl, nil
}

// recentActivity counts control plane API events against the cluster
// over the last week. CloudTrail being unavailable just means zero.
func (c *Cleaner) recentActivity(ctx context.Context, trail CloudTrailAPI, name string) int {
	out, err := trail.LookupEvents(ctx, &cloudtrail.LookupEventsInput{
		LookupAttributes: []cloudtrailtypes.LookupAttribute{
			{
				AttributeKey:   cloudtrailtypes.LookupAttributeKeyResourceName,
				AttributeValue: aws.String(name),
			},
		},
		StartTime:  aws.Time(c.now().AddDate(0, 0, -activityLookbackDays)),
		EndTime:    aws.Time(c.now()),
		MaxResults: aws.Int32(activityMaxEvents),
	})
	if err != nil {
		slog.Warn("⚠️ Failed to look up CloudTrail events", "cluster", name, "error", err)
		return 0
	}

	count := 0
	for _, event := range out.Events {
		eventName := strings.ToLower(aws.ToString(event.EventName))
		for _, prefix := range []string{"create", "delete", "update", "describe"} {
			if strings.HasPrefix(eventName, prefix) {
				count++
				break
			}
		}
	}
	return count
}

func (c *Cleaner) safetyReport(cl cluster) types.SafetyReport {
	report := types.SafetyReport{}

	lowered := strings.ToLower(cl.Name)
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(lowered, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("name contains '%s'", pattern))
			break
		}
	}

	if len(cl.NodeGroups) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d node groups (%d nodes)", len(cl.NodeGroups), cl.totalNodes()))
	}
	if len(cl.FargateProfiles) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d Fargate profiles", len(cl.FargateProfiles)))
	}
	if len(cl.Addons) > 0 {
		names := cl.Addons
		if len(names) > 3 {
			names = names[:3]
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d addons (%s)", len(cl.Addons), strings.Join(names, ", ")))
	}
	if cl.RecentEvents > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d API events in the last %d days", cl.RecentEvents, activityLookbackDays))
	}
	if cl.Status == string(ekstypes.ClusterStatusActive) {
		report.Warnings = append(report.Warnings, "status is ACTIVE")
	}
	if cl.PrivateEndpoint {
		report.Warnings = append(report.Warnings, "private endpoint access enabled")
	}
	if cl.Encrypted {
		report.Warnings = append(report.Warnings, "has encryption config")
	}

	if !cl.CreatedAt.IsZero() {
		days := int(c.now().Sub(cl.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(clusters []cluster) error {
	report := markdown.New()
	report.Heading(1, "EKS cluster inventory")

	inactive, empty, risky := 0, 0, 0
	total := 0.0
	for _, cl := range clusters {
		if cl.RecentEvents == 0 {
			inactive++
		}
		if len(cl.NodeGroups) == 0 {
			empty++
		}
		if cl.Safety.IsRisky() {
			risky++
		}
		total += cl.MonthlyCost
	}

	sorted := append([]cluster(nil), clusters...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, cl := range sorted {
		status := "✓"
		if cl.Safety.IsRisky() {
			status = "⚠️"
		}
		rows = append(rows, []string{
			status, cl.Name, cl.Region, cl.Status, cl.Version,
			fmt.Sprintf("%d", len(cl.NodeGroups)),
			fmt.Sprintf("%d", cl.totalNodes()),
			fmt.Sprintf("%d", cl.RecentEvents),
			utils.FormatMoney(cl.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d clusters, %d without recent activity, %d without node groups, %d with warnings. Estimated %s/month (%s/year).",
		len(clusters), inactive, empty, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Name", "Region", "Status", "Version", "Node Groups", "Nodes", "Events (7d)", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(clusters []cluster) ([]cleanup.Item, []cleanup.Filter) {
	inactiveNames := make(map[string]bool)
	emptyNames := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(clusters))
	for _, cl := range clusters {
		cl := cl
		id := cl.Region + "/" + cl.Name
		if cl.RecentEvents == 0 {
			inactiveNames[id] = true
		}
		if len(cl.NodeGroups) == 0 {
			emptyNames[id] = true
		}

		items = append(items, cleanup.Item{
			ID:          id,
			Name:        cl.Name,
			Region:      cl.Region,
			MonthlyCost: cl.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %s, %d node groups / %d nodes, %d events/7d, %s/month",
				cl.Name, cl.Region, cl.Status, len(cl.NodeGroups), cl.totalNodes(), cl.RecentEvents, utils.FormatMoney(cl.MonthlyCost)),
			Safety: cl.Safety,
			Delete: c.deleteFunc(cl),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "inactive",
			Description: "no API activity in the last week",
			Match:       func(item cleanup.Item) bool { return inactiveNames[item.ID] },
		},
		{
			Keyword:     "empty",
			Description: "no node groups",
			Match:       func(item cleanup.Item) bool { return emptyNames[item.ID] },
		},
		{
			Keyword:     "safe",
			Description: "no safety warnings",
			Match:       func(item cleanup.Item) bool { return !item.Safety.IsRisky() },
		},
	}

	return items, filters
}

// deleteFunc tears a cluster down in dependency order: node groups,
// then Fargate profiles, then addons, then the control plane. EKS
// rejects cluster deletion while compute is still attached, so each
// phase waits for its resources to disappear.
func (c *Cleaner) deleteFunc(cl cluster) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newEKS(cl.Region)
		if err != nil {
			return err
		}

		for _, ng := range cl.NodeGroups {
			if _, err := api.DeleteNodegroup(ctx, &awseks.DeleteNodegroupInput{
				ClusterName:   aws.String(cl.Name),
				NodegroupName: aws.String(ng.Name),
			}); err != nil {
				return fmt.Errorf("failed to delete node group %s: %v", ng.Name, err)
			}
		}
		if len(cl.NodeGroups) > 0 {
			if err := c.waitForTeardown(ctx, "node groups", func() (int, error) {
				out, err := api.ListNodegroups(ctx, &awseks.ListNodegroupsInput{ClusterName: aws.String(cl.Name)})
				if err != nil {
					return 0, err
				}
				return len(out.Nodegroups), nil
			}); err != nil {
				return err
			}
		}

		for _, profile := range cl.FargateProfiles {
			if _, err := api.DeleteFargateProfile(ctx, &awseks.DeleteFargateProfileInput{
				ClusterName:        aws.String(cl.Name),
				FargateProfileName: aws.String(profile),
			}); err != nil {
				return fmt.Errorf("failed to delete Fargate profile %s: %v", profile, err)
			}
		}
		if len(cl.FargateProfiles) > 0 {
			if err := c.waitForTeardown(ctx, "Fargate profiles", func() (int, error) {
				out, err := api.ListFargateProfiles(ctx, &awseks.ListFargateProfilesInput{ClusterName: aws.String(cl.Name)})
				if err != nil {
					return 0, err
				}
				return len(out.FargateProfileNames), nil
			}); err != nil {
				return err
			}
		}

		for _, addon := range cl.Addons {
			if _, err := api.DeleteAddon(ctx, &awseks.DeleteAddonInput{
				ClusterName: aws.String(cl.Name),
				AddonName:   aws.String(addon),
			}); err != nil {
				slog.Warn("⚠️ Failed to delete addon", "cluster", cl.Name, "addon", addon, "error", err)
			}
		}

		if _, err := api.DeleteCluster(ctx, &awseks.DeleteClusterInput{Name: aws.String(cl.Name)}); err != nil {
			return fmt.Errorf("failed to delete cluster: %v", err)
		}
		return nil
	}
}

func (c *Cleaner) waitForTeardown(ctx context.Context, what string, remaining func() (int, error)) error {
	deadline := time.Now().Add(teardownPollTimeout)
	for {
		count, err := remaining()
		if err != nil {
			return fmt.Errorf("failed to poll %s: %v", what, err)
		}
		if count == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%d %s still present after %s", count, what, teardownPollTimeout)
		}
		slog.Info("⏳ Waiting for teardown", "what", what, "remaining", count)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.poll):
		}
	}
}
