package kms

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudtrailtypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/pricing"
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

// riskyNamePatterns are matched against the description and aliases;
// only the first match warns.
var riskyNamePatterns = []string{"prod", "production", "live", "main", "primary", "backup", "database", "rds", "s3", "ebs", "secrets"}

const (
	usageLookbackDays = 30
	usageMaxEvents    = 20

	minPendingWindowDays     = 7
	maxPendingWindowDays     = 30
	defaultPendingWindowDays = 7
)

type KMSAPI interface {
	ListKeys(ctx context.Context, params *awskms.ListKeysInput, optFns ...func(*awskms.Options)) (*awskms.ListKeysOutput, error)
	DescribeKey(ctx context.Context, params *awskms.DescribeKeyInput, optFns ...func(*awskms.Options)) (*awskms.DescribeKeyOutput, error)
	ListAliases(ctx context.Context, params *awskms.ListAliasesInput, optFns ...func(*awskms.Options)) (*awskms.ListAliasesOutput, error)
	ListGrants(ctx context.Context, params *awskms.ListGrantsInput, optFns ...func(*awskms.Options)) (*awskms.ListGrantsOutput, error)
	GetKeyPolicy(ctx context.Context, params *awskms.GetKeyPolicyInput, optFns ...func(*awskms.Options)) (*awskms.GetKeyPolicyOutput, error)
	ScheduleKeyDeletion(ctx context.Context, params *awskms.ScheduleKeyDeletionInput, optFns ...func(*awskms.Options)) (*awskms.ScheduleKeyDeletionOutput, error)
}

type CloudTrailAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

type key struct {
	ID                string
	Region            string
	Description       string
	Aliases           []string
	Grants            int
	State             string
	Enabled           bool
	Origin            string
	ServicePrincipals bool
	UsageEvents       int
	CreatedAt         time.Time
	MonthlyCost       float64
	Safety            types.SafetyReport
}

func (k key) label() string {
	if len(k.Aliases) > 0 {
		return k.Aliases[0]
	}
	return k.ID
}

type Cleaner struct {
	opts          *cleanup.SweepOptions
	profile       string
	regions       []string
	pricer        *pricing.Service
	newKMS        func(region string) (KMSAPI, error)
	newCloudTrail func(region string) (CloudTrailAPI, error)
	now           func() time.Time

	pendingWindowDays int32
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
		newKMS: func(region string) (KMSAPI, error) {
			return client.NewKMSClient(region, profile)
		},
		newCloudTrail: func(region string) (CloudTrailAPI, error) {
			return client.NewCloudTrailClient(region, profile)
		},
		now:               time.Now,
		pendingWindowDays: defaultPendingWindowDays,
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

	var keys []key
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "keys", len(found))
		keys = append(keys, found...)
	}

	if err := c.summarize(keys); err != nil {
		return err
	}

	prompter := cleanup.NewPrompter(os.Stdin, os.Stdout, c.opts.Yes)
	if len(keys) > 0 && !c.opts.DryRun {
		days, err := prompter.AskInt("Pending deletion window in days", minPendingWindowDays, maxPendingWindowDays, defaultPendingWindowDays)
		if err != nil {
			return err
		}
		c.pendingWindowDays = int32(days)
	}

	items, filters := c.buildSelection(keys)
	flow := c.opts.NewFlow("KMS keys", items, filters, rate.NewLimiter(rate.Every(500*time.Millisecond), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newKMS(region)
	if err != nil {
		return err
	}
	_, err = api.ListKeys(ctx, &awskms.ListKeysInput{Limit: aws.Int32(1)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]key, error) {
	api, err := c.newKMS(region)
	if err != nil {
		return nil, err
	}
	trail, err := c.newCloudTrail(region)
	if err != nil {
		return nil, err
	}

	aliasesByKey, err := c.aliasIndex(ctx, api)
	if err != nil {
		return nil, err
	}

	var keys []key
	paginator := awskms.NewListKeysPaginator(api, &awskms.ListKeysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list keys: %v", err)
		}
		for _, entry := range page.Keys {
			enriched, keep := c.enrich(ctx, region, api, trail, aliasesByKey, aws.ToString(entry.KeyId))
			if keep {
				keys = append(keys, enriched)
			}
		}
	}

	return keys, nil
}

func (c *Cleaner) aliasIndex(ctx context.Context, api KMSAPI) (map[string][]string, error) {
	index := make(map[string][]string)
	paginator := awskms.NewListAliasesPaginator(api, &awskms.ListAliasesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list aliases: %v", err)
		}
		for _, alias := range page.Aliases {
			if alias.TargetKeyId == nil {
				continue
			}
			index[*alias.TargetKeyId] = append(index[*alias.TargetKeyId], aws.ToString(alias.AliasName))
		}
	}
	return index, nil
}

// enrich describes one key; AWS-managed keys and keys already pending
// deletion are dropped here.
func (c *Cleaner) enrich(ctx context.Context, region string, api KMSAPI, trail CloudTrailAPI, aliasesByKey map[string][]string, keyID string) (key, bool) {
	described, err := api.DescribeKey(ctx, &awskms.DescribeKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		slog.Warn("⚠️ Skipping key", "key", keyID, "error", err)
		return key{}, false
	}

	metadata := described.KeyMetadata
	if metadata.KeyManager != kmstypes.KeyManagerTypeCustomer {
		return key{}, false
	}
	if metadata.KeyState == kmstypes.KeyStatePendingDeletion {
		return key{}, false
	}

	k := key{
		ID:          keyID,
		Region:      region,
		Description: aws.ToString(metadata.Description),
		Aliases:     aliasesByKey[keyID],
		State:       string(metadata.KeyState),
		Enabled:     metadata.Enabled,
		Origin:      string(metadata.Origin),
	}
	if metadata.CreationDate != nil {
		k.CreatedAt = *metadata.CreationDate
	}

	if grants, err := api.ListGrants(ctx, &awskms.ListGrantsInput{KeyId: aws.String(keyID)}); err == nil {
		k.Grants = len(grants.Grants)
	}
	if policy, err := api.GetKeyPolicy(ctx, &awskms.GetKeyPolicyInput{
		KeyId:      aws.String(keyID),
		PolicyName: aws.String("default"),
	}); err == nil {
		k.ServicePrincipals = strings.Contains(aws.ToString(policy.Policy), ".amazonaws.com")
	}

	k.UsageEvents = c.recentUsage(ctx, trail, keyID)
	k.MonthlyCost = c.pricer.KMSKeyMonthly()
	k.Safety = c.safetyReport(k)
	return k, true
}

func (c *Cleaner) recentUsage(ctx context.Context, trail CloudTrailAPI, keyID string) int {
	out, err := trail.LookupEvents(ctx, &cloudtrail.LookupEventsInput{
		LookupAttributes: []cloudtrailtypes.LookupAttribute{
			{
				AttributeKey:   cloudtrailtypes.LookupAttributeKeyResourceName,
				AttributeValue: aws.String(keyID),
			},
		},
		StartTime:  aws.Time(c.now().AddDate(0, 0, -usageLookbackDays)),
		EndTime:    aws.Time(c.now()),
		MaxResults: aws.Int32(usageMaxEvents),
	})
	if err != nil {
		slog.Warn("⚠️ Failed to look up CloudTrail events", "key", keyID, "error", err)
		return 0
	}
	return len(out.Events)
}

func (c *Cleaner) safetyReport(k key) types.SafetyReport {
	report := types.SafetyReport{}

	haystack := strings.ToLower(k.Description + " " + strings.Join(k.Aliases, " "))
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(haystack, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("description or alias contains '%s'", pattern))
			break
		}
	}

	if k.UsageEvents > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d usage events in the last %d days", k.UsageEvents, usageLookbackDays))
	}
	if k.Grants > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d grants", k.Grants))
	}
	if len(k.Aliases) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("has %d aliases", len(k.Aliases)))
	}
	if k.ServicePrincipals {
		report.Warnings = append(report.Warnings, "key policy grants access to AWS services")
	}
	if k.Origin != "" && k.Origin != string(kmstypes.OriginTypeAwsKms) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("imported key material (origin %s)", k.Origin))
	}

	if !k.CreatedAt.IsZero() {
		days := int(c.now().Sub(k.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(keys []key) error {
	report := markdown.New()
	report.Heading(1, "KMS key inventory")

	unused, disabled, risky := 0, 0, 0
	total := 0.0
	for _, k := range keys {
		if k.UsageEvents == 0 {
			unused++
		}
		if !k.Enabled {
			disabled++
		}
		if k.Safety.IsRisky() {
			risky++
		}
		total += k.MonthlyCost
	}

	sorted := append([]key(nil), keys...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, k := range sorted {
		status := "✓"
		if k.Safety.IsRisky() {
			status = "⚠️"
		}
		rows = append(rows, []string{
			status, k.label(), k.Region, k.State,
			fmt.Sprintf("%d", len(k.Aliases)),
			fmt.Sprintf("%d", k.Grants),
			fmt.Sprintf("%d", k.UsageEvents),
			utils.FormatMoney(k.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d customer-managed keys, %d without recent usage, %d disabled, %d with warnings. Estimated %s/month (%s/year).",
		len(keys), unused, disabled, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Key", "Region", "State", "Aliases", "Grants", "Usage (30d)", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(keys []key) ([]cleanup.Item, []cleanup.Filter) {
	unusedIDs := make(map[string]bool)
	disabledIDs := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(keys))
	for _, k := range keys {
		k := k
		if k.UsageEvents == 0 {
			unusedIDs[k.ID] = true
		}
		if !k.Enabled {
			disabledIDs[k.ID] = true
		}

		items = append(items, cleanup.Item{
			ID:          k.ID,
			Name:        k.label(),
			Region:      k.Region,
			MonthlyCost: k.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %s, %d aliases, %d usage events/30d, %s/month",
				k.label(), k.Region, k.State, len(k.Aliases), k.UsageEvents, utils.FormatMoney(k.MonthlyCost)),
			Safety: k.Safety,
			Delete: c.deleteFunc(k),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "unused",
			Description: "no usage events in 30 days",
			Match:       func(item cleanup.Item) bool { return unusedIDs[item.ID] },
		},
		{
			Keyword:     "disabled",
			Description: "disabled keys",
			Match:       func(item cleanup.Item) bool { return disabledIDs[item.ID] },
		},
		{
			Keyword:     "safe",
			Description: "no safety warnings",
			Match:       func(item cleanup.Item) bool { return !item.Safety.IsRisky() },
		},
	}

	return items, filters
}

// deleteFunc schedules the key for deletion; KMS enforces the pending
// window, so this is the closest thing to a delete the API offers.
func (c *Cleaner) deleteFunc(k key) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newKMS(k.Region)
		if err != nil {
			return err
		}
		_, err = api.ScheduleKeyDeletion(ctx, &awskms.ScheduleKeyDeletionInput{
			KeyId:               aws.String(k.ID),
			PendingWindowInDays: aws.Int32(c.pendingWindowDays),
		})
		if err != nil {
			return fmt.Errorf("failed to schedule key deletion: %v", err)
		}
		return nil
	}
}
