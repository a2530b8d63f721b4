package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssecrets "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/pricing"
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

// riskyNamePatterns each produce their own warning when found in the
// secret name.
var riskyNamePatterns = []string{"prod", "production", "live", "main", "primary", "database", "db", "api", "oauth", "jwt", "ssl", "tls"}

const (
	minRecoveryWindowDays     = 7
	maxRecoveryWindowDays     = 30
	defaultRecoveryWindowDays = 7
)

type SecretsAPI interface {
	ListSecrets(ctx context.Context, params *awssecrets.ListSecretsInput, optFns ...func(*awssecrets.Options)) (*awssecrets.ListSecretsOutput, error)
	DescribeSecret(ctx context.Context, params *awssecrets.DescribeSecretInput, optFns ...func(*awssecrets.Options)) (*awssecrets.DescribeSecretOutput, error)
	DeleteSecret(ctx context.Context, params *awssecrets.DeleteSecretInput, optFns ...func(*awssecrets.Options)) (*awssecrets.DeleteSecretOutput, error)
}

type secret struct {
	Name            string
	ARN             string
	Region          string
	Description     string
	RotationEnabled bool
	PendingVersion  bool
	Replicas        int
	LastAccessed    time.Time
	CreatedAt       time.Time
	MonthlyCost     float64
	Safety          types.SafetyReport
}

type Cleaner struct {
	opts       *cleanup.SweepOptions
	profile    string
	regions    []string
	pricer     *pricing.Service
	newSecrets func(region string) (SecretsAPI, error)
	now        func() time.Time

	forceImmediate     bool
	recoveryWindowDays int64
}

func NewCleaner(opts *cleanup.SweepOptions, forceImmediate bool) (*Cleaner, error) {
	profile, regions, pricer, err := opts.Resolve()
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		opts:    opts,
		profile: profile,
		regions: regions,
		pricer:  pricer,
		newSecrets: func(region string) (SecretsAPI, error) {
			return client.NewSecretsManagerClient(region, profile)
		},
		now:                time.Now,
		forceImmediate:     forceImmediate,
		recoveryWindowDays: defaultRecoveryWindowDays,
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

	var secretsFound []secret
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "secrets", len(found))
		secretsFound = append(secretsFound, found...)
	}

	if err := c.summarize(secretsFound); err != nil {
		return err
	}

	if len(secretsFound) > 0 && !c.opts.DryRun && !c.forceImmediate {
		prompter := cleanup.NewPrompter(os.Stdin, os.Stdout, c.opts.Yes)
		days, err := prompter.AskInt("Recovery window in days", minRecoveryWindowDays, maxRecoveryWindowDays, defaultRecoveryWindowDays)
		if err != nil {
			return err
		}
		c.recoveryWindowDays = int64(days)
	}

	items, filters := c.buildSelection(secretsFound)
	flow := c.opts.NewFlow("secrets", items, filters, rate.NewLimiter(rate.Every(500*time.Millisecond), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newSecrets(region)
	if err != nil {
		return err
	}
	_, err = api.ListSecrets(ctx, &awssecrets.ListSecretsInput{MaxResults: aws.Int32(1)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]secret, error) {
	api, err := c.newSecrets(region)
	if err != nil {
		return nil, err
	}

	var found []secret
	paginator := awssecrets.NewListSecretsPaginator(api, &awssecrets.ListSecretsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets: %v", err)
		}
		for _, entry := range page.SecretList {
			// Secrets already scheduled for deletion stay out of the way.
			if entry.DeletedDate != nil {
				continue
			}
			found = append(found, c.enrich(ctx, region, api, aws.ToString(entry.ARN), aws.ToString(entry.Name)))
		}
	}

	return found, nil
}

func (c *Cleaner) enrich(ctx context.Context, region string, api SecretsAPI, arn, name string) secret {
	s := secret{
		Name:   name,
		ARN:    arn,
		Region: region,
	}

	described, err := api.DescribeSecret(ctx, &awssecrets.DescribeSecretInput{SecretId: aws.String(arn)})
	if err != nil {
		slog.Warn("⚠️ Failed to describe secret", "secret", name, "error", err)
	} else {
		s.Description = aws.ToString(described.Description)
		s.RotationEnabled = aws.ToBool(described.RotationEnabled)
		s.Replicas = len(described.ReplicationStatus)
		if described.LastAccessedDate != nil {
			s.LastAccessed = *described.LastAccessedDate
		}
		if described.CreatedDate != nil {
			s.CreatedAt = *described.CreatedDate
		}
		for _, stages := range described.VersionIdsToStages {
			for _, stage := range stages {
				if stage == "AWSPENDING" {
					s.PendingVersion = true
				}
			}
		}
	}

	s.MonthlyCost = c.pricer.SecretMonthly(s.Replicas)
	s.Safety = c.safetyReport(s)
	return s
}

func (c *Cleaner) safetyReport(s secret) types.SafetyReport {
	report := types.SafetyReport{}

	lowered := strings.ToLower(s.Name)
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(lowered, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("name contains '%s'", pattern))
		}
	}

	if s.RotationEnabled {
		report.Warnings = append(report.Warnings, "automatic rotation is enabled")
	}
	if s.PendingVersion {
		report.Warnings = append(report.Warnings, "has a pending version staged")
	}
	if s.Replicas > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("replicated to %d regions", s.Replicas))
	}
	if !s.LastAccessed.IsZero() {
		days := int(c.now().Sub(s.LastAccessed).Hours() / 24)
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("accessed only %d days ago", days))
		}
	}

	if !s.CreatedAt.IsZero() {
		days := int(c.now().Sub(s.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(secretsFound []secret) error {
	report := markdown.New()
	report.Heading(1, "Secrets Manager inventory")

	unused, risky := 0, 0
	total := 0.0
	for _, s := range secretsFound {
		if s.LastAccessed.IsZero() {
			unused++
		}
		if s.Safety.IsRisky() {
			risky++
		}
		total += s.MonthlyCost
	}

	sorted := append([]secret(nil), secretsFound...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, s := range sorted {
		status := "✓"
		if s.Safety.IsRisky() {
			status = "⚠️"
		}
		lastAccessed := "never"
		if !s.LastAccessed.IsZero() {
			lastAccessed = s.LastAccessed.Format("2006-01-02")
		}
		rotation := "off"
		if s.RotationEnabled {
			rotation = "on"
		}
		rows = append(rows, []string{
			status, s.Name, s.Region, rotation,
			fmt.Sprintf("%d", s.Replicas),
			lastAccessed,
			utils.FormatMoney(s.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d secrets, %d never accessed, %d with warnings. Estimated %s/month (%s/year).",
		len(secretsFound), unused, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Name", "Region", "Rotation", "Replicas", "Last Accessed", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(secretsFound []secret) ([]cleanup.Item, []cleanup.Filter) {
	unusedIDs := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(secretsFound))
	for _, s := range secretsFound {
		s := s
		if s.LastAccessed.IsZero() {
			unusedIDs[s.ARN] = true
		}

		lastAccessed := "never accessed"
		if !s.LastAccessed.IsZero() {
			lastAccessed = fmt.Sprintf("accessed %s", s.LastAccessed.Format("2006-01-02"))
		}
		items = append(items, cleanup.Item{
			ID:          s.ARN,
			Name:        s.Name,
			Region:      s.Region,
			MonthlyCost: s.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %s, %d replicas, %s/month",
				s.Name, s.Region, lastAccessed, s.Replicas, utils.FormatMoney(s.MonthlyCost)),
			Safety: s.Safety,
			Delete: c.deleteFunc(s),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "unused",
			Description: "never accessed",
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

func (c *Cleaner) deleteFunc(s secret) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newSecrets(s.Region)
		if err != nil {
			return err
		}

		input := &awssecrets.DeleteSecretInput{SecretId: aws.String(s.ARN)}
		if c.forceImmediate {
			input.ForceDeleteWithoutRecovery = aws.Bool(true)
		} else {
			input.RecoveryWindowInDays = aws.Int64(c.recoveryWindowDays)
		}
		if _, err := api.DeleteSecret(ctx, input); err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to delete secret: %v", err)
		}
		return nil
	}
}

// isNotFound treats a secret that is already gone as deleted.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}
