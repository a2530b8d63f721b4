package volumes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/pricing"
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

type EC2API interface {
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DeleteVolume(ctx context.Context, params *ec2.DeleteVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVolumeOutput, error)
}

type volume struct {
	ID          string
	Name        string
	Region      string
	Type        string
	SizeGB      int32
	State       string
	AttachedTo  string
	Encrypted   bool
	CreatedAt   time.Time
	MonthlyCost float64
	Safety      types.SafetyReport
}

func (v volume) available() bool {
	return v.State == string(ec2types.VolumeStateAvailable)
}

// label prefers the Name tag over the volume ID.
func (v volume) label() string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

type Cleaner struct {
	opts    *cleanup.SweepOptions
	profile string
	regions []string
	pricer  *pricing.Service
	newEC2  func(region string) (EC2API, error)
	now     func() time.Time
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
		newEC2: func(region string) (EC2API, error) {
			return client.NewEC2Client(region, profile)
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

	var volumes []volume
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "volumes", len(found))
		volumes = append(volumes, found...)
	}

	if err := c.summarize(volumes); err != nil {
		return err
	}

	items, filters := c.buildSelection(volumes)
	flow := c.opts.NewFlow("EBS volumes", items, filters, rate.NewLimiter(rate.Every(500*time.Millisecond), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newEC2(region)
	if err != nil {
		return err
	}
	_, err = api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{MaxResults: aws.Int32(5)})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]volume, error) {
	api, err := c.newEC2(region)
	if err != nil {
		return nil, err
	}

	var volumes []volume
	paginator := ec2.NewDescribeVolumesPaginator(api, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe volumes: %v", err)
		}
		for _, v := range page.Volumes {
			volumes = append(volumes, c.fromAPI(region, v))
		}
	}

	return volumes, nil
}

func (c *Cleaner) fromAPI(region string, v ec2types.Volume) volume {
	vol := volume{
		ID:        aws.ToString(v.VolumeId),
		Region:    region,
		Type:      string(v.VolumeType),
		SizeGB:    aws.ToInt32(v.Size),
		State:     string(v.State),
		Encrypted: aws.ToBool(v.Encrypted),
	}
	if v.CreateTime != nil {
		vol.CreatedAt = *v.CreateTime
	}
	for _, tag := range v.Tags {
		if aws.ToString(tag.Key) == "Name" {
			vol.Name = aws.ToString(tag.Value)
		}
	}
	for _, attachment := range v.Attachments {
		if attachment.State == ec2types.VolumeAttachmentStateAttached {
			vol.AttachedTo = aws.ToString(attachment.InstanceId)
		}
	}

	vol.MonthlyCost = c.pricer.EBSVolumeMonthly(vol.Type, vol.SizeGB)
	vol.Safety = c.safetyReport(vol)
	return vol
}

func (c *Cleaner) safetyReport(v volume) types.SafetyReport {
	report := types.SafetyReport{}

	if v.AttachedTo != "" {
		report.Warnings = append(report.Warnings, fmt.Sprintf("attached to instance %s", v.AttachedTo))
	}
	if v.Encrypted {
		report.Warnings = append(report.Warnings, "volume is encrypted")
	}

	if !v.CreatedAt.IsZero() {
		days := int(c.now().Sub(v.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(volumes []volume) error {
	report := markdown.New()
	report.Heading(1, "EBS volume inventory")

	available := 0
	total := 0.0
	byType := make(map[string]int)
	for _, v := range volumes {
		if v.available() {
			available++
		}
		byType[v.Type]++
		total += v.MonthlyCost
	}

	sorted := append([]volume(nil), volumes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, v := range sorted {
		attached := "available"
		if v.AttachedTo != "" {
			attached = v.AttachedTo
		}
		rows = append(rows, []string{
			v.label(), v.Region, v.Type,
			fmt.Sprintf("%d GiB", v.SizeGB),
			attached,
			utils.FormatMoney(v.MonthlyCost),
		})
	}

	typeNames := make([]string, 0, len(byType))
	for name := range byType {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)
	breakdown := make([]string, 0, len(typeNames))
	for _, name := range typeNames {
		breakdown = append(breakdown, fmt.Sprintf("%s: %d", name, byType[name]))
	}

	report.Paragraph(fmt.Sprintf("%d volumes, %d available for deletion. Estimated %s/month (%s/year).",
		len(volumes), available, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	if len(breakdown) > 0 {
		report.List(breakdown)
	}
	report.Table([]string{"Volume", "Region", "Type", "Size", "Attached To", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(volumes []volume) ([]cleanup.Item, []cleanup.Filter) {
	availableIDs := make(map[string]bool)

	items := make([]cleanup.Item, 0, len(volumes))
	for _, v := range volumes {
		v := v
		if v.available() {
			availableIDs[v.ID] = true
		}

		items = append(items, cleanup.Item{
			ID:          v.ID,
			Name:        v.label(),
			Region:      v.Region,
			MonthlyCost: v.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %s %d GiB, %s, %s/month",
				v.label(), v.Region, v.Type, v.SizeGB, v.State, utils.FormatMoney(v.MonthlyCost)),
			Safety: v.Safety,
			Delete: c.deleteFunc(v),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "available",
			Description: "not attached to any instance",
			Match:       func(item cleanup.Item) bool { return availableIDs[item.ID] },
		},
	}

	return items, filters
}

// deleteFunc re-checks the attachment state right before deleting;
// a volume can get attached between the scan and the confirmation.
func (c *Cleaner) deleteFunc(v volume) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newEC2(v.Region)
		if err != nil {
			return err
		}

		current, err := api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{v.ID}})
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to re-check volume state: %v", err)
		}
		for _, vol := range current.Volumes {
			if vol.State != ec2types.VolumeStateAvailable {
				return fmt.Errorf("volume is %s, only available volumes can be deleted", vol.State)
			}
		}

		if _, err := api.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(v.ID)}); err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to delete volume: %v", err)
		}
		return nil
	}
}

// isNotFound treats a volume that is already gone as deleted.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidVolume.NotFound"
}
