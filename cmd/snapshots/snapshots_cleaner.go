package snapshots

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
	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

const gib = 1 << 30

type EC2API interface {
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

type snapshot struct {
	ID          string
	Region      string
	VolumeID    string
	SizeGB      int32
	Description string
	State       string
	StartTime   time.Time
}

type Cleaner struct {
	opts    *cleanup.SweepOptions
	profile string
	regions []string
	newEC2  func(region string) (EC2API, error)
	now     func() time.Time
}

func NewCleaner(opts *cleanup.SweepOptions) (*Cleaner, error) {
	profile, regions, _, err := opts.Resolve()
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		opts:    opts,
		profile: profile,
		regions: regions,
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

	var snapshots []snapshot
	for _, region := range regions {
		found, err := c.inventoryRegion(ctx, region)
		if err != nil {
			slog.Warn("⚠️ Skipping region", "region", region, "error", err)
			continue
		}
		slog.Info("✅ Scanned region", "region", region, "snapshots", len(found))
		snapshots = append(snapshots, found...)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].Region != snapshots[j].Region {
			return snapshots[i].Region < snapshots[j].Region
		}
		return snapshots[i].StartTime.Before(snapshots[j].StartTime)
	})

	if err := c.summarize(snapshots); err != nil {
		return err
	}

	items := c.buildSelection(snapshots)
	flow := c.opts.NewFlow("snapshots", items, nil, rate.NewLimiter(rate.Every(500*time.Millisecond), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) probe(ctx context.Context, region string) error {
	api, err := c.newEC2(region)
	if err != nil {
		return err
	}
	_, err = api.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
		OwnerIds:   []string{"self"},
		MaxResults: aws.Int32(5),
	})
	return err
}

func (c *Cleaner) inventoryRegion(ctx context.Context, region string) ([]snapshot, error) {
	api, err := c.newEC2(region)
	if err != nil {
		return nil, err
	}

	var snapshots []snapshot
	paginator := ec2.NewDescribeSnapshotsPaginator(api, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe snapshots: %v", err)
		}
		for _, s := range page.Snapshots {
			snapshots = append(snapshots, fromAPI(region, s))
		}
	}

	return snapshots, nil
}

func fromAPI(region string, s ec2types.Snapshot) snapshot {
	snap := snapshot{
		ID:          aws.ToString(s.SnapshotId),
		Region:      region,
		VolumeID:    aws.ToString(s.VolumeId),
		SizeGB:      aws.ToInt32(s.VolumeSize),
		Description: aws.ToString(s.Description),
		State:       string(s.State),
	}
	if s.StartTime != nil {
		snap.StartTime = *s.StartTime
	}
	return snap
}

func (c *Cleaner) summarize(snapshots []snapshot) error {
	report := markdown.New()
	report.Heading(1, "EBS snapshot inventory")

	var totalBytes int64
	for _, s := range snapshots {
		totalBytes += int64(s.SizeGB) * gib
	}

	rows := make([][]string, 0, len(snapshots))
	for _, s := range snapshots {
		started := ""
		if !s.StartTime.IsZero() {
			started = s.StartTime.Format("2006-01-02")
		}
		rows = append(rows, []string{
			s.ID, s.Region, s.VolumeID,
			utils.FormatBytes(int64(s.SizeGB) * gib),
			s.State, started, utils.Truncate(s.Description, 40),
		})
	}

	report.Paragraph(fmt.Sprintf("%d snapshots totalling %s.", len(snapshots), utils.FormatBytes(totalBytes)))
	report.Table([]string{"Snapshot", "Region", "Volume", "Size", "State", "Started", "Description"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(snapshots []snapshot) []cleanup.Item {
	items := make([]cleanup.Item, 0, len(snapshots))
	for _, s := range snapshots {
		s := s
		description := s.Description
		if description == "" {
			description = "no description"
		}
		items = append(items, cleanup.Item{
			ID:     s.ID,
			Name:   s.ID,
			Region: s.Region,
			Display: fmt.Sprintf("%s [%s] %s from %s, started %s (%s)",
				s.ID, s.Region, utils.FormatBytes(int64(s.SizeGB)*gib), s.VolumeID, s.StartTime.Format("2006-01-02"), description),
			Safety: types.SafetyReport{},
			Delete: c.deleteFunc(s),
		})
	}
	return items
}

func (c *Cleaner) deleteFunc(s snapshot) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newEC2(s.Region)
		if err != nil {
			return err
		}
		if _, err := api.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(s.ID)}); err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to delete snapshot: %v", err)
		}
		return nil
	}
}

// isNotFound treats a snapshot that is already gone as deleted.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidSnapshot.NotFound"
}
