package s3

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
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"
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
// bucket name.
var riskyNamePatterns = []string{"backup", "prod", "production", "website", "cdn", "assets", "terraform", "cloudformation", "logs", "archive"}

const (
	// bucketConcurrency bounds how many buckets are enriched in parallel;
	// every bucket needs several API calls and accounts hold hundreds.
	bucketConcurrency = 5

	// deleteBatchSize is the DeleteObjects maximum.
	deleteBatchSize = 1000

	// fallbackListLimit caps how many objects the manual count looks at
	// when CloudWatch has no storage metrics for a bucket.
	fallbackListLimit = 1000

	// emptyBucketSettle gives S3 a moment between emptying a bucket and
	// deleting it.
	emptyBucketSettle = 2 * time.Second
)

type S3API interface {
	ListBuckets(ctx context.Context, params *awss3.ListBucketsInput, optFns ...func(*awss3.Options)) (*awss3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *awss3.GetBucketLocationInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketLocationOutput, error)
	GetBucketVersioning(ctx context.Context, params *awss3.GetBucketVersioningInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketVersioningOutput, error)
	GetBucketLifecycleConfiguration(ctx context.Context, params *awss3.GetBucketLifecycleConfigurationInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketLifecycleConfigurationOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *awss3.GetPublicAccessBlockInput, optFns ...func(*awss3.Options)) (*awss3.GetPublicAccessBlockOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	ListObjectVersions(ctx context.Context, params *awss3.ListObjectVersionsInput, optFns ...func(*awss3.Options)) (*awss3.ListObjectVersionsOutput, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	DeleteBucket(ctx context.Context, params *awss3.DeleteBucketInput, optFns ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error)
}

type MetricsAPI interface {
	PeakOverWindow(ctx context.Context, q metrics.Query) (float64, error)
}

type bucket struct {
	Name         string
	Region       string
	SizeBytes    int64
	ObjectCount  int64
	Approximate  bool
	Versioning   bool
	Lifecycle    bool
	PublicAccess bool
	CreatedAt    time.Time
	MonthlyCost  float64
	Safety       types.SafetyReport
}

type Cleaner struct {
	opts       *cleanup.SweepOptions
	profile    string
	pricer     *pricing.Service
	newS3      func(region string) (S3API, error)
	newMetrics func(region string) (MetricsAPI, error)
	now        func() time.Time
	settle     time.Duration
}

func NewCleaner(opts *cleanup.SweepOptions) (*Cleaner, error) {
	profile, _, pricer, err := opts.Resolve()
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		opts:    opts,
		profile: profile,
		pricer:  pricer,
		newS3: func(region string) (S3API, error) {
			return client.NewS3Client(region, profile)
		},
		newMetrics: func(region string) (MetricsAPI, error) {
			cw, err := client.NewCloudWatchClient(region, profile)
			if err != nil {
				return nil, err
			}
			return metrics.NewService(cw), nil
		},
		now:    time.Now,
		settle: emptyBucketSettle,
	}, nil
}

// Run is the only cleanup that skips the region probe: bucket listing is
// a single global call.
func (c *Cleaner) Run(ctx context.Context) error {
	stsClient, err := client.NewSTSClient("", c.profile)
	if err != nil {
		return err
	}
	if _, err := cleanup.CallerIdentity(ctx, stsClient); err != nil {
		return err
	}

	buckets, err := c.inventory(ctx)
	if err != nil {
		return err
	}

	if err := c.summarize(buckets); err != nil {
		return err
	}

	items, filters := c.buildSelection(buckets)
	flow := c.opts.NewFlow("S3 buckets", items, filters, rate.NewLimiter(rate.Every(2*time.Second), 1))
	_, err = flow.Run(ctx)
	return err
}

func (c *Cleaner) inventory(ctx context.Context) ([]bucket, error) {
	api, err := c.newS3("us-east-1")
	if err != nil {
		return nil, err
	}

	listed, err := api.ListBuckets(ctx, &awss3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %v", err)
	}

	buckets := make([]bucket, len(listed.Buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bucketConcurrency)
	for i, entry := range listed.Buckets {
		i, entry := i, entry
		g.Go(func() error {
			buckets[i] = c.enrich(gctx, api, entry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("✅ Scanned buckets", "buckets", len(buckets))
	return buckets, nil
}

func (c *Cleaner) enrich(ctx context.Context, global S3API, entry s3types.Bucket) bucket {
	b := bucket{Name: aws.ToString(entry.Name)}
	if entry.CreationDate != nil {
		b.CreatedAt = *entry.CreationDate
	}

	b.Region = c.bucketRegion(ctx, global, b.Name)

	api, err := c.newS3(b.Region)
	if err != nil {
		slog.Warn("⚠️ Failed to build regional client", "bucket", b.Name, "region", b.Region, "error", err)
		api = global
	}

	if versioning, err := api.GetBucketVersioning(ctx, &awss3.GetBucketVersioningInput{Bucket: aws.String(b.Name)}); err == nil {
		b.Versioning = versioning.Status == s3types.BucketVersioningStatusEnabled
	}
	if _, err := api.GetBucketLifecycleConfiguration(ctx, &awss3.GetBucketLifecycleConfigurationInput{Bucket: aws.String(b.Name)}); err == nil {
		b.Lifecycle = true
	}
	if block, err := api.GetPublicAccessBlock(ctx, &awss3.GetPublicAccessBlockInput{Bucket: aws.String(b.Name)}); err == nil && block.PublicAccessBlockConfiguration != nil {
		cfg := block.PublicAccessBlockConfiguration
		restricted := aws.ToBool(cfg.BlockPublicAcls) && aws.ToBool(cfg.IgnorePublicAcls) &&
			aws.ToBool(cfg.BlockPublicPolicy) && aws.ToBool(cfg.RestrictPublicBuckets)
		b.PublicAccess = !restricted
	} else if err != nil {
		// No public access block at all leaves the bucket potentially open.
		b.PublicAccess = true
	}

	c.measure(ctx, api, &b)

	b.MonthlyCost = c.pricer.S3Monthly(b.SizeBytes)
	b.Safety = c.safetyReport(b)
	return b
}

func (c *Cleaner) bucketRegion(ctx context.Context, api S3API, name string) string {
	location, err := api.GetBucketLocation(ctx, &awss3.GetBucketLocationInput{Bucket: aws.String(name)})
	if err != nil {
		slog.Warn("⚠️ Failed to resolve bucket region", "bucket", name, "error", err)
		return "us-east-1"
	}
	switch location.LocationConstraint {
	case "":
		return "us-east-1"
	case "EU":
		return "eu-west-1"
	default:
		return string(location.LocationConstraint)
	}
}

// measure fills in size and object count, preferring the free CloudWatch
// storage metrics over listing the bucket.
func (c *Cleaner) measure(ctx context.Context, api S3API, b *bucket) {
	metricsAPI, err := c.newMetrics(b.Region)
	if err == nil {
		window, werr := metrics.GetTimeWindow(c.now(), metrics.LastWeek)
		if werr == nil {
			size, sizeErr := metricsAPI.PeakOverWindow(ctx, metrics.Query{
				Namespace:  "AWS/S3",
				MetricName: "BucketSizeBytes",
				Dimensions: []cwtypes.Dimension{
					metrics.Dimension("BucketName", b.Name),
					metrics.Dimension("StorageType", "StandardStorage"),
				},
				Window: window,
			})
			count, countErr := metricsAPI.PeakOverWindow(ctx, metrics.Query{
				Namespace:  "AWS/S3",
				MetricName: "NumberOfObjects",
				Dimensions: []cwtypes.Dimension{
					metrics.Dimension("BucketName", b.Name),
					metrics.Dimension("StorageType", "AllStorageTypes"),
				},
				Window: window,
			})
			if sizeErr == nil && countErr == nil && (size > 0 || count > 0) {
				b.SizeBytes = int64(size)
				b.ObjectCount = int64(count)
				return
			}
		}
	}

	// CloudWatch has nothing for this bucket; count the first page of
	// objects by hand so empty buckets still read as empty.
	listed, err := api.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(b.Name),
		MaxKeys: aws.Int32(fallbackListLimit),
	})
	if err != nil {
		slog.Warn("⚠️ Failed to list bucket objects", "bucket", b.Name, "error", err)
		return
	}
	for _, object := range listed.Contents {
		b.SizeBytes += aws.ToInt64(object.Size)
	}
	b.ObjectCount = int64(len(listed.Contents))
	b.Approximate = aws.ToBool(listed.IsTruncated)
}

func (c *Cleaner) safetyReport(b bucket) types.SafetyReport {
	report := types.SafetyReport{}

	lowered := strings.ToLower(b.Name)
	for _, pattern := range riskyNamePatterns {
		if strings.Contains(lowered, pattern) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("name contains '%s'", pattern))
		}
	}

	if b.ObjectCount > 0 {
		size := utils.FormatBytes(b.SizeBytes)
		if b.Approximate {
			size += " (approximate)"
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("holds %d objects, %s", b.ObjectCount, size))
	}
	if b.Versioning {
		report.Warnings = append(report.Warnings, "versioning is enabled")
	}
	if b.Lifecycle {
		report.Warnings = append(report.Warnings, "has lifecycle rules")
	}
	if b.PublicAccess {
		report.Warnings = append(report.Warnings, "public access is not fully blocked")
	}

	if !b.CreatedAt.IsZero() {
		days := int(c.now().Sub(b.CreatedAt).Hours() / 24)
		report.DaysSinceCreated = days
		if days <= 7 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("created only %d days ago", days))
		}
	}

	return report
}

func (c *Cleaner) summarize(buckets []bucket) error {
	report := markdown.New()
	report.Heading(1, "S3 bucket inventory")

	empty, risky := 0, 0
	total := 0.0
	var totalBytes int64
	for _, b := range buckets {
		if b.ObjectCount == 0 {
			empty++
		}
		if b.Safety.IsRisky() {
			risky++
		}
		total += b.MonthlyCost
		totalBytes += b.SizeBytes
	}

	sorted := append([]bucket(nil), buckets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyCost > sorted[j].MonthlyCost
	})

	rows := make([][]string, 0, len(sorted))
	for _, b := range sorted {
		status := "✓"
		if b.Safety.IsRisky() {
			status = "⚠️"
		}
		size := utils.FormatBytes(b.SizeBytes)
		if b.Approximate {
			size += " ~"
		}
		rows = append(rows, []string{
			status, b.Name, b.Region, size,
			fmt.Sprintf("%d", b.ObjectCount),
			utils.FormatMoney(b.MonthlyCost),
		})
	}

	report.Paragraph(fmt.Sprintf("%d buckets holding %s, %d empty, %d with warnings. Estimated %s/month (%s/year).",
		len(buckets), utils.FormatBytes(totalBytes), empty, risky, utils.FormatMoney(total), utils.FormatMoney(total*12)))
	report.Table([]string{"", "Bucket", "Region", "Size", "Objects", "Monthly Cost"}, rows)

	if err := report.RenderToTerminal(); err != nil {
		return err
	}
	return c.opts.MaybeWriteReport(report)
}

func (c *Cleaner) buildSelection(buckets []bucket) ([]cleanup.Item, []cleanup.Filter) {
	items := make([]cleanup.Item, 0, len(buckets))
	for _, b := range buckets {
		b := b
		items = append(items, cleanup.Item{
			ID:          b.Name,
			Name:        b.Name,
			Region:      b.Region,
			MonthlyCost: b.MonthlyCost,
			Display: fmt.Sprintf("%s [%s] %d objects, %s, %s/month",
				b.Name, b.Region, b.ObjectCount, utils.FormatBytes(b.SizeBytes), utils.FormatMoney(b.MonthlyCost)),
			Safety: b.Safety,
			Delete: c.deleteFunc(b),
		})
	}

	filters := []cleanup.Filter{
		{
			Keyword:     "safe",
			Description: "no safety warnings",
			Match:       func(item cleanup.Item) bool { return !item.Safety.IsRisky() },
		},
	}

	return items, filters
}

func (c *Cleaner) deleteFunc(b bucket) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		api, err := c.newS3(b.Region)
		if err != nil {
			return err
		}

		if err := c.emptyBucket(ctx, api, b.Name); err != nil {
			return err
		}

		select {
		case <-time.After(c.settle):
		case <-ctx.Done():
			return ctx.Err()
		}

		if _, err := api.DeleteBucket(ctx, &awss3.DeleteBucketInput{Bucket: aws.String(b.Name)}); err != nil {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode() == "BucketNotEmpty" {
				return fmt.Errorf("bucket still has objects after emptying, retry in a moment")
			}
			return fmt.Errorf("failed to delete bucket: %v", err)
		}
		return nil
	}
}

// emptyBucket removes every object version and delete marker, in batches
// of up to a thousand.
func (c *Cleaner) emptyBucket(ctx context.Context, api S3API, name string) error {
	input := &awss3.ListObjectVersionsInput{Bucket: aws.String(name)}
	for {
		page, err := api.ListObjectVersions(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to list object versions: %v", err)
		}

		var batch []s3types.ObjectIdentifier
		for _, version := range page.Versions {
			batch = append(batch, s3types.ObjectIdentifier{Key: version.Key, VersionId: version.VersionId})
		}
		for _, marker := range page.DeleteMarkers {
			batch = append(batch, s3types.ObjectIdentifier{Key: marker.Key, VersionId: marker.VersionId})
		}

		for start := 0; start < len(batch); start += deleteBatchSize {
			end := start + deleteBatchSize
			if end > len(batch) {
				end = len(batch)
			}
			_, err := api.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
				Bucket: aws.String(name),
				Delete: &s3types.Delete{Objects: batch[start:end], Quiet: aws.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("failed to delete objects: %v", err)
			}
		}

		if !aws.ToBool(page.IsTruncated) {
			return nil
		}
		input.KeyMarker = page.NextKeyMarker
		input.VersionIdMarker = page.NextVersionIdMarker
	}
}
