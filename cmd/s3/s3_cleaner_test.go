package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/services/metrics"
	"github.com/awsweep/awsweep/internal/services/pricing"
)

type mockS3Client struct {
	ListBucketsFunc                     func(ctx context.Context, params *awss3.ListBucketsInput, optFns ...func(*awss3.Options)) (*awss3.ListBucketsOutput, error)
	GetBucketLocationFunc               func(ctx context.Context, params *awss3.GetBucketLocationInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketLocationOutput, error)
	GetBucketVersioningFunc             func(ctx context.Context, params *awss3.GetBucketVersioningInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketVersioningOutput, error)
	GetBucketLifecycleConfigurationFunc func(ctx context.Context, params *awss3.GetBucketLifecycleConfigurationInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketLifecycleConfigurationOutput, error)
	GetPublicAccessBlockFunc            func(ctx context.Context, params *awss3.GetPublicAccessBlockInput, optFns ...func(*awss3.Options)) (*awss3.GetPublicAccessBlockOutput, error)
	ListObjectsV2Func                   func(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	ListObjectVersionsFunc              func(ctx context.Context, params *awss3.ListObjectVersionsInput, optFns ...func(*awss3.Options)) (*awss3.ListObjectVersionsOutput, error)
	DeleteObjectsFunc                   func(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	DeleteBucketFunc                    func(ctx context.Context, params *awss3.DeleteBucketInput, optFns ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error)
}

func (m *mockS3Client) ListBuckets(ctx context.Context, params *awss3.ListBucketsInput, optFns ...func(*awss3.Options)) (*awss3.ListBucketsOutput, error) {
	return m.ListBucketsFunc(ctx, params, optFns...)
}
func (m *mockS3Client) GetBucketLocation(ctx context.Context, params *awss3.GetBucketLocationInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketLocationOutput, error) {
	return m.GetBucketLocationFunc(ctx, params, optFns...)
}
func (m *mockS3Client) GetBucketVersioning(ctx context.Context, params *awss3.GetBucketVersioningInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketVersioningOutput, error) {
	return m.GetBucketVersioningFunc(ctx, params, optFns...)
}
func (m *mockS3Client) GetBucketLifecycleConfiguration(ctx context.Context, params *awss3.GetBucketLifecycleConfigurationInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketLifecycleConfigurationOutput, error) {
	return m.GetBucketLifecycleConfigurationFunc(ctx, params, optFns...)
}
func (m *mockS3Client) GetPublicAccessBlock(ctx context.Context, params *awss3.GetPublicAccessBlockInput, optFns ...func(*awss3.Options)) (*awss3.GetPublicAccessBlockOutput, error) {
	return m.GetPublicAccessBlockFunc(ctx, params, optFns...)
}
func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	return m.ListObjectsV2Func(ctx, params, optFns...)
}
func (m *mockS3Client) ListObjectVersions(ctx context.Context, params *awss3.ListObjectVersionsInput, optFns ...func(*awss3.Options)) (*awss3.ListObjectVersionsOutput, error) {
	return m.ListObjectVersionsFunc(ctx, params, optFns...)
}
func (m *mockS3Client) DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	return m.DeleteObjectsFunc(ctx, params, optFns...)
}
func (m *mockS3Client) DeleteBucket(ctx context.Context, params *awss3.DeleteBucketInput, optFns ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error) {
	return m.DeleteBucketFunc(ctx, params, optFns...)
}

type mockMetrics struct {
	peaks map[string]float64
	err   error
}

func (m *mockMetrics) PeakOverWindow(ctx context.Context, q metrics.Query) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.peaks[q.MetricName], nil
}

func testCleaner(api S3API, m MetricsAPI) *Cleaner {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return &Cleaner{
		opts:       &cleanup.SweepOptions{},
		pricer:     pricing.NewService(nil),
		newS3:      func(region string) (S3API, error) { return api, nil },
		newMetrics: func(region string) (MetricsAPI, error) { return m, nil },
		now:        func() time.Time { return now },
		settle:     time.Millisecond,
	}
}

func TestSafetyReport(t *testing.T) {
	cleaner := testCleaner(nil, nil)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		bucket           bucket
		expectedWarnings []string
	}{
		{
			name:             "empty private bucket is safe",
			bucket:           bucket{Name: "scratch-space", CreatedAt: old},
			expectedWarnings: nil,
		},
		{
			name:             "every name pattern warns",
			bucket:           bucket{Name: "prod-website-logs", CreatedAt: old},
			expectedWarnings: []string{"name contains 'prod'", "name contains 'website'", "name contains 'logs'"},
		},
		{
			name: "contents and posture",
			bucket: bucket{
				Name:         "scratch-space",
				ObjectCount:  42,
				SizeBytes:    1 << 30,
				Versioning:   true,
				Lifecycle:    true,
				PublicAccess: true,
				CreatedAt:    old,
			},
			expectedWarnings: []string{
				"holds 42 objects, 1.0 GiB",
				"versioning is enabled",
				"has lifecycle rules",
				"public access is not fully blocked",
			},
		},
		{
			name: "approximate sizes are flagged",
			bucket: bucket{
				Name:        "scratch-space",
				ObjectCount: 1000,
				SizeBytes:   1 << 20,
				Approximate: true,
				CreatedAt:   old,
			},
			expectedWarnings: []string{"holds 1000 objects, 1.0 MiB (approximate)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := cleaner.safetyReport(tt.bucket)
			assert.Equal(t, tt.expectedWarnings, report.Warnings)
		})
	}
}

func TestBucketRegionResolution(t *testing.T) {
	tests := []struct {
		constraint s3types.BucketLocationConstraint
		expected   string
	}{
		{"", "us-east-1"},
		{"EU", "eu-west-1"},
		{"ap-southeast-2", "ap-southeast-2"},
	}

	for _, tt := range tests {
		api := &mockS3Client{
			GetBucketLocationFunc: func(ctx context.Context, params *awss3.GetBucketLocationInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketLocationOutput, error) {
				return &awss3.GetBucketLocationOutput{LocationConstraint: tt.constraint}, nil
			},
		}
		cleaner := testCleaner(api, nil)
		assert.Equal(t, tt.expected, cleaner.bucketRegion(context.Background(), api, "some-bucket"))
	}
}

func TestMeasurePrefersCloudWatch(t *testing.T) {
	cleaner := testCleaner(nil, &mockMetrics{peaks: map[string]float64{
		"BucketSizeBytes": 5 << 30,
		"NumberOfObjects": 1234,
	}})

	b := bucket{Name: "metered", Region: "us-east-1"}
	cleaner.measure(context.Background(), nil, &b)

	assert.Equal(t, int64(5<<30), b.SizeBytes)
	assert.Equal(t, int64(1234), b.ObjectCount)
	assert.False(t, b.Approximate)
}

func TestMeasureFallsBackToListing(t *testing.T) {
	api := &mockS3Client{
		ListObjectsV2Func: func(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
			return &awss3.ListObjectsV2Output{
				Contents: []s3types.Object{
					{Key: aws.String("a"), Size: aws.Int64(100)},
					{Key: aws.String("b"), Size: aws.Int64(200)},
				},
				IsTruncated: aws.Bool(true),
			}, nil
		},
	}
	cleaner := testCleaner(api, &mockMetrics{err: errors.New("no metrics")})

	b := bucket{Name: "unmetered", Region: "us-east-1"}
	cleaner.measure(context.Background(), api, &b)

	assert.Equal(t, int64(300), b.SizeBytes)
	assert.Equal(t, int64(2), b.ObjectCount)
	assert.True(t, b.Approximate)
}

func TestDeleteEmptiesBucketFirst(t *testing.T) {
	var calls []string
	var deleted []s3types.ObjectIdentifier
	pages := 0
	api := &mockS3Client{
		ListObjectVersionsFunc: func(ctx context.Context, params *awss3.ListObjectVersionsInput, optFns ...func(*awss3.Options)) (*awss3.ListObjectVersionsOutput, error) {
			calls = append(calls, "list")
			pages++
			if pages == 1 {
				return &awss3.ListObjectVersionsOutput{
					Versions: []s3types.ObjectVersion{
						{Key: aws.String("a"), VersionId: aws.String("v1")},
						{Key: aws.String("a"), VersionId: aws.String("v2")},
					},
					DeleteMarkers: []s3types.DeleteMarkerEntry{
						{Key: aws.String("b"), VersionId: aws.String("v3")},
					},
					IsTruncated:         aws.Bool(true),
					NextKeyMarker:       aws.String("a"),
					NextVersionIdMarker: aws.String("v2"),
				}, nil
			}
			return &awss3.ListObjectVersionsOutput{}, nil
		},
		DeleteObjectsFunc: func(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
			calls = append(calls, "delete-objects")
			deleted = append(deleted, params.Delete.Objects...)
			return &awss3.DeleteObjectsOutput{}, nil
		},
		DeleteBucketFunc: func(ctx context.Context, params *awss3.DeleteBucketInput, optFns ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error) {
			calls = append(calls, "delete-bucket")
			return &awss3.DeleteBucketOutput{}, nil
		},
	}

	cleaner := testCleaner(api, nil)
	deleteFn := cleaner.deleteFunc(bucket{Name: "doomed", Region: "us-east-1"})
	require.NoError(t, deleteFn(context.Background()))

	assert.Equal(t, []string{"list", "delete-objects", "list", "delete-bucket"}, calls)
	assert.Len(t, deleted, 3)
}

type bucketNotEmptyErr struct{}

func (bucketNotEmptyErr) Error() string                 { return "BucketNotEmpty: the bucket is not empty" }
func (bucketNotEmptyErr) ErrorCode() string             { return "BucketNotEmpty" }
func (bucketNotEmptyErr) ErrorMessage() string          { return "the bucket is not empty" }
func (bucketNotEmptyErr) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func TestDeleteReportsBucketNotEmpty(t *testing.T) {
	api := &mockS3Client{
		ListObjectVersionsFunc: func(ctx context.Context, params *awss3.ListObjectVersionsInput, optFns ...func(*awss3.Options)) (*awss3.ListObjectVersionsOutput, error) {
			return &awss3.ListObjectVersionsOutput{}, nil
		},
		DeleteBucketFunc: func(ctx context.Context, params *awss3.DeleteBucketInput, optFns ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error) {
			return nil, fmt.Errorf("api error: %w", bucketNotEmptyErr{})
		},
	}

	cleaner := testCleaner(api, nil)
	deleteFn := cleaner.deleteFunc(bucket{Name: "doomed", Region: "us-east-1"})

	err := deleteFn(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still has objects")
}
