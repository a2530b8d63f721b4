package efs

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsefs "github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/services/pricing"
)

type mockEFSClient struct {
	DescribeFileSystemsFunc            func(ctx context.Context, params *awsefs.DescribeFileSystemsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeFileSystemsOutput, error)
	DescribeMountTargetsFunc           func(ctx context.Context, params *awsefs.DescribeMountTargetsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeMountTargetsOutput, error)
	DescribeAccessPointsFunc           func(ctx context.Context, params *awsefs.DescribeAccessPointsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeAccessPointsOutput, error)
	DescribeLifecycleConfigurationFunc func(ctx context.Context, params *awsefs.DescribeLifecycleConfigurationInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeLifecycleConfigurationOutput, error)
	DeleteAccessPointFunc              func(ctx context.Context, params *awsefs.DeleteAccessPointInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteAccessPointOutput, error)
	DeleteMountTargetFunc              func(ctx context.Context, params *awsefs.DeleteMountTargetInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteMountTargetOutput, error)
	DeleteFileSystemFunc               func(ctx context.Context, params *awsefs.DeleteFileSystemInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteFileSystemOutput, error)
}

func (m *mockEFSClient) DescribeFileSystems(ctx context.Context, params *awsefs.DescribeFileSystemsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeFileSystemsOutput, error) {
	return m.DescribeFileSystemsFunc(ctx, params, optFns...)
}
func (m *mockEFSClient) DescribeMountTargets(ctx context.Context, params *awsefs.DescribeMountTargetsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeMountTargetsOutput, error) {
	return m.DescribeMountTargetsFunc(ctx, params, optFns...)
}
func (m *mockEFSClient) DescribeAccessPoints(ctx context.Context, params *awsefs.DescribeAccessPointsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeAccessPointsOutput, error) {
	return m.DescribeAccessPointsFunc(ctx, params, optFns...)
}
func (m *mockEFSClient) DescribeLifecycleConfiguration(ctx context.Context, params *awsefs.DescribeLifecycleConfigurationInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeLifecycleConfigurationOutput, error) {
	return m.DescribeLifecycleConfigurationFunc(ctx, params, optFns...)
}
func (m *mockEFSClient) DeleteAccessPoint(ctx context.Context, params *awsefs.DeleteAccessPointInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteAccessPointOutput, error) {
	return m.DeleteAccessPointFunc(ctx, params, optFns...)
}
func (m *mockEFSClient) DeleteMountTarget(ctx context.Context, params *awsefs.DeleteMountTargetInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteMountTargetOutput, error) {
	return m.DeleteMountTargetFunc(ctx, params, optFns...)
}
func (m *mockEFSClient) DeleteFileSystem(ctx context.Context, params *awsefs.DeleteFileSystemInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteFileSystemOutput, error) {
	return m.DeleteFileSystemFunc(ctx, params, optFns...)
}

func testCleaner(api EFSAPI) *Cleaner {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return &Cleaner{
		opts:   &cleanup.SweepOptions{},
		pricer: pricing.NewService(nil),
		newEFS: func(region string) (EFSAPI, error) { return api, nil },
		now:    func() time.Time { return now },
		poll:   time.Millisecond,
	}
}

func TestSafetyReport(t *testing.T) {
	cleaner := testCleaner(nil)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		fs               fileSystem
		expectedWarnings []string
	}{
		{
			name:             "idle unmounted file system is safe",
			fs:               fileSystem{Name: "scratch", CreatedAt: old},
			expectedWarnings: nil,
		},
		{
			name:             "only the first name pattern warns",
			fs:               fileSystem{Name: "prod-shared-data", CreatedAt: old},
			expectedWarnings: []string{"name contains 'prod'"},
		},
		{
			name: "mounted and active",
			fs: fileSystem{
				Name:           "scratch",
				MountTargets:   2,
				AccessPoints:   1,
				AvgConnections: 3.5,
				TotalIOBytes:   2 << 30,
				CreatedAt:      old,
			},
			expectedWarnings: []string{
				"has 2 mount targets",
				"has 1 access points",
				"recent activity: 3.5 avg connections, 2.0 GiB IO in 30 days",
			},
		},
		{
			name: "provisioned encrypted with lifecycle",
			fs: fileSystem{
				Name:             "scratch",
				ThroughputMode:   "provisioned",
				ProvisionedMiBps: 100,
				Encrypted:        true,
				LifecyclePolicy:  true,
				CreatedAt:        old,
			},
			expectedWarnings: []string{
				"provisioned throughput of 100 MiB/s",
				"encrypted",
				"has lifecycle policies",
			},
		},
		{
			name:             "recently created",
			fs:               fileSystem{Name: "scratch", CreatedAt: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)},
			expectedWarnings: []string{"created only 5 days ago"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := cleaner.safetyReport(tt.fs)
			assert.Equal(t, tt.expectedWarnings, report.Warnings)
		})
	}
}

func TestFileSystemName(t *testing.T) {
	tests := []struct {
		name        string
		description efstypes.FileSystemDescription
		want        string
	}{
		{
			name:        "name field wins",
			description: efstypes.FileSystemDescription{FileSystemId: aws.String("fs-1"), Name: aws.String("media")},
			want:        "media",
		},
		{
			name: "name tag is the fallback",
			description: efstypes.FileSystemDescription{
				FileSystemId: aws.String("fs-1"),
				Tags:         []efstypes.Tag{{Key: aws.String("Name"), Value: aws.String("tagged")}},
			},
			want: "tagged",
		},
		{
			name:        "id when nothing else",
			description: efstypes.FileSystemDescription{FileSystemId: aws.String("fs-1")},
			want:        "fs-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileSystemName(tt.description))
		})
	}
}

func TestBuildSelectionFilters(t *testing.T) {
	cleaner := testCleaner(nil)
	fileSystems := []fileSystem{
		{ID: "fs-idle", Name: "idle"},
		{ID: "fs-busy", Name: "busy", MountTargets: 1, AvgConnections: 2},
	}
	for i := range fileSystems {
		fileSystems[i].Safety = cleaner.safetyReport(fileSystems[i])
	}

	items, filters := cleaner.buildSelection(fileSystems)
	require.Len(t, filters, 3)

	byKeyword := map[string]cleanup.Filter{}
	for _, f := range filters {
		byKeyword[f.Keyword] = f
	}

	assert.True(t, byKeyword["inactive"].Match(items[0]))
	assert.False(t, byKeyword["inactive"].Match(items[1]))
	assert.True(t, byKeyword["unmounted"].Match(items[0]))
	assert.False(t, byKeyword["unmounted"].Match(items[1]))
	assert.True(t, byKeyword["safe"].Match(items[0]))
}

func TestDeleteOrdering(t *testing.T) {
	var calls []string
	mountTargetPolls := 0

	api := &mockEFSClient{
		DescribeAccessPointsFunc: func(ctx context.Context, params *awsefs.DescribeAccessPointsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeAccessPointsOutput, error) {
			return &awsefs.DescribeAccessPointsOutput{
				AccessPoints: []efstypes.AccessPointDescription{{AccessPointId: aws.String("fsap-1")}},
			}, nil
		},
		DeleteAccessPointFunc: func(ctx context.Context, params *awsefs.DeleteAccessPointInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteAccessPointOutput, error) {
			calls = append(calls, "access point "+aws.ToString(params.AccessPointId))
			return &awsefs.DeleteAccessPointOutput{}, nil
		},
		DescribeMountTargetsFunc: func(ctx context.Context, params *awsefs.DescribeMountTargetsInput, optFns ...func(*awsefs.Options)) (*awsefs.DescribeMountTargetsOutput, error) {
			mountTargetPolls++
			if mountTargetPolls == 1 {
				return &awsefs.DescribeMountTargetsOutput{
					MountTargets: []efstypes.MountTargetDescription{{MountTargetId: aws.String("fsmt-1")}},
				}, nil
			}
			return &awsefs.DescribeMountTargetsOutput{}, nil
		},
		DeleteMountTargetFunc: func(ctx context.Context, params *awsefs.DeleteMountTargetInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteMountTargetOutput, error) {
			calls = append(calls, "mount target "+aws.ToString(params.MountTargetId))
			return &awsefs.DeleteMountTargetOutput{}, nil
		},
		DeleteFileSystemFunc: func(ctx context.Context, params *awsefs.DeleteFileSystemInput, optFns ...func(*awsefs.Options)) (*awsefs.DeleteFileSystemOutput, error) {
			calls = append(calls, "file system "+aws.ToString(params.FileSystemId))
			return &awsefs.DeleteFileSystemOutput{}, nil
		},
	}

	cleaner := testCleaner(api)
	deleteFn := cleaner.deleteFunc(fileSystem{ID: "fs-1", Region: "us-east-1"})

	require.NoError(t, deleteFn(context.Background()))
	assert.Equal(t, []string{
		"access point fsap-1",
		"mount target fsmt-1",
		"file system fs-1",
	}, calls)
	assert.GreaterOrEqual(t, mountTargetPolls, 2)
}

func TestPricingUsesSizeAndThroughput(t *testing.T) {
	pricer := pricing.NewService(nil)

	// 10 GiB standard storage only.
	assert.InDelta(t, 3.0, pricer.EFSMonthly(10<<30, "bursting", 0), 0.001)

	// Provisioned throughput above the 1 MiB/s minimum baseline.
	cost := pricer.EFSMonthly(10<<30, "provisioned", 51)
	assert.InDelta(t, 3.0+50*6.0, cost, 0.001)
}
