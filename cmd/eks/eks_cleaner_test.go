package eks

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudtrailtypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/services/pricing"
)

type mockEKSClient struct {
	ListClustersFunc         func(ctx context.Context, params *awseks.ListClustersInput, optFns ...func(*awseks.Options)) (*awseks.ListClustersOutput, error)
	DescribeClusterFunc      func(ctx context.Context, params *awseks.DescribeClusterInput, optFns ...func(*awseks.Options)) (*awseks.DescribeClusterOutput, error)
	ListNodegroupsFunc       func(ctx context.Context, params *awseks.ListNodegroupsInput, optFns ...func(*awseks.Options)) (*awseks.ListNodegroupsOutput, error)
	DescribeNodegroupFunc    func(ctx context.Context, params *awseks.DescribeNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DescribeNodegroupOutput, error)
	ListFargateProfilesFunc  func(ctx context.Context, params *awseks.ListFargateProfilesInput, optFns ...func(*awseks.Options)) (*awseks.ListFargateProfilesOutput, error)
	ListAddonsFunc           func(ctx context.Context, params *awseks.ListAddonsInput, optFns ...func(*awseks.Options)) (*awseks.ListAddonsOutput, error)
	DeleteNodegroupFunc      func(ctx context.Context, params *awseks.DeleteNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DeleteNodegroupOutput, error)
	DeleteFargateProfileFunc func(ctx context.Context, params *awseks.DeleteFargateProfileInput, optFns ...func(*awseks.Options)) (*awseks.DeleteFargateProfileOutput, error)
	DeleteAddonFunc          func(ctx context.Context, params *awseks.DeleteAddonInput, optFns ...func(*awseks.Options)) (*awseks.DeleteAddonOutput, error)
	DeleteClusterFunc        func(ctx context.Context, params *awseks.DeleteClusterInput, optFns ...func(*awseks.Options)) (*awseks.DeleteClusterOutput, error)
}

func (m *mockEKSClient) ListClusters(ctx context.Context, params *awseks.ListClustersInput, optFns ...func(*awseks.Options)) (*awseks.ListClustersOutput, error) {
	return m.ListClustersFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) DescribeCluster(ctx context.Context, params *awseks.DescribeClusterInput, optFns ...func(*awseks.Options)) (*awseks.DescribeClusterOutput, error) {
	return m.DescribeClusterFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) ListNodegroups(ctx context.Context, params *awseks.ListNodegroupsInput, optFns ...func(*awseks.Options)) (*awseks.ListNodegroupsOutput, error) {
	return m.ListNodegroupsFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) DescribeNodegroup(ctx context.Context, params *awseks.DescribeNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DescribeNodegroupOutput, error) {
	return m.DescribeNodegroupFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) ListFargateProfiles(ctx context.Context, params *awseks.ListFargateProfilesInput, optFns ...func(*awseks.Options)) (*awseks.ListFargateProfilesOutput, error) {
	return m.ListFargateProfilesFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) ListAddons(ctx context.Context, params *awseks.ListAddonsInput, optFns ...func(*awseks.Options)) (*awseks.ListAddonsOutput, error) {
	return m.ListAddonsFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) DeleteNodegroup(ctx context.Context, params *awseks.DeleteNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DeleteNodegroupOutput, error) {
	return m.DeleteNodegroupFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) DeleteFargateProfile(ctx context.Context, params *awseks.DeleteFargateProfileInput, optFns ...func(*awseks.Options)) (*awseks.DeleteFargateProfileOutput, error) {
	return m.DeleteFargateProfileFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) DeleteAddon(ctx context.Context, params *awseks.DeleteAddonInput, optFns ...func(*awseks.Options)) (*awseks.DeleteAddonOutput, error) {
	return m.DeleteAddonFunc(ctx, params, optFns...)
}
func (m *mockEKSClient) DeleteCluster(ctx context.Context, params *awseks.DeleteClusterInput, optFns ...func(*awseks.Options)) (*awseks.DeleteClusterOutput, error) {
	return m.DeleteClusterFunc(ctx, params, optFns...)
}

type mockCloudTrailClient struct {
	LookupEventsFunc func(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

func (m *mockCloudTrailClient) LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error) {
	return m.LookupEventsFunc(ctx, params, optFns...)
}

func testCleaner(api EKSAPI) *Cleaner {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return &Cleaner{
		opts:   &cleanup.SweepOptions{},
		pricer: pricing.NewService(nil),
		newEKS: func(region string) (EKSAPI, error) { return api, nil },
		now:    func() time.Time { return now },
		poll:   time.Millisecond,
	}
}

func TestSafetyReport(t *testing.T) {
	cleaner := testCleaner(nil)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		cl               cluster
		expectedWarnings []string
	}{
		{
			name:             "bare deleting cluster is safe",
			cl:               cluster{Name: "scratch", Status: "DELETING", CreatedAt: old},
			expectedWarnings: nil,
		},
		{
			name:             "only the first name pattern warns",
			cl:               cluster{Name: "prod-main", Status: "DELETING", CreatedAt: old},
			expectedWarnings: []string{"name contains 'prod'"},
		},
		{
			name: "compute and activity",
			cl: cluster{
				Name:   "scratch",
				Status: "ACTIVE",
				NodeGroups: []nodeGroup{
					{Name: "workers", DesiredSize: 3},
					{Name: "spot", DesiredSize: 2},
				},
				FargateProfiles: []string{"fp-1"},
				Addons:          []string{"vpc-cni", "coredns", "kube-proxy", "ebs-csi"},
				RecentEvents:    12,
				CreatedAt:       old,
			},
			expectedWarnings: []string{
				"has 2 node groups (5 nodes)",
				"has 1 Fargate profiles",
				"has 4 addons (vpc-cni, coredns, kube-proxy)",
				"12 API events in the last 7 days",
				"status is ACTIVE",
			},
		},
		{
			name: "hardened cluster",
			cl: cluster{
				Name:            "scratch",
				Status:          "DELETING",
				PrivateEndpoint: true,
				Encrypted:       true,
				CreatedAt:       time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC),
			},
			expectedWarnings: []string{
				"private endpoint access enabled",
				"has encryption config",
				"created only 2 days ago",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := cleaner.safetyReport(tt.cl)
			assert.Equal(t, tt.expectedWarnings, report.Warnings)
		})
	}
}

func TestRecentActivityCountsLifecycleEvents(t *testing.T) {
	trail := &mockCloudTrailClient{
		LookupEventsFunc: func(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error) {
			assert.Equal(t, int32(20), *params.MaxResults)
			return &cloudtrail.LookupEventsOutput{
				Events: []cloudtrailtypes.Event{
					{EventName: aws.String("DescribeCluster")},
					{EventName: aws.String("UpdateClusterConfig")},
					{EventName: aws.String("AssumeRole")},
					{EventName: aws.String("CreateNodegroup")},
				},
			}, nil
		},
	}

	cleaner := testCleaner(nil)
	assert.Equal(t, 3, cleaner.recentActivity(context.Background(), trail, "scratch"))
}

func TestRecentActivityErrorsMeanZero(t *testing.T) {
	trail := &mockCloudTrailClient{
		LookupEventsFunc: func(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error) {
			return nil, assert.AnError
		},
	}

	cleaner := testCleaner(nil)
	assert.Equal(t, 0, cleaner.recentActivity(context.Background(), trail, "scratch"))
}

func TestClusterPricing(t *testing.T) {
	pricer := pricing.NewService(nil)

	// Control plane only.
	assert.InDelta(t, 72.0, pricer.EKSControlPlaneMonthly(), 0.001)

	// Node group priced off the first instance type.
	cost := pricer.NodeGroupMonthly([]string{"t3.medium", "t3.large"}, 3)
	assert.InDelta(t, 0.0416*3*720, cost, 0.001)

	assert.InDelta(t, 20.0, pricer.FargateProfileMonthly(), 0.001)
}

func TestDeleteOrdering(t *testing.T) {
	var calls []string
	nodeGroupPolls := 0
	fargatePolls := 0

	api := &mockEKSClient{
		DeleteNodegroupFunc: func(ctx context.Context, params *awseks.DeleteNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DeleteNodegroupOutput, error) {
			calls = append(calls, "node group "+aws.ToString(params.NodegroupName))
			return &awseks.DeleteNodegroupOutput{}, nil
		},
		ListNodegroupsFunc: func(ctx context.Context, params *awseks.ListNodegroupsInput, optFns ...func(*awseks.Options)) (*awseks.ListNodegroupsOutput, error) {
			nodeGroupPolls++
			if nodeGroupPolls == 1 {
				return &awseks.ListNodegroupsOutput{Nodegroups: []string{"workers"}}, nil
			}
			return &awseks.ListNodegroupsOutput{}, nil
		},
		DeleteFargateProfileFunc: func(ctx context.Context, params *awseks.DeleteFargateProfileInput, optFns ...func(*awseks.Options)) (*awseks.DeleteFargateProfileOutput, error) {
			calls = append(calls, "fargate "+aws.ToString(params.FargateProfileName))
			return &awseks.DeleteFargateProfileOutput{}, nil
		},
		ListFargateProfilesFunc: func(ctx context.Context, params *awseks.ListFargateProfilesInput, optFns ...func(*awseks.Options)) (*awseks.ListFargateProfilesOutput, error) {
			fargatePolls++
			return &awseks.ListFargateProfilesOutput{}, nil
		},
		DeleteAddonFunc: func(ctx context.Context, params *awseks.DeleteAddonInput, optFns ...func(*awseks.Options)) (*awseks.DeleteAddonOutput, error) {
			calls = append(calls, "addon "+aws.ToString(params.AddonName))
			return &awseks.DeleteAddonOutput{}, nil
		},
		DeleteClusterFunc: func(ctx context.Context, params *awseks.DeleteClusterInput, optFns ...func(*awseks.Options)) (*awseks.DeleteClusterOutput, error) {
			calls = append(calls, "cluster "+aws.ToString(params.Name))
			return &awseks.DeleteClusterOutput{}, nil
		},
	}

	cleaner := testCleaner(api)
	deleteFn := cleaner.deleteFunc(cluster{
		Name:            "scratch",
		Region:          "us-east-1",
		NodeGroups:      []nodeGroup{{Name: "workers"}},
		FargateProfiles: []string{"fp-1"},
		Addons:          []string{"vpc-cni"},
	})

	require.NoError(t, deleteFn(context.Background()))
	assert.Equal(t, []string{
		"node group workers",
		"fargate fp-1",
		"addon vpc-cni",
		"cluster scratch",
	}, calls)
	assert.GreaterOrEqual(t, nodeGroupPolls, 2)
	assert.GreaterOrEqual(t, fargatePolls, 1)
}

func TestBuildSelectionFilters(t *testing.T) {
	cleaner := testCleaner(nil)
	clusters := []cluster{
		{Name: "idle", Region: "us-east-1", Status: "ACTIVE"},
		{Name: "busy", Region: "us-east-1", Status: "ACTIVE", RecentEvents: 5, NodeGroups: []nodeGroup{{Name: "ng", DesiredSize: 1}}},
	}
	for i := range clusters {
		clusters[i].Safety = cleaner.safetyReport(clusters[i])
	}

	items, filters := cleaner.buildSelection(clusters)
	byKeyword := map[string]cleanup.Filter{}
	for _, f := range filters {
		byKeyword[f.Keyword] = f
	}

	assert.True(t, byKeyword["inactive"].Match(items[0]))
	assert.False(t, byKeyword["inactive"].Match(items[1]))
	assert.True(t, byKeyword["empty"].Match(items[0]))
	assert.False(t, byKeyword["empty"].Match(items[1]))
	// Both are ACTIVE so neither is "safe".
	assert.False(t, byKeyword["safe"].Match(items[0]))
}
