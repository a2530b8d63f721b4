package cleanup

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsweep/awsweep/internal/types"
)

type mockSTSClient struct {
	GetCallerIdentityFunc func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func (m *mockSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return m.GetCallerIdentityFunc(ctx, params, optFns...)
}

func TestCallerIdentity(t *testing.T) {
	client := &mockSTSClient{
		GetCallerIdentityFunc: func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
			return &sts.GetCallerIdentityOutput{
				Account: aws.String("123456789012"),
				Arn:     aws.String("arn:aws:iam::123456789012:user/ops"),
				UserId:  aws.String("AIDEXAMPLE"),
			}, nil
		},
	}

	identity, err := CallerIdentity(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, types.CallerIdentity{
		Account: "123456789012",
		Arn:     "arn:aws:iam::123456789012:user/ops",
		UserID:  "AIDEXAMPLE",
	}, identity)
}

func TestCallerIdentityError(t *testing.T) {
	client := &mockSTSClient{
		GetCallerIdentityFunc: func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
			return nil, errors.New("expired token")
		},
	}

	_, err := CallerIdentity(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to resolve caller identity")
}

func TestProbeRegions(t *testing.T) {
	tests := []struct {
		name          string
		regions       []string
		failing       map[string]bool
		want          []string
		expectedError bool
	}{
		{
			name:    "all regions reachable",
			regions: []string{"us-east-1", "eu-west-1"},
			want:    []string{"us-east-1", "eu-west-1"},
		},
		{
			name:    "unreachable regions skipped",
			regions: []string{"us-east-1", "ap-south-1", "eu-west-1"},
			failing: map[string]bool{"ap-south-1": true},
			want:    []string{"us-east-1", "eu-west-1"},
		},
		{
			name:          "no reachable regions is an error",
			regions:       []string{"us-east-1"},
			failing:       map[string]bool{"us-east-1": true},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := func(ctx context.Context, region string) error {
				if tt.failing[region] {
					return errors.New("not authorized")
				}
				return nil
			}

			got, err := ProbeRegions(context.Background(), tt.regions, probe)
			if tt.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortByCost(t *testing.T) {
	items := []Item{
		{Name: "b", MonthlyCost: 5},
		{Name: "a", MonthlyCost: 5},
		{Name: "c", MonthlyCost: 50},
	}

	SortByCost(items)

	assert.Equal(t, "c", items[0].Name)
	assert.Equal(t, "a", items[1].Name)
	assert.Equal(t, "b", items[2].Name)
	assert.Equal(t, 60.0, TotalMonthlyCost(items))
}
