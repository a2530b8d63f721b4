package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadBalancerMonthly(t *testing.T) {
	svc := NewService(nil)

	tests := []struct {
		name   string
		lbType string
		region string
		want   float64
	}{
		{"application in cheap region", "application", "us-east-1", 22.50},
		{"network in cheap region", "network", "eu-west-1", 22.50},
		{"classic in cheap region", "classic", "us-west-2", 18.00},
		{"application in expensive region", "application", "ap-south-1", 27.00},
		{"classic in expensive region", "classic", "sa-east-1", 21.60},
		{"unknown type falls back", "gateway", "us-east-1", 20.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, svc.LoadBalancerMonthly(tt.lbType, tt.region), 0.001)
		})
	}
}

func TestLoadBalancerMonthlyOverride(t *testing.T) {
	svc := NewService(map[string]float64{"loadbalancer.application": 30.0})

	assert.InDelta(t, 30.0, svc.LoadBalancerMonthly("application", "us-east-1"), 0.001)
	assert.InDelta(t, 36.0, svc.LoadBalancerMonthly("application", "ap-south-1"), 0.001)
	assert.InDelta(t, 18.0, svc.LoadBalancerMonthly("classic", "us-east-1"), 0.001)
}

func TestEFSMonthly(t *testing.T) {
	svc := NewService(nil)

	t.Run("storage only", func(t *testing.T) {
		// 10 GiB at $0.30/GB
		assert.InDelta(t, 3.0, svc.EFSMonthly(10*(1<<30), "bursting", 0), 0.001)
	})

	t.Run("provisioned throughput above baseline", func(t *testing.T) {
		// 10 GiB storage, 11 MiB/s provisioned, baseline floors at 1 MiB/s
		got := svc.EFSMonthly(10*(1<<30), "provisioned", 11)
		assert.InDelta(t, 3.0+10*6.0, got, 0.001)
	})

	t.Run("provisioned throughput below baseline is free", func(t *testing.T) {
		// 4 TiB storage -> baseline 200 MiB/s
		got := svc.EFSMonthly(4096*(1<<30), "provisioned", 100)
		assert.InDelta(t, 4096*0.30, got, 0.001)
	})

	t.Run("empty file system", func(t *testing.T) {
		assert.InDelta(t, 0, svc.EFSMonthly(0, "bursting", 0), 0.001)
	})
}

func TestEKSPricing(t *testing.T) {
	svc := NewService(nil)

	assert.InDelta(t, 72.0, svc.EKSControlPlaneMonthly(), 0.001)
	assert.InDelta(t, 20.0, svc.FargateProfileMonthly(), 0.001)

	t.Run("node group uses first instance type", func(t *testing.T) {
		got := svc.NodeGroupMonthly([]string{"t3.medium", "t3.large"}, 3)
		assert.InDelta(t, 0.0416*3*720, got, 0.001)
	})

	t.Run("unknown instance type falls back", func(t *testing.T) {
		got := svc.NodeGroupMonthly([]string{"z9.mega"}, 2)
		assert.InDelta(t, 0.10*2*720, got, 0.001)
	})

	t.Run("no instance types defaults to m5.large", func(t *testing.T) {
		got := svc.NodeGroupMonthly(nil, 1)
		assert.InDelta(t, 0.096*720, got, 0.001)
	})
}

func TestLambdaMonthly(t *testing.T) {
	svc := NewService(nil)

	t.Run("idle function costs nothing", func(t *testing.T) {
		assert.InDelta(t, 0, svc.LambdaMonthly(128, 3, 0), 0.000001)
	})

	t.Run("compute plus requests", func(t *testing.T) {
		// 1024 MB x 10s = 10 GB-seconds per invocation, 1M invocations
		got := svc.LambdaMonthly(1024, 10, 1_000_000)
		assert.InDelta(t, 10*1_000_000*0.0000166667+0.20, got, 0.01)
	})
}

func TestRDSMonthly(t *testing.T) {
	svc := NewService(nil)

	tests := []struct {
		name          string
		instanceClass string
		engine        string
		region        string
		want          float64
	}{
		{"t3.micro mysql", "db.t3.micro", "mysql", "us-east-1", 0.017 * 720},
		{"oracle enterprise multiplier", "db.m5.large", "oracle-ee", "us-east-1", 0.171 * 720 * 2.5},
		{"aurora multiplier", "db.t3.medium", "aurora-postgresql", "us-west-2", 0.068 * 720 * 1.2},
		{"expensive region", "db.t3.micro", "postgres", "eu-central-1", 0.017 * 720 * 1.2},
		{"unknown class falls back", "db.x2.colossal", "mysql", "us-east-1", 0.10 * 720},
		{"unknown engine multiplier is 1", "db.t3.micro", "clickhouse", "us-east-1", 0.017 * 720},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, svc.RDSMonthly(tt.instanceClass, tt.engine, tt.region), 0.001)
		})
	}
}

func TestSecretMonthly(t *testing.T) {
	svc := NewService(nil)

	assert.InDelta(t, 0.40, svc.SecretMonthly(0), 0.001)
	assert.InDelta(t, 0.55, svc.SecretMonthly(3), 0.001)
}

func TestS3Monthly(t *testing.T) {
	svc := NewService(nil)

	assert.InDelta(t, 0, svc.S3Monthly(0), 0.001)
	assert.InDelta(t, 2.3, svc.S3Monthly(100*(1<<30)), 0.001)
}

func TestEBSVolumeMonthly(t *testing.T) {
	svc := NewService(nil)

	tests := []struct {
		volumeType string
		sizeGB     int32
		want       float64
	}{
		{"gp2", 100, 10.0},
		{"gp3", 100, 8.0},
		{"io1", 100, 12.5},
		{"io2", 10, 1.25},
		{"st1", 500, 22.5},
		{"sc1", 500, 12.5},
		{"standard", 100, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.volumeType, func(t *testing.T) {
			assert.InDelta(t, tt.want, svc.EBSVolumeMonthly(tt.volumeType, tt.sizeGB), 0.001)
		})
	}
}
