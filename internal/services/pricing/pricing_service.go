package pricing

import (
	"strings"
)

// Monthly estimates are deliberately rough: list-price on-demand rates for the
// common cases, intended to rank resources by cost impact rather than to match
// the bill. Region variation is folded into a single multiplier for the
// noticeably pricier regions.

const hoursPerMonth = 24 * 30

// baseLoadBalancerRates are monthly base rates per load balancer type.
var baseLoadBalancerRates = map[string]float64{
	"application": 22.50,
	"network":     22.50,
	"classic":     18.00,
}

// expensiveRegions carry a 1.2x multiplier on load balancer estimates.
var expensiveRegions = map[string]bool{
	"ap-south-1":     true,
	"ap-southeast-1": true,
	"sa-east-1":      true,
}

// rdsExpensiveRegions carry a 1.2x multiplier on RDS estimates.
var rdsExpensiveRegions = map[string]bool{
	"ap-south-1":     true,
	"ap-southeast-1": true,
	"sa-east-1":      true,
	"eu-central-1":   true,
}

// instanceHourlyRates covers the instance types commonly seen in EKS node
// groups. Anything else falls back to $0.10/hour.
var instanceHourlyRates = map[string]float64{
	"t3.micro":   0.0104,
	"t3.small":   0.0208,
	"t3.medium":  0.0416,
	"t3.large":   0.0832,
	"t3.xlarge":  0.1664,
	"m5.large":   0.096,
	"m5.xlarge":  0.192,
	"m5.2xlarge": 0.384,
	"m5.4xlarge": 0.768,
	"c5.large":   0.085,
	"c5.xlarge":  0.17,
	"r5.large":   0.126,
	"r5.xlarge":  0.252,
}

// rdsInstanceHourlyRates are on-demand single-AZ rates for common classes.
var rdsInstanceHourlyRates = map[string]float64{
	"db.t2.micro":   0.017,
	"db.t2.small":   0.034,
	"db.t2.medium":  0.068,
	"db.t3.micro":   0.017,
	"db.t3.small":   0.034,
	"db.t3.medium":  0.068,
	"db.t3.large":   0.136,
	"db.m5.large":   0.171,
	"db.m5.xlarge":  0.342,
	"db.m5.2xlarge": 0.684,
	"db.r5.large":   0.24,
	"db.r5.xlarge":  0.48,
}

// rdsEngineMultipliers scale the instance rate by engine licensing cost.
var rdsEngineMultipliers = map[string]float64{
	"mysql":             1.0,
	"postgres":          1.0,
	"mariadb":           1.0,
	"oracle-ee":         2.5,
	"oracle-se2":        1.8,
	"sqlserver-ex":      1.0,
	"sqlserver-web":     1.3,
	"sqlserver-se":      2.0,
	"sqlserver-ee":      3.0,
	"aurora-mysql":      1.2,
	"aurora-postgresql": 1.2,
}

// ebsMonthlyRatesPerGB are EBS storage rates by volume type.
var ebsMonthlyRatesPerGB = map[string]float64{
	"gp2": 0.10,
	"gp3": 0.08,
	"io1": 0.125,
	"io2": 0.125,
	"st1": 0.045,
	"sc1": 0.025,
}

const (
	efsStandardRatePerGB          = 0.30
	efsProvisionedRatePerMiBps    = 6.00
	eksControlPlaneHourlyRate     = 0.10
	fargateProfileMonthlyEstimate = 20.0
	kmsKeyMonthlyRate             = 1.0
	lambdaRatePerGBSecond         = 0.0000166667
	lambdaRatePerMillionRequests  = 0.20
	secretBaseMonthlyRate         = 0.40
	secretReplicaMonthlyRate      = 0.05
	s3StandardRatePerGB           = 0.023
)

// Service estimates monthly costs from static rate tables, with optional
// per-entry overrides from the config file.
type Service struct {
	overrides map[string]float64
}

func NewService(overrides map[string]float64) *Service {
	return &Service{overrides: overrides}
}

func (s *Service) rate(key string, fallback float64) float64 {
	if v, ok := s.overrides[key]; ok {
		return v
	}
	return fallback
}

// LoadBalancerMonthly estimates the monthly base cost for a load balancer of
// the given type ("application", "network" or "classic").
func (s *Service) LoadBalancerMonthly(lbType, region string) float64 {
	base, ok := baseLoadBalancerRates[lbType]
	if !ok {
		base = 20.00
	}
	base = s.rate("loadbalancer."+lbType, base)

	if expensiveRegions[region] {
		return base * 1.2
	}
	return base
}

// EFSMonthly estimates monthly storage cost plus any provisioned throughput
// above the free baseline (50 MiB/s per TiB of storage, minimum 1).
func (s *Service) EFSMonthly(sizeBytes int64, throughputMode string, provisionedMiBps float64) float64 {
	sizeGB := float64(sizeBytes) / (1 << 30)
	cost := sizeGB * s.rate("efs.standard_gb", efsStandardRatePerGB)

	if throughputMode == "provisioned" && provisionedMiBps > 0 {
		baseline := sizeGB / 1024 * 50
		if baseline < 1 {
			baseline = 1
		}
		if provisionedMiBps > baseline {
			cost += (provisionedMiBps - baseline) * efsProvisionedRatePerMiBps
		}
	}

	return cost
}

// EKSControlPlaneMonthly is the flat control plane cost, independent of size.
func (s *Service) EKSControlPlaneMonthly() float64 {
	return s.rate("eks.control_plane_hourly", eksControlPlaneHourlyRate) * hoursPerMonth
}

// NodeGroupMonthly estimates a node group from its first instance type and
// desired capacity.
func (s *Service) NodeGroupMonthly(instanceTypes []string, desiredSize int32) float64 {
	instanceType := "m5.large"
	if len(instanceTypes) > 0 {
		instanceType = instanceTypes[0]
	}

	hourly, ok := instanceHourlyRates[instanceType]
	if !ok {
		hourly = 0.10
	}

	return hourly * float64(desiredSize) * hoursPerMonth
}

// FargateProfileMonthly is a conservative flat estimate; actual Fargate cost
// depends on workloads this tool cannot see.
func (s *Service) FargateProfileMonthly() float64 {
	return s.rate("eks.fargate_profile", fargateProfileMonthlyEstimate)
}

// KMSKeyMonthly is the flat customer-managed key rate.
func (s *Service) KMSKeyMonthly() float64 {
	return s.rate("kms.key", kmsKeyMonthlyRate)
}

// LambdaMonthly estimates compute plus request cost from the configured
// memory and timeout, assuming every observed invocation ran to its timeout.
func (s *Service) LambdaMonthly(memoryMB, timeoutSeconds int32, monthlyInvocations float64) float64 {
	gbSecondsPerInvocation := float64(memoryMB) / 1024 * float64(timeoutSeconds)
	computeCost := gbSecondsPerInvocation * monthlyInvocations * lambdaRatePerGBSecond
	requestCost := monthlyInvocations / 1_000_000 * lambdaRatePerMillionRequests

	return computeCost + requestCost
}

// RDSMonthly estimates an RDS instance from its class, engine and region.
func (s *Service) RDSMonthly(instanceClass, engine, region string) float64 {
	hourly, ok := rdsInstanceHourlyRates[instanceClass]
	if !ok {
		hourly = 0.10
	}

	engineMultiplier, ok := rdsEngineMultipliers[strings.ToLower(engine)]
	if !ok {
		engineMultiplier = 1.0
	}

	regionMultiplier := 1.0
	if rdsExpensiveRegions[region] {
		regionMultiplier = 1.2
	}

	return hourly * hoursPerMonth * engineMultiplier * regionMultiplier
}

// SecretMonthly is the per-secret base rate plus the replica surcharge.
func (s *Service) SecretMonthly(replicaCount int) float64 {
	return s.rate("secretsmanager.secret", secretBaseMonthlyRate) + float64(replicaCount)*secretReplicaMonthlyRate
}

// S3Monthly estimates standard-class storage cost for a bucket.
func (s *Service) S3Monthly(sizeBytes int64) float64 {
	sizeGB := float64(sizeBytes) / (1 << 30)
	return sizeGB * s.rate("s3.standard_gb", s3StandardRatePerGB)
}

// EBSVolumeMonthly estimates a volume by type and size.
func (s *Service) EBSVolumeMonthly(volumeType string, sizeGB int32) float64 {
	perGB, ok := ebsMonthlyRatesPerGB[volumeType]
	if !ok {
		perGB = 0.10
	}
	perGB = s.rate("ebs."+volumeType, perGB)

	return perGB * float64(sizeGB)
}
