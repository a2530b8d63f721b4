package client

import (
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
)

// NewELBv2Client returns a client for Application and Network Load Balancers.
func NewELBv2Client(region, profile string) (*elbv2.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return elbv2.NewFromConfig(cfg), nil
}

// NewELBClient returns a client for Classic Load Balancers.
func NewELBClient(region, profile string) (*elb.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return elb.NewFromConfig(cfg), nil
}
