package client

import (
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

func NewEC2Client(region, profile string) (*ec2.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return ec2.NewFromConfig(cfg), nil
}
