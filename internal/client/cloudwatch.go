package client

import (
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

func NewCloudWatchClient(region, profile string) (*cloudwatch.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return cloudwatch.NewFromConfig(cfg), nil
}
