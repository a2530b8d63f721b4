package client

import (
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
)

func NewCloudTrailClient(region, profile string) (*cloudtrail.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return cloudtrail.NewFromConfig(cfg), nil
}
