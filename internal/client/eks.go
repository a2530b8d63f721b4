package client

import (
	"github.com/aws/aws-sdk-go-v2/service/eks"
)

func NewEKSClient(region, profile string) (*eks.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return eks.NewFromConfig(cfg), nil
}
