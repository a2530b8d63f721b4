package client

import (
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

func NewSTSClient(region, profile string) (*sts.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return sts.NewFromConfig(cfg), nil
}
