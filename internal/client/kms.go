package client

import (
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

func NewKMSClient(region, profile string) (*kms.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return kms.NewFromConfig(cfg), nil
}
