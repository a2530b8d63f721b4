package client

import (
	"github.com/aws/aws-sdk-go-v2/service/efs"
)

func NewEFSClient(region, profile string) (*efs.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return efs.NewFromConfig(cfg), nil
}
