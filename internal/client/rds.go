package client

import (
	"github.com/aws/aws-sdk-go-v2/service/rds"
)

func NewRDSClient(region, profile string) (*rds.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return rds.NewFromConfig(cfg), nil
}
