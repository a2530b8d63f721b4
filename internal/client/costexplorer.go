package client

import (
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
)

func NewCostExplorerClient(region, profile string) (*costexplorer.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return costexplorer.NewFromConfig(cfg), nil
}
