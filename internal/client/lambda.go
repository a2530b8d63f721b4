package client

import (
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

func NewLambdaClient(region, profile string) (*lambda.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return lambda.NewFromConfig(cfg), nil
}
