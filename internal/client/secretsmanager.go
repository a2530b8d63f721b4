package client

import (
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

func NewSecretsManagerClient(region, profile string) (*secretsmanager.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return secretsmanager.NewFromConfig(cfg), nil
}
