package client

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func NewS3Client(region, profile string) (*s3.Client, error) {
	cfg, err := loadAWSConfig(region, profile)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg), nil
}
