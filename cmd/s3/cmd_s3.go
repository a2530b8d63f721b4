package s3

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewS3Cmd() *cobra.Command {
	s3Cmd := &cobra.Command{
		Use:           "s3",
		Short:         "Find and delete unused S3 buckets",
		Long:          "Inventories every S3 bucket in the account with its size, object count and access posture, and deletes the selected ones interactively. Buckets are emptied first, including all object versions.",
		SilenceErrors: true,
		PreRunE:       preRunS3,
		RunE:          runS3,
	}

	opts.AddFlags(s3Cmd)

	return s3Cmd
}

func preRunS3(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runS3(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize S3 cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ S3 cleanup failed: %v", err)
	}

	return nil
}
