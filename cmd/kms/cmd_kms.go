package kms

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewKMSCmd() *cobra.Command {
	kmsCmd := &cobra.Command{
		Use:           "kms",
		Short:         "Find and schedule deletion of unused KMS keys",
		Long:          "Inventories customer-managed KMS keys across regions with their aliases, grants and recent usage, and schedules the unused ones for deletion interactively.",
		SilenceErrors: true,
		PreRunE:       preRunKMS,
		RunE:          runKMS,
	}

	opts.AddFlags(kmsCmd)

	return kmsCmd
}

func preRunKMS(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runKMS(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize KMS cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ KMS cleanup failed: %v", err)
	}

	return nil
}
