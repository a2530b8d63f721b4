package efs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewEFSCmd() *cobra.Command {
	efsCmd := &cobra.Command{
		Use:           "efs",
		Short:         "Find and delete unused EFS file systems",
		Long:          "Inventories EFS file systems across regions with their mount targets, access points and recent IO, estimates storage cost, and deletes the unused ones interactively.",
		SilenceErrors: true,
		PreRunE:       preRunEFS,
		RunE:          runEFS,
	}

	opts.AddFlags(efsCmd)

	return efsCmd
}

func preRunEFS(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runEFS(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize EFS cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ EFS cleanup failed: %v", err)
	}

	return nil
}
