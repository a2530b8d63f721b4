package eks

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewEKSCmd() *cobra.Command {
	eksCmd := &cobra.Command{
		Use:           "eks",
		Short:         "Find and delete unused EKS clusters",
		Long:          "Inventories EKS clusters across regions with their node groups, Fargate profiles and recent API activity, estimates monthly cost, and deletes the unused ones interactively.",
		SilenceErrors: true,
		PreRunE:       preRunEKS,
		RunE:          runEKS,
	}

	opts.AddFlags(eksCmd)

	return eksCmd
}

func preRunEKS(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runEKS(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize EKS cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ EKS cleanup failed: %v", err)
	}

	return nil
}
