package volumes

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewVolumesCmd() *cobra.Command {
	volumesCmd := &cobra.Command{
		Use:           "volumes",
		Short:         "Find and delete unattached EBS volumes",
		Long:          "Inventories EBS volumes across regions with their attachment state and cost, and deletes the unattached ones interactively. Attached volumes are never deleted.",
		SilenceErrors: true,
		PreRunE:       preRunVolumes,
		RunE:          runVolumes,
	}

	opts.AddFlags(volumesCmd)

	return volumesCmd
}

func preRunVolumes(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runVolumes(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize volume cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ Volume cleanup failed: %v", err)
	}

	return nil
}
