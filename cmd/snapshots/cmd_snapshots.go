package snapshots

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewSnapshotsCmd() *cobra.Command {
	snapshotsCmd := &cobra.Command{
		Use:           "snapshots",
		Short:         "Find and delete EBS snapshots you own",
		Long:          "Inventories the EBS snapshots owned by the account across regions and deletes the selected ones interactively.",
		SilenceErrors: true,
		PreRunE:       preRunSnapshots,
		RunE:          runSnapshots,
	}

	opts.AddFlags(snapshotsCmd)

	return snapshotsCmd
}

func preRunSnapshots(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize snapshot cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ Snapshot cleanup failed: %v", err)
	}

	return nil
}
