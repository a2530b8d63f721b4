package update

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	force     bool
	checkOnly bool
)

func NewUpdateCmd() *cobra.Command {
	updateCmd := &cobra.Command{
		Use:           "update",
		Short:         "Update the awsweep binary to the latest version",
		Long:          "Updates the awsweep binary to the latest version by downloading the latest release from GitHub and installing it in place.",
		SilenceErrors: true,
		RunE:          runUpdate,
	}

	optionalFlags := pflag.NewFlagSet("optional", pflag.ExitOnError)
	optionalFlags.SortFlags = false
	optionalFlags.BoolVar(&force, "force", false, "force update without user confirmation")
	optionalFlags.BoolVar(&checkOnly, "check-only", false, "only check for updates, don't install")
	updateCmd.Flags().AddFlagSet(optionalFlags)

	return updateCmd
}

func runUpdate(cmd *cobra.Command, args []string) error {
	updater := NewUpdater(UpdaterOpts{
		Force:     force,
		CheckOnly: checkOnly,
	})
	if err := updater.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ Update failed: %v", err)
	}

	return nil
}
