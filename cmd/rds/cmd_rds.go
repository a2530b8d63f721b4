package rds

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

var skipFinalSnapshot bool

func NewRDSCmd() *cobra.Command {
	rdsCmd := &cobra.Command{
		Use:           "rds",
		Short:         "Find and delete idle RDS instances",
		Long:          "Inventories RDS database instances across regions with their connection and CPU history, and deletes the idle ones interactively. A final snapshot is taken unless you skip it.",
		SilenceErrors: true,
		PreRunE:       preRunRDS,
		RunE:          runRDS,
	}

	opts.AddFlags(rdsCmd)

	rdsFlags := pflag.NewFlagSet("rds", pflag.ExitOnError)
	rdsFlags.SortFlags = false
	rdsFlags.BoolVar(&skipFinalSnapshot, "skip-final-snapshot", false, "delete without taking a final snapshot")
	rdsCmd.Flags().AddFlagSet(rdsFlags)

	return rdsCmd
}

func preRunRDS(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runRDS(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts, skipFinalSnapshot)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize RDS cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ RDS cleanup failed: %v", err)
	}

	return nil
}
