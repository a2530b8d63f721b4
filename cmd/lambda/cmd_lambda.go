package lambda

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewLambdaCmd() *cobra.Command {
	lambdaCmd := &cobra.Command{
		Use:           "lambda",
		Short:         "Find and delete unused Lambda functions",
		Long:          "Inventories Lambda functions across regions with their invocation counts and event sources, estimates monthly cost, and deletes the unused ones interactively.",
		SilenceErrors: true,
		PreRunE:       preRunLambda,
		RunE:          runLambda,
	}

	opts.AddFlags(lambdaCmd)

	return lambdaCmd
}

func preRunLambda(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runLambda(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize Lambda cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ Lambda cleanup failed: %v", err)
	}

	return nil
}
