package secrets

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

var forceImmediate bool

func NewSecretsCmd() *cobra.Command {
	secretsCmd := &cobra.Command{
		Use:           "secrets",
		Short:         "Find and delete unused Secrets Manager secrets",
		Long:          "Inventories Secrets Manager secrets across regions with their rotation, replication and last-accessed details, and deletes the stale ones interactively. Secrets get a recovery window unless you force immediate deletion.",
		SilenceErrors: true,
		PreRunE:       preRunSecrets,
		RunE:          runSecrets,
	}

	opts.AddFlags(secretsCmd)

	secretsFlags := pflag.NewFlagSet("secrets", pflag.ExitOnError)
	secretsFlags.SortFlags = false
	secretsFlags.BoolVar(&forceImmediate, "force-immediate", false, "delete without a recovery window (unrecoverable)")
	secretsCmd.Flags().AddFlagSet(secretsFlags)

	return secretsCmd
}

func preRunSecrets(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runSecrets(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts, forceImmediate)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize secrets cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ Secrets cleanup failed: %v", err)
	}

	return nil
}
