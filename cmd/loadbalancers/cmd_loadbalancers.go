package loadbalancers

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awsweep/awsweep/internal/cleanup"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts cleanup.SweepOptions

func NewLoadBalancersCmd() *cobra.Command {
	loadBalancersCmd := &cobra.Command{
		Use:           "loadbalancers",
		Short:         "Find and delete unused load balancers",
		Long:          "Inventories ALB, NLB and Classic load balancers across regions, estimates their monthly cost, flags the ones that look in use, and deletes the rest interactively.",
		SilenceErrors: true,
		PreRunE:       preRunLoadBalancers,
		RunE:          runLoadBalancers,
	}

	opts.AddFlags(loadBalancersCmd)

	return loadBalancersCmd
}

func preRunLoadBalancers(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runLoadBalancers(cmd *cobra.Command, args []string) error {
	cleaner, err := NewCleaner(&opts)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize load balancer cleanup: %v", err)
	}

	if err := cleaner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("❌ Load balancer cleanup failed: %v", err)
	}

	return nil
}
