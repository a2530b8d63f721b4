package cleanup

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/config"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/services/pricing"
)

// SweepOptions are the flags shared by every cleanup command.
type SweepOptions struct {
	Profile    string
	Regions    []string
	DryRun     bool
	Yes        bool
	TUI        bool
	Report     string
	ConfigFile string
}

// AddFlags registers the common flag set on a cleanup command.
func (o *SweepOptions) AddFlags(cmd *cobra.Command) {
	optionalFlags := pflag.NewFlagSet("optional", pflag.ExitOnError)
	optionalFlags.SortFlags = false
	optionalFlags.StringVar(&o.Profile, "profile", "", "AWS profile to use")
	optionalFlags.StringSliceVar(&o.Regions, "regions", nil, "regions to scan (comma separated)")
	optionalFlags.BoolVar(&o.DryRun, "dry-run", false, "show what would be deleted without deleting anything")
	optionalFlags.BoolVar(&o.Yes, "yes", false, "skip all confirmations (non-interactive)")
	optionalFlags.BoolVar(&o.TUI, "tui", false, "use the full-screen picker instead of the keyword prompt")
	optionalFlags.StringVar(&o.Report, "report", "", "write the inventory as markdown to this file")
	optionalFlags.StringVar(&o.ConfigFile, "config", "", "YAML config file (profile, regions, price overrides)")
	cmd.Flags().AddFlagSet(optionalFlags)
}

// Resolve merges flags with the optional config file: flags win, then
// config values, then the built-in defaults.
func (o *SweepOptions) Resolve() (profile string, regions []string, pricer *pricing.Service, err error) {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return "", nil, nil, err
	}
	return cfg.ResolveProfile(o.Profile), cfg.ResolveRegions(o.Regions), pricing.NewService(cfg.PriceOverrides), nil
}

// NewFlow builds the interactive pipeline wired to the terminal.
func (o *SweepOptions) NewFlow(kind string, items []Item, filters []Filter, limiter *rate.Limiter) *Flow {
	return &Flow{
		Kind:     kind,
		Items:    items,
		Filters:  filters,
		Prompter: NewPrompter(os.Stdin, os.Stdout, o.Yes),
		Out:      os.Stdout,
		UseTUI:   o.TUI,
		DryRun:   o.DryRun,
		Limiter:  limiter,
	}
}

// MaybeWriteReport saves the inventory report when --report was given.
func (o *SweepOptions) MaybeWriteReport(report *markdown.Report) error {
	if o.Report == "" {
		return nil
	}
	if err := report.SaveToFile(o.Report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
