package costs

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/awsweep/awsweep/internal/client"
	"github.com/awsweep/awsweep/internal/config"
	"github.com/awsweep/awsweep/internal/services/cost"
	"github.com/awsweep/awsweep/internal/services/markdown"
	"github.com/awsweep/awsweep/internal/utils"
)

var opts struct {
	Profile    string
	Report     string
	ConfigFile string
}

func NewCostsCmd() *cobra.Command {
	costsCmd := &cobra.Command{
		Use:           "costs",
		Short:         "Show month-to-date spend for the services this tool manages",
		Long:          "Queries Cost Explorer for the month-to-date unblended spend, filtered to the service families the cleanup commands cover, grouped by service.",
		SilenceErrors: true,
		PreRunE:       preRunCosts,
		RunE:          runCosts,
	}

	optionalFlags := pflag.NewFlagSet("optional", pflag.ExitOnError)
	optionalFlags.SortFlags = false
	optionalFlags.StringVar(&opts.Profile, "profile", "", "AWS profile to use")
	optionalFlags.StringVar(&opts.Report, "report", "", "write the cost breakdown as markdown to this file")
	optionalFlags.StringVar(&opts.ConfigFile, "config", "", "YAML config file (profile, regions, price overrides)")
	costsCmd.Flags().AddFlagSet(optionalFlags)

	return costsCmd
}

func preRunCosts(cmd *cobra.Command, args []string) error {
	return utils.BindEnvToFlags(cmd)
}

func runCosts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("❌ Failed to load config: %v", err)
	}
	profile := cfg.ResolveProfile(opts.Profile)

	// Cost Explorer only answers in us-east-1.
	ce, err := client.NewCostExplorerClient("us-east-1", profile)
	if err != nil {
		return fmt.Errorf("❌ Failed to initialize Cost Explorer client: %v", err)
	}

	spend, err := cost.NewCostService(ce).MonthToDateSpend(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("❌ Failed to get costs: %v", err)
	}

	report := buildReport(spend, time.Now())
	if err := report.RenderToTerminal(); err != nil {
		return fmt.Errorf("❌ Failed to render cost report: %v", err)
	}
	if opts.Report != "" {
		if err := report.SaveToFile(opts.Report); err != nil {
			return fmt.Errorf("❌ Failed to write cost report: %v", err)
		}
	}

	return nil
}

func buildReport(spend []cost.ServiceSpend, now time.Time) *markdown.Report {
	report := markdown.New()
	report.Heading(1, fmt.Sprintf("Month-to-date spend (%s)", now.Format("January 2006")))

	total := 0.0
	rows := make([][]string, 0, len(spend))
	for _, s := range spend {
		total += s.Amount
		rows = append(rows, []string{s.Service, utils.FormatMoney(s.Amount)})
	}

	if len(rows) == 0 {
		report.Paragraph("No spend recorded this month for the managed services.")
		return report
	}

	report.Table([]string{"Service", "Spend"}, rows)
	report.Paragraph(fmt.Sprintf("Total: %s", utils.FormatMoney(total)))
	return report
}
