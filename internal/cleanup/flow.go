package cleanup

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/types"
	"github.com/awsweep/awsweep/internal/utils"
)

// Flow drives one sweep end to end: summary, selection, confirmation,
// deletion. Every cleanup command builds its items and filters, then
// hands off here so the destructive path is identical everywhere.
type Flow struct {
	Kind     string
	Items    []Item
	Filters  []Filter
	Prompter *Prompter
	Out      io.Writer
	UseTUI   bool
	DryRun   bool
	Limiter  *rate.Limiter
}

// Run executes the sweep. Nothing is deleted without two separate
// confirmations unless the prompter auto-approves, and dry-run stops
// just before the destructive step regardless of confirmations.
func (f *Flow) Run(ctx context.Context) (types.DeletionSummary, error) {
	if len(f.Items) == 0 {
		fmt.Fprintf(f.Out, "No %s found. Nothing to clean up.\n", f.Kind)
		return types.DeletionSummary{}, nil
	}

	SortByCost(f.Items)

	total := TotalMonthlyCost(f.Items)
	fmt.Fprintf(f.Out, "\nFound %d %s, estimated %s/month (%s/year).\n\n",
		len(f.Items), f.Kind,
		color.CyanString(utils.FormatMoney(total)),
		color.CyanString(utils.FormatMoney(total*12)))

	indices, err := f.pick()
	if err != nil {
		return types.DeletionSummary{}, err
	}
	if len(indices) == 0 {
		fmt.Fprintln(f.Out, "Nothing selected, leaving everything in place.")
		return types.DeletionSummary{}, nil
	}

	chosen := make([]Item, 0, len(indices))
	for _, i := range indices {
		chosen = append(chosen, f.Items[i])
	}
	savings := TotalMonthlyCost(chosen)

	fmt.Fprintf(f.Out, "\nSelected %d %s worth %s/month.\n", len(chosen), f.Kind, utils.FormatMoney(savings))
	risky := 0
	for _, item := range chosen {
		if item.Safety.IsRisky() {
			risky++
		}
	}
	if risky > 0 {
		fmt.Fprintln(f.Out, color.YellowString("⚠️ %d of the selected %s carry safety warnings.", risky, f.Kind))
	}

	// Dry-run walks the same confirmations so the rehearsal reads like
	// the real thing, it just stops before the destructive step.
	prefix := ""
	if f.DryRun {
		prefix = "[DRY RUN] "
	}

	ok, err := f.Prompter.Confirm(fmt.Sprintf("%sDelete %d %s?", prefix, len(chosen), f.Kind))
	if err != nil {
		return types.DeletionSummary{}, err
	}
	if !ok {
		fmt.Fprintln(f.Out, "Aborted.")
		return types.DeletionSummary{}, nil
	}

	ok, err = f.Prompter.Confirm(color.RedString("%sThis cannot be undone. Really delete?", prefix))
	if err != nil {
		return types.DeletionSummary{}, err
	}
	if !ok {
		fmt.Fprintln(f.Out, "Aborted.")
		return types.DeletionSummary{}, nil
	}

	if f.DryRun {
		fmt.Fprintf(f.Out, "\nDry run, would delete:\n")
		for _, item := range chosen {
			fmt.Fprintf(f.Out, "  - %s (%s, %s/month)\n", item.Name, item.Region, utils.FormatMoney(item.MonthlyCost))
		}
		return types.DeletionSummary{}, nil
	}

	runner := NewRunner(f.Out, f.Limiter)
	summary := runner.Run(ctx, chosen)

	fmt.Fprintf(f.Out, "\nDeleted %d, failed %d. Estimated savings %s/month (%s/year).\n",
		len(summary.Deleted), len(summary.Failed),
		color.GreenString(utils.FormatMoney(summary.MonthlySavings)),
		color.GreenString(utils.FormatMoney(summary.AnnualSavings())))

	return summary, nil
}

func (f *Flow) pick() ([]int, error) {
	if f.UseTUI && !f.Prompter.AutoApprove {
		return PickWithTUI(f.Kind, f.Items)
	}
	return NewMenu(f.Prompter, f.Filters).Select(f.Items)
}
