package cleanup

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"golang.org/x/time/rate"

	"github.com/awsweep/awsweep/internal/types"
)

// Runner walks the chosen items one at a time and calls their Delete
// closures. Deletions are paced by the limiter so a big sweep does not
// trip service throttling, and a single failure never stops the rest.
type Runner struct {
	out     io.Writer
	limiter *rate.Limiter
}

func NewRunner(out io.Writer, limiter *rate.Limiter) *Runner {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Runner{out: out, limiter: limiter}
}

func (r *Runner) Run(ctx context.Context, items []Item) types.DeletionSummary {
	summary := types.DeletionSummary{}

	for i, item := range items {
		if err := r.limiter.Wait(ctx); err != nil {
			slog.Warn("⚠️ Sweep interrupted", "remaining", len(items)-i, "error", err)
			break
		}

		fmt.Fprintf(r.out, "[%d/%d] Deleting %s (%s)...\n", i+1, len(items), item.Name, item.Region)
		for _, warning := range item.Safety.Warnings {
			fmt.Fprintf(r.out, "      %s\n", color.YellowString(warning))
		}

		if err := item.Delete(ctx); err != nil {
			summary.Failed = append(summary.Failed, item.Name)
			fmt.Fprintf(r.out, "      %s\n", color.RedString("failed: %v", err))
			slog.Error("❌ Failed to delete resource", "name", item.Name, "region", item.Region, "error", err)
			continue
		}

		summary.Deleted = append(summary.Deleted, item.Name)
		summary.MonthlySavings += item.MonthlyCost
		fmt.Fprintf(r.out, "      %s\n", color.GreenString("deleted"))
		slog.Info("✅ Deleted resource", "name", item.Name, "region", item.Region, "monthly_cost", item.MonthlyCost)
	}

	return summary
}
