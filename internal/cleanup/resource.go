package cleanup

import (
	"context"
	"sort"

	"github.com/awsweep/awsweep/internal/types"
)

// Item is one deletable resource discovered by a sweep. The owning
// command fills in the cost estimate and safety report during
// enrichment and supplies the Delete closure bound to the right
// regional client.
type Item struct {
	ID          string
	Name        string
	Region      string
	MonthlyCost float64
	Display     string
	Safety      types.SafetyReport
	Delete      func(ctx context.Context) error
}

// Filter is a keyword the selection menu accepts in place of numbers,
// e.g. "unused" to pick every load balancer with no traffic.
type Filter struct {
	Keyword     string
	Description string
	Match       func(item Item) bool
}

// SortByCost orders items most expensive first so the biggest savings
// sit at the top of the menu. Ties fall back to name for stable output.
func SortByCost(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].MonthlyCost != items[j].MonthlyCost {
			return items[i].MonthlyCost > items[j].MonthlyCost
		}
		return items[i].Name < items[j].Name
	})
}

// TotalMonthlyCost sums the cost estimates across all items.
func TotalMonthlyCost(items []Item) float64 {
	var total float64
	for _, item := range items {
		total += item.MonthlyCost
	}
	return total
}
