package types

import (
	"time"
)

// CallerIdentity is the STS identity the tool is running as.
type CallerIdentity struct {
	Account string `json:"account"`
	Arn     string `json:"arn"`
	UserID  string `json:"user_id"`
}

// CloudWatchTimeWindow describes the window and period for a metric query.
type CloudWatchTimeWindow struct {
	StartTime time.Time
	EndTime   time.Time
	Period    int32
}

// SafetyReport is the outcome of the heuristic safety checks for one resource.
// A resource with at least one warning is considered risky to delete.
type SafetyReport struct {
	Warnings         []string `json:"warnings"`
	DaysSinceCreated int      `json:"days_since_created"`
}

func (s SafetyReport) IsRisky() bool {
	return len(s.Warnings) > 0
}

// DeletionSummary accumulates the outcome of a deletion run.
type DeletionSummary struct {
	Deleted        []string `json:"deleted"`
	Failed         []string `json:"failed"`
	MonthlySavings float64  `json:"monthly_savings"`
}

func (d DeletionSummary) AnnualSavings() float64 {
	return d.MonthlySavings * 12
}

