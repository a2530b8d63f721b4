package cleanup

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/awsweep/awsweep/internal/types"
)

func TestRunnerRunsAllItemsDespiteFailures(t *testing.T) {
	var out bytes.Buffer
	var order []string

	items := []Item{
		{Name: "vol-1", Region: "us-east-1", MonthlyCost: 10, Delete: func(ctx context.Context) error {
			order = append(order, "vol-1")
			return nil
		}},
		{Name: "vol-2", Region: "us-east-1", MonthlyCost: 5, Delete: func(ctx context.Context) error {
			order = append(order, "vol-2")
			return errors.New("still attached")
		}},
		{Name: "vol-3", Region: "eu-west-1", MonthlyCost: 2.5, Delete: func(ctx context.Context) error {
			order = append(order, "vol-3")
			return nil
		}},
	}

	summary := NewRunner(&out, nil).Run(context.Background(), items)

	assert.Equal(t, []string{"vol-1", "vol-2", "vol-3"}, order)
	assert.Equal(t, []string{"vol-1", "vol-3"}, summary.Deleted)
	assert.Equal(t, []string{"vol-2"}, summary.Failed)
	assert.Equal(t, 12.5, summary.MonthlySavings)
	assert.Contains(t, out.String(), "[1/3] Deleting vol-1")
	assert.Contains(t, out.String(), "still attached")
}

func TestRunnerEchoesWarnings(t *testing.T) {
	var out bytes.Buffer
	items := []Item{
		{
			Name:   "prod-db",
			Region: "us-east-1",
			Safety: types.SafetyReport{Warnings: []string{"name contains 'prod'"}},
			Delete: func(ctx context.Context) error { return nil },
		},
	}

	NewRunner(&out, nil).Run(context.Background(), items)
	assert.Contains(t, out.String(), "name contains 'prod'")
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	items := []Item{
		{Name: "vol-1", Delete: func(ctx context.Context) error {
			called = true
			return nil
		}},
	}

	summary := NewRunner(&out, nil).Run(ctx, items)
	assert.False(t, called)
	assert.Empty(t, summary.Deleted)
}
