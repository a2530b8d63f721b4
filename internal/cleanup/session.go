package cleanup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/awsweep/awsweep/internal/types"
)

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// CallerIdentity resolves who we are running as. Every sweep starts
// here so the account and principal end up in the logs before anything
// destructive happens.
func CallerIdentity(ctx context.Context, client STSAPI) (types.CallerIdentity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return types.CallerIdentity{}, fmt.Errorf("❌ Failed to resolve caller identity: %v", err)
	}

	identity := types.CallerIdentity{}
	if out.Account != nil {
		identity.Account = *out.Account
	}
	if out.Arn != nil {
		identity.Arn = *out.Arn
	}
	if out.UserId != nil {
		identity.UserID = *out.UserId
	}

	slog.Info("🚀 Running as", "account", identity.Account, "arn", identity.Arn)
	return identity, nil
}

// ProbeFunc makes a cheap read-only call in one region to check that
// the service is reachable there with the current credentials.
type ProbeFunc func(ctx context.Context, region string) error

// ProbeRegions keeps only the regions that answer the probe. Regions
// that fail are logged and skipped rather than failing the whole sweep;
// an empty result is an error because there is nothing left to scan.
func ProbeRegions(ctx context.Context, regions []string, probe ProbeFunc) ([]string, error) {
	reachable := make([]string, 0, len(regions))
	for _, region := range regions {
		if err := probe(ctx, region); err != nil {
			slog.Warn("⚠️ Skipping unreachable region", "region", region, "error", err)
			continue
		}
		reachable = append(reachable, region)
	}

	if len(reachable) == 0 {
		return nil, fmt.Errorf("❌ No reachable regions out of %v", regions)
	}

	return reachable, nil
}
