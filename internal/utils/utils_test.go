package utils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindEnvToFlags(t *testing.T) {
	tests := []struct {
		name     string
		flagName string
		envVar   string
		envValue string
		setFlag  string
		want     string
	}{
		{
			name:     "env var fills unset flag",
			flagName: "dry-run",
			envVar:   "DRY_RUN",
			envValue: "true",
			want:     "true",
		},
		{
			name:     "explicit flag wins over env var",
			flagName: "regions",
			envVar:   "REGIONS",
			envValue: "eu-west-1",
			setFlag:  "us-east-1",
			want:     "us-east-1",
		},
		{
			name:     "no env var leaves default",
			flagName: "profile",
			envVar:   "PROFILE",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "test"}
			cmd.Flags().String(tt.flagName, "", "")

			if tt.envValue != "" {
				t.Setenv(tt.envVar, tt.envValue)
			}
			if tt.setFlag != "" {
				require.NoError(t, cmd.Flags().Set(tt.flagName, tt.setFlag))
			}

			require.NoError(t, BindEnvToFlags(cmd))

			got, err := cmd.Flags().GetString(tt.flagName)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "0 B", FormatBytes(-5))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "1.5 GiB", FormatBytes(1610612736))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", Truncate("anything", 0))
	assert.Equal(t, "short", Truncate("short", 20))
	assert.Equal(t, "exactly", Truncate("exactly", 7))
	assert.Equal(t, "longer-na", Truncate("longer-name-here", 9))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$22.50", FormatMoney(22.5))
	assert.Equal(t, "$0.00", FormatMoney(0))
	assert.Equal(t, "$1.00", FormatMoney(1.004))
}
