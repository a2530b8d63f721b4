package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("empty path returns empty config", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Empty(t, cfg.Profile)
		assert.Empty(t, cfg.Regions)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("parses profile, regions and overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "awsweep.yaml")
		content := `
profile: sandbox
regions:
  - eu-central-1
  - eu-west-1
price_overrides:
  loadbalancer.application: 25.5
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sandbox", cfg.Profile)
		assert.Equal(t, []string{"eu-central-1", "eu-west-1"}, cfg.Regions)
		assert.InDelta(t, 25.5, cfg.PriceOverrides["loadbalancer.application"], 0.001)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("regions: [unclosed"), 0o644))

		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestResolveRegions(t *testing.T) {
	cfg := &Config{Regions: []string{"eu-west-1"}}

	assert.Equal(t, []string{"us-west-2"}, cfg.ResolveRegions([]string{"us-west-2"}))
	assert.Equal(t, []string{"eu-west-1"}, cfg.ResolveRegions(nil))
	assert.Equal(t, DefaultRegions, (&Config{}).ResolveRegions(nil))
}

func TestResolveProfile(t *testing.T) {
	cfg := &Config{Profile: "from-file"}

	assert.Equal(t, "from-flag", cfg.ResolveProfile("from-flag"))
	assert.Equal(t, "from-file", cfg.ResolveProfile(""))
	assert.Equal(t, "", (&Config{}).ResolveProfile(""))
}
