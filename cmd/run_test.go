package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "cli.db"),
		},
		Capture: config.CaptureConfig{Source: "synthetic", Seed: 42},
		Funnel: config.FunnelConfig{
			RecordLimit:     5,
			CompositionMode: "template",
			EnrichmentMode:  "offline",
			Channels:        "both",
			Variations:      []string{"A"},
			Workers:         2,
		},
		Outreach: config.OutreachConfig{
			DryRun:        true,
			RatePerWindow: 100,
			RateWindow:    time.Minute,
			MaxAttempts:   3,
			BaseBackoff:   time.Millisecond,
			MaxBackoff:    5 * time.Millisecond,
		},
	}
}

func TestRunCmd_DryRunEndToEnd(t *testing.T) {
	cfg = testConfig(t)

	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(nil)

	require.NoError(t, runCmd.RunE(runCmd, nil))

	// Re-open the store and confirm the dry run moved every lead to SENT.
	env, err := initFunnel(context.Background())
	require.NoError(t, err)
	defer env.Close()

	m, err := env.Controller.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, m.Total)
	assert.Equal(t, 5, m.Sent)
	assert.Zero(t, m.Failed)
}

func TestRunCmd_UnknownStoreDriver(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.Driver = "mongodb"

	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(nil)

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestRunCmd_UnknownCaptureSource(t *testing.T) {
	cfg = testConfig(t)
	cfg.Capture.Source = "crm"

	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(nil)

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported capture source")
}

func TestRunCmd_XLSXSourceRequiresPath(t *testing.T) {
	cfg = testConfig(t)
	cfg.Capture.Source = "xlsx"

	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(nil)

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx_path")
}

func TestRunCmd_AIModeRequiresKey(t *testing.T) {
	cfg = testConfig(t)
	cfg.Funnel.EnrichmentMode = "ai"

	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(nil)

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.key is required")
}

func TestRunConfigFromFlags(t *testing.T) {
	f := runCmd.Flags()
	require.NoError(t, f.Set("count", "7"))
	require.NoError(t, f.Set("mode", "ai"))
	require.NoError(t, f.Set("channels", "email"))
	require.NoError(t, f.Set("variations", "A, B"))
	require.NoError(t, f.Set("dry-run", "false"))
	defer func() {
		_ = f.Set("count", "0")
		_ = f.Set("mode", "")
		_ = f.Set("channels", "")
		_ = f.Set("variations", "")
		_ = f.Set("dry-run", "false")
		f.Lookup("dry-run").Changed = false
	}()

	runCfg, err := runConfigFromFlags(runCmd)
	require.NoError(t, err)
	assert.Equal(t, 7, runCfg.RecordLimit)
	assert.Equal(t, "ai", runCfg.CompositionMode)
	assert.Equal(t, []model.Channel{model.ChannelEmail}, runCfg.Channels)
	assert.Equal(t, []string{"A", "B"}, runCfg.Variations)
	require.NotNil(t, runCfg.DryRun)
	assert.False(t, *runCfg.DryRun)
}

func TestRunConfigFromFlags_BadChannels(t *testing.T) {
	f := runCmd.Flags()
	require.NoError(t, f.Set("channels", "fax"))
	defer func() { _ = f.Set("channels", "") }()

	_, err := runConfigFromFlags(runCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channels")
}

func TestLeadsClearCmd_RequiresConfirmation(t *testing.T) {
	cfg = testConfig(t)

	leadsClearCmd.SetContext(context.Background())
	defer leadsClearCmd.SetContext(nil)

	err := leadsClearCmd.RunE(leadsClearCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}
