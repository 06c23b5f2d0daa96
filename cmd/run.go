package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/funnel"
	"github.com/sells-group/outreach-cli/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the outreach funnel once",
	Long: `Executes a single funnel run end-to-end:

  capture  - pull new leads from the configured source
  enrich   - derive persona, pain points, and buying triggers
  compose  - write per-channel message variations
  deliver  - send over email/LinkedIn with rate limiting and retries

Examples:
  # Dry run over 50 synthetic leads
  run --count 50 --dry-run

  # Live email-only send
  run --channels email --dry-run=false

  # Two message variations per channel
  run --variations A,B`,
	RunE: runFunnel,
}

func init() {
	f := runCmd.Flags()
	f.Int("count", 0, "leads to capture (0=use config default)")
	f.String("channels", "", "delivery channels (email, linkedin, or both)")
	f.String("variations", "", "comma-separated message variations (A,B)")
	f.Bool("dry-run", false, "simulate delivery without touching providers (overrides config)")
	f.String("mode", "", "composition mode (template or ai, overrides config)")
	f.Int64("seed", 0, "synthetic source seed (overrides config)")

	rootCmd.AddCommand(runCmd)
}

func runFunnel(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("seed") {
		cfg.Capture.Seed, _ = cmd.Flags().GetInt64("seed")
	}

	env, err := initFunnel(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	runCfg, err := runConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	runID, err := env.Controller.Start(runCfg)
	if err != nil {
		return err
	}
	zap.L().Info("run started", zap.String("run_id", runID))

	// Cancel the run on SIGINT/SIGTERM, then wait for in-flight work to
	// drain and attempts to be recorded.
	go func() {
		<-ctx.Done()
		_ = env.Controller.Cancel()
	}()

	env.Controller.Wait()

	snap := env.Controller.Status()
	switch {
	case snap.Canceled:
		fmt.Println("Run canceled.")
	case snap.Error != "":
		fmt.Printf("Run failed: %s\n", snap.Error)
	default:
		fmt.Println("Run complete.")
	}

	m, err := env.Controller.Metrics(cmd.Context())
	if err != nil {
		return err
	}
	printMetrics(m)

	if snap.Error != "" && !snap.Canceled {
		return fmt.Errorf("run %s: %s", snap.RunID, snap.Error)
	}
	return nil
}

func runConfigFromFlags(cmd *cobra.Command) (funnel.RunConfig, error) {
	var runCfg funnel.RunConfig

	runCfg.RecordLimit, _ = cmd.Flags().GetInt("count")
	runCfg.CompositionMode, _ = cmd.Flags().GetString("mode")

	if raw, _ := cmd.Flags().GetString("channels"); raw != "" {
		channels := model.ParseChannels(raw)
		if channels == nil {
			return runCfg, fmt.Errorf("unknown channels %q (want email, linkedin, or both)", raw)
		}
		runCfg.Channels = channels
	}
	if raw, _ := cmd.Flags().GetString("variations"); raw != "" {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				runCfg.Variations = append(runCfg.Variations, v)
			}
		}
	}
	if cmd.Flags().Changed("dry-run") {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		runCfg.DryRun = &dryRun
	}
	return runCfg, nil
}

func printMetrics(m *model.Metrics) {
	fmt.Printf("\n--- Funnel Metrics ---\n")
	fmt.Printf("Leads:     %d total\n", m.Total)
	fmt.Printf("Enriched:  %d\n", m.Enriched)
	fmt.Printf("Messaged:  %d (%d messages composed)\n", m.Messaged, m.MessagesComposed)
	fmt.Printf("Sent:      %d\n", m.Sent)
	fmt.Printf("Failed:    %d\n", m.Failed)
	fmt.Printf("Attempts:  %d ok, %d failed\n", m.AttemptsSent, m.AttemptsFailed)
}
