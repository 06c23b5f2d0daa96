package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show funnel metrics from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initFunnel(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Controller.Metrics(cmd.Context())
		if err != nil {
			return err
		}

		printMetrics(m)

		if m.Total > 0 {
			pct := m.Percentages()
			fmt.Printf("\n--- By Status ---\n")
			for _, st := range model.AllStatuses {
				fmt.Printf("%-10s %5d (%5.1f%%)\n", st, m.ByStatus[st], pct[st])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
