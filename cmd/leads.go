package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage stored leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initFunnel(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.LeadFilter{}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		filter.Offset, _ = cmd.Flags().GetInt("offset")
		if raw, _ := cmd.Flags().GetString("status"); raw != "" {
			status, err := model.ParseStatus(raw)
			if err != nil {
				return err
			}
			filter.Status = status
		}

		leads, err := env.Store.ListLeads(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if len(leads) == 0 {
			fmt.Println("No leads found.")
			return nil
		}
		fmt.Printf("%-36s  %-8s  %-22s  %-24s  %s\n", "ID", "STATUS", "NAME", "COMPANY", "EMAIL")
		for _, l := range leads {
			fmt.Printf("%-36s  %-8s  %-22s  %-24s  %s\n",
				l.ID, l.Status, truncate(l.FullName, 22), truncate(l.CompanyName, 24), l.Email)
		}
		fmt.Printf("\n%d lead(s)\n", len(leads))
		return nil
	},
}

var leadsMessagesCmd = &cobra.Command{
	Use:   "messages <lead-id>",
	Short: "Show composed messages for a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initFunnel(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Store.GetLead(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		msgs, err := env.Store.ListLeadMessages(cmd.Context(), lead.ID)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No messages composed for this lead.")
			return nil
		}

		for _, m := range msgs {
			fmt.Printf("--- %s / variation %s ---\n", m.Channel, m.Variation)
			if m.Subject != "" {
				fmt.Printf("Subject: %s\n", m.Subject)
			}
			fmt.Printf("%s\n\n", m.Body)
		}
		return nil
	},
}

var leadsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all leads, enrichments, messages, and attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			return fmt.Errorf("refusing to clear without --yes")
		}

		env, err := initFunnel(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cleared.")
		return nil
	},
}

func init() {
	leadsListCmd.Flags().String("status", "", "filter by status (NEW, ENRICHED, MESSAGED, SENT, FAILED)")
	leadsListCmd.Flags().Int("limit", 50, "maximum leads to list")
	leadsListCmd.Flags().Int("offset", 0, "listing offset")
	leadsClearCmd.Flags().Bool("yes", false, "confirm deletion")

	leadsCmd.AddCommand(leadsListCmd, leadsMessagesCmd, leadsClearCmd)
	rootCmd.AddCommand(leadsCmd)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
