package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/splitledger/pkg/client"
)

func createPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Recurring payment plan commands",
	}

	cmd.AddCommand(createPlanCreateCmd())
	cmd.AddCommand(createPlanShowCmd())
	cmd.AddCommand(createPlanCancelCmd())
	cmd.AddCommand(createPlanListCmd())

	return cmd
}

func createPlanCreateCmd() *cobra.Command {
	var req client.CreatePlanRequest
	var every time.Duration
	var start string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recurring payment plan",
		Long: `Create a recurring payment plan. The server emits a plan.due event each
time a payment falls due.

EXAMPLES:
  splitledger plan create --campaign grants-2026 --amount 250 --every 720h
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			campaign, err := requireCampaign(req.CampaignID)
			if err != nil {
				return err
			}
			req.CampaignID = campaign
			if req.ChainID == 0 {
				if cfg := loadProjectConfigSilent(); cfg != nil {
					req.ChainID = cfg.ChainID
				}
			}
			if every%time.Second != 0 {
				return fmt.Errorf("--every must be a whole number of seconds")
			}
			req.IntervalSeconds = int64(every / time.Second)
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				req.StartAt = &t
			}

			plan, err := newClient().CreatePlan(context.Background(), req)
			if err != nil {
				return fmt.Errorf("failed to create plan: %w", err)
			}
			fmt.Printf("Created plan %s, next payment due %s\n", plan.ID, plan.NextDueAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.CampaignID, "campaign", "", "campaign ID (default from config)")
	cmd.Flags().StringVar(&req.Payer, "payer", "", "payer address (defaults to the signed-in wallet)")
	cmd.Flags().Int64Var(&req.ChainID, "chain-id", 0, "chain ID (default from config)")
	cmd.Flags().Int64Var(&req.Amount, "amount", 0, "amount per payment in the smallest unit")
	cmd.Flags().DurationVar(&every, "every", 0, "payment interval (minimum 1m)")
	cmd.Flags().StringVar(&start, "start", "", "first due time, RFC 3339 (default: one interval from now)")
	_ = cmd.MarkFlagRequired("every")

	return cmd
}

func createPlanShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := newClient().GetPlan(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get plan: %w", err)
			}
			return printJSON(plan)
		},
	}
}

func createPlanCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a plan (payer session required)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := newClient().CancelPlan(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to cancel plan: %w", err)
			}
			fmt.Printf("Plan %s cancelled\n", plan.ID)
			return nil
		},
	}
}

func createPlanListCmd() *cobra.Command {
	var campaign, payer string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newClient().ListPlans(context.Background(), campaign, payer, limit)
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}
			if jsonOutput {
				return printJSON(page)
			}
			if len(page.Data) == 0 {
				fmt.Println("No plans found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCAMPAIGN\tPAYER\tAMOUNT\tEVERY\tNEXT DUE\tACTIVE")
			for _, p := range page.Data {
				every := time.Duration(p.IntervalSeconds) * time.Second
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%t\n", p.ID, p.CampaignID, p.Payer, p.Amount, every, p.NextDueAt.Format(time.RFC3339), p.Active)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&campaign, "campaign", "", "filter by campaign")
	cmd.Flags().StringVar(&payer, "payer", "", "filter by payer")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of items to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
