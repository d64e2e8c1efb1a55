package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func createDAOCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dao",
		Short: "DAO verification commands",
	}

	cmd.AddCommand(createDAOCheckCmd())
	cmd.AddCommand(createDAOSetCmd())
	cmd.AddCommand(createDAOListCmd())

	return cmd
}

func createDAOCheckCmd() *cobra.Command {
	var campaign string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check <address>",
		Short: "Show an address's verification status",
		Long: `Show an address's verification status in a campaign. Unknown addresses
are registered as pending_verification.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaign, err := requireCampaign(campaign)
			if err != nil {
				return err
			}
			rec, err := newClient().CheckMembership(context.Background(), campaign, args[0])
			if err != nil {
				return fmt.Errorf("failed to check membership: %w", err)
			}
			if jsonOutput {
				return printJSON(rec)
			}
			fmt.Printf("%s in %s: %s\n", rec.Address, rec.CampaignID, rec.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign ID (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func createDAOSetCmd() *cobra.Command {
	var campaign string

	cmd := &cobra.Command{
		Use:   "set <address> <verified|rejected|pending_verification>",
		Short: "Record a verification decision (DAO authority session required)",
		Long: `Record a verification decision. Run 'splitledger auth sign-in' with an
authority wallet first.

EXAMPLES:
  splitledger dao set 0x1111111111111111111111111111111111111111 verified --campaign grants-2026
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaign, err := requireCampaign(campaign)
			if err != nil {
				return err
			}
			rec, err := newClient().SetVerification(context.Background(), campaign, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to set verification: %w", err)
			}
			fmt.Printf("%s in %s: %s\n", rec.Address, rec.CampaignID, rec.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign ID (default from config)")
	return cmd
}

func createDAOListCmd() *cobra.Command {
	var campaign, status string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List verification records",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := newClient().ListDAORecords(context.Background(), campaign, status)
			if err != nil {
				return fmt.Errorf("failed to list records: %w", err)
			}
			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No verification records found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CAMPAIGN\tADDRESS\tSTATUS\tUPDATED\tBY")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.CampaignID, r.Address, r.Status, r.UpdatedAt.Format(time.RFC3339), dash(r.UpdatedBy))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&campaign, "campaign", "", "filter by campaign")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func requireCampaign(campaign string) (string, error) {
	if campaign == "" {
		campaign = defaultCampaign()
	}
	if campaign == "" {
		return "", fmt.Errorf("--campaign is required (or set campaign in splitledger.toml)")
	}
	return campaign, nil
}
