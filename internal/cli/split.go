package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/splitledger/pkg/client"
)

func createSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split payment request commands",
	}

	cmd.AddCommand(createSplitCreateCmd())
	cmd.AddCommand(createSplitShowCmd())
	cmd.AddCommand(createSplitPayCmd())
	cmd.AddCommand(createSplitRejectCmd())
	cmd.AddCommand(createSplitListCmd())

	return cmd
}

func createSplitCreateCmd() *cobra.Command {
	var creator, campaign string
	var total int64
	var lines []string
	var gated bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a split payment request",
		Long: `Create a split payment request. Each --line is recipient:basisPoints and
the shares must sum to 10000.

EXAMPLES:
  # Even split between two recipients
  splitledger split create --total 1000 \
    --line 0x2222222222222222222222222222222222222222:5000 \
    --line 0x3333333333333333333333333333333333333333:5000

  # Payouts held until the creator is verified in the campaign
  splitledger split create --campaign grants-2026 --dao-gated --total 500 \
    --line 0x2222222222222222222222222222222222222222:10000
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseLines(lines)
			if err != nil {
				return err
			}
			if campaign == "" {
				campaign = defaultCampaign()
			}

			split, err := newClient().CreateSplit(context.Background(), client.CreateSplitRequest{
				Creator:                 creator,
				CampaignID:              campaign,
				DAOVerificationRequired: gated,
				TotalAmount:             total,
				Lines:                   parsed,
			})
			if err != nil {
				return fmt.Errorf("failed to create split: %w", err)
			}
			if jsonOutput {
				return printJSON(split)
			}
			fmt.Printf("Created split %s\n\n", split.ID)
			printSplit(split)
			return nil
		},
	}

	cmd.Flags().StringVar(&creator, "creator", "", "creator address (defaults to the signed-in wallet)")
	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign ID (default from config)")
	cmd.Flags().Int64Var(&total, "total", 0, "total amount in the smallest unit")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "recipient:basisPoints (repeatable)")
	cmd.Flags().BoolVar(&gated, "dao-gated", false, "hold payouts until the creator is DAO verified")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("total")
	_ = cmd.MarkFlagRequired("line")

	return cmd
}

func createSplitShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a split and its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := newClient().GetSplit(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get split: %w", err)
			}
			if jsonOutput {
				return printJSON(split)
			}
			printSplit(split)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func createSplitPayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay <id> <recipient>",
		Short: "Mark a recipient's line as paid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := newClient().MarkLinePaid(context.Background(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to mark line paid: %w", err)
			}
			fmt.Printf("Split %s is %s (%.2f%% paid)\n", split.ID, split.Status, split.Progress)
			return nil
		},
	}
	return cmd
}

func createSplitRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending split (DAO authority session required)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := newClient().RejectSplit(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to reject split: %w", err)
			}
			fmt.Printf("Split %s is %s\n", split.ID, split.Status)
			return nil
		},
	}
}

func createSplitListCmd() *cobra.Command {
	var f client.SplitFilter
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List split requests",
		Long: `List split requests, newest first.

EXAMPLES:
  splitledger split list --status pending
  splitledger split list --creator 0x1111111111111111111111111111111111111111 --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newClient().ListSplits(context.Background(), f)
			if err != nil {
				return fmt.Errorf("failed to list splits: %w", err)
			}
			if jsonOutput {
				return printJSON(page)
			}
			if len(page.Data) == 0 {
				fmt.Println("No split requests found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATOR\tCAMPAIGN\tTOTAL\tSTATUS\tPROGRESS")
			for _, s := range page.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.2f%%\n", s.ID, s.Creator, dash(s.CampaignID), s.TotalAmount, s.Status, s.Progress)
			}
			w.Flush()
			if page.Pagination.HasMore {
				fmt.Printf("\nMore results: --cursor %s\n", page.Pagination.NextCursor)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.Creator, "creator", "", "filter by creator")
	cmd.Flags().StringVar(&f.Campaign, "campaign", "", "filter by campaign")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status (pending, partially_fulfilled, fulfilled, rejected)")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "number of items to show")
	cmd.Flags().StringVar(&f.Cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// parseLines parses recipient:basisPoints pairs.
func parseLines(raw []string) ([]client.Line, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --line is required")
	}

	lines := make([]client.Line, 0, len(raw))
	for _, r := range raw {
		recipient, share, ok := strings.Cut(r, ":")
		if !ok || recipient == "" {
			return nil, fmt.Errorf("invalid line %q: expected recipient:basisPoints", r)
		}
		bps, err := strconv.Atoi(share)
		if err != nil {
			return nil, fmt.Errorf("invalid line %q: share must be an integer", r)
		}
		lines = append(lines, client.Line{Recipient: recipient, ShareBasisPoints: bps})
	}
	return lines, nil
}

func printSplit(s *client.Split) {
	fmt.Printf("ID:        %s\n", s.ID)
	fmt.Printf("Creator:   %s\n", s.Creator)
	if s.CampaignID != "" {
		fmt.Printf("Campaign:  %s\n", s.CampaignID)
	}
	fmt.Printf("Status:    %s\n", s.Status)
	fmt.Printf("Total:     %d\n", s.TotalAmount)
	fmt.Printf("Progress:  %.2f%%\n", s.Progress)
	if s.DAOVerificationRequired {
		fmt.Println("DAO gated: yes")
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECIPIENT\tSHARE\tAMOUNT\tSTATE")
	for _, l := range s.Lines {
		fmt.Fprintf(w, "%s\t%.2f%%\t%d\t%s\n", l.Recipient, float64(l.ShareBasisPoints)/100, l.Amount, l.State)
	}
	w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
