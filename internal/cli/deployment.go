package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/splitledger/pkg/client"
)

func createDeploymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployment",
		Short: "Delegator deployment commands",
	}

	cmd.AddCommand(createDeploymentRecordCmd())
	cmd.AddCommand(createDeploymentListCmd())
	cmd.AddCommand(createDeploymentInfoCmd())

	return cmd
}

func createDeploymentRecordCmd() *cobra.Command {
	var d client.Deployment
	var fromFile string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a delegator deployment",
		Long: `Record a deployment of the EIP-7702 stateless delegator.

EXAMPLES:
  # Record a deployment
  splitledger deployment record \
    --chain-id 8453 \
    --address 0x1234... \
    --version 1.3.0 \
    --delegation-manager 0xdb9B... \
    --owner 0xabcd...

  # Record every entry of a deployment manifest (a JSON object or array)
  splitledger deployment record --from-file deployments/base.json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromFile != "" {
				return runDeploymentRecordFromFile(fromFile)
			}
			return runDeploymentRecord(d)
		},
	}

	cmd.Flags().StringVar(&d.Contract, "contract", "", "contract name (default EIP7702StatelessDeleGator)")
	cmd.Flags().Int64Var(&d.ChainID, "chain-id", 0, "chain ID (default from config)")
	cmd.Flags().StringVar(&d.Address, "address", "", "delegator address")
	cmd.Flags().StringVar(&d.Version, "version", "", "delegator version (semver)")
	cmd.Flags().StringVar(&d.DelegationManager, "delegation-manager", "", "delegation manager address")
	cmd.Flags().StringVar(&d.Owner, "owner", "", "owner address passed to initialize")
	cmd.Flags().StringVar(&d.TxHash, "tx-hash", "", "deployment transaction hash")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "read deployments from a JSON manifest")

	return cmd
}

func createDeploymentListCmd() *cobra.Command {
	var chainID int64
	var owner string
	var jsonOutput bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Long: `List recorded delegator deployments.

EXAMPLES:
  splitledger deployment list --chain-id 8453
  splitledger deployment list --owner 0xabcd... --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploymentList(chainID, owner, limit, jsonOutput)
		},
	}

	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "filter by chain ID")
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of items to show")

	return cmd
}

func createDeploymentInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <chain-id> <address>",
		Short: "Show deployment details",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var chainID int64
			if _, err := fmt.Sscan(args[0], &chainID); err != nil || chainID <= 0 {
				return fmt.Errorf("invalid chain ID %q", args[0])
			}
			return runDeploymentInfo(chainID, args[1], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runDeploymentRecord(d client.Deployment) error {
	if d.ChainID == 0 {
		if cfg := loadProjectConfigSilent(); cfg != nil {
			d.ChainID = cfg.ChainID
		}
	}
	if d.ChainID == 0 {
		return fmt.Errorf("--chain-id is required")
	}
	if d.Address == "" {
		return fmt.Errorf("--address is required")
	}

	recorded, err := newClient().RecordDeployment(context.Background(), d)
	if err != nil {
		return fmt.Errorf("failed to record deployment: %w", err)
	}

	fmt.Println("Deployment recorded")
	fmt.Printf("   Contract: %s@%s\n", recorded.Contract, recorded.Version)
	fmt.Printf("   Chain:    %d\n", recorded.ChainID)
	fmt.Printf("   Address:  %s\n", recorded.Address)

	return nil
}

// readManifest accepts a single deployment object or an array of them.
func readManifest(path string) ([]client.Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var many []client.Deployment
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one client.Deployment
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return []client.Deployment{one}, nil
}

func runDeploymentRecordFromFile(path string) error {
	deployments, err := readManifest(path)
	if err != nil {
		return err
	}
	if len(deployments) == 0 {
		return fmt.Errorf("no deployments found in %s", path)
	}

	c := newClient()
	fmt.Printf("Recording %d deployment(s) from %s...\n", len(deployments), path)

	failed := 0
	for _, d := range deployments {
		if _, err := c.RecordDeployment(context.Background(), d); err != nil {
			fmt.Printf("  ! %d/%s: %v\n", d.ChainID, d.Address, err)
			failed++
			continue
		}
		fmt.Printf("  + %d/%s\n", d.ChainID, d.Address)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deployments failed", failed, len(deployments))
	}
	return nil
}

func runDeploymentList(chainID int64, owner string, limit int, jsonOutput bool) error {
	page, err := newClient().ListDeployments(context.Background(), chainID, owner, limit)
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	if jsonOutput {
		return printJSON(page)
	}

	if len(page.Data) == 0 {
		fmt.Println("No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tADDRESS\tVERSION\tOWNER\tMANAGER")
	for _, d := range page.Data {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.ChainID, truncateAddress(d.Address), d.Version, truncateAddress(d.Owner), truncateAddress(d.DelegationManager))
	}
	w.Flush()

	if page.Pagination.HasMore {
		fmt.Printf("\n(showing %d deployments, more available)\n", len(page.Data))
	}

	return nil
}

func runDeploymentInfo(chainID int64, address string, jsonOutput bool) error {
	deployment, err := newClient().GetDeployment(context.Background(), chainID, address)
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}

	if jsonOutput {
		return printJSON(deployment)
	}

	fmt.Printf("Deployment: %s\n", deployment.Address)
	fmt.Printf("Chain ID:   %d\n", deployment.ChainID)
	fmt.Printf("Contract:   %s\n", deployment.Contract)
	fmt.Printf("Version:    %s\n", deployment.Version)
	fmt.Printf("Manager:    %s\n", deployment.DelegationManager)
	fmt.Printf("Owner:      %s\n", deployment.Owner)
	if deployment.TxHash != "" {
		fmt.Printf("Tx Hash:    %s\n", deployment.TxHash)
	}
	fmt.Printf("Recorded:   %s\n", deployment.CreatedAt.Format(time.RFC3339))

	return nil
}

func truncateAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
