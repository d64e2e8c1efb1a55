package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/splitledger/pkg/client"
)

var (
	cfgFile string
	server  string
	apiKey  string
	token   string
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "splitledger",
		Short:   "Split payment request CLI",
		Long:    `Splitledger is a CLI for creating split payment requests, tracking payouts and managing DAO verification.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: splitledger.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "session token from wallet sign-in")

	rootCmd.AddCommand(createSplitCmd())
	rootCmd.AddCommand(createDAOCmd())
	rootCmd.AddCommand(createPlanCmd())
	rootCmd.AddCommand(createDeploymentCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// getServer returns the server URL from flag, env, or config file
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("SPLITLEDGER_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Default
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}

	if env := os.Getenv("SPLITLEDGER_API_KEY"); env != "" {
		return env
	}

	if cred, ok := getCredential(getServer()); ok {
		return cred.APIKey
	}

	return ""
}

// getToken returns the session token from flag, env, or an unexpired
// credential.
func getToken() string {
	if token != "" {
		return token
	}

	if env := os.Getenv("SPLITLEDGER_TOKEN"); env != "" {
		return env
	}

	if cred, ok := getCredential(getServer()); ok && cred.Token != "" {
		if cred.TokenExpiresAt.IsZero() || time.Now().Before(cred.TokenExpiresAt) {
			return cred.Token
		}
	}

	return ""
}

func newClient() *client.Client {
	var opts []client.Option
	if t := getToken(); t != "" {
		opts = append(opts, client.WithToken(t))
	}
	return client.New(getServer(), getAPIKey(), opts...)
}

// defaultCampaign returns the campaign from the project config, if any.
func defaultCampaign() string {
	if config := loadProjectConfigSilent(); config != nil {
		return config.Campaign
	}
	return ""
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
