package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"splitledger.toml", ".splitledger.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server   string `toml:"server"`
	Campaign string `toml:"campaign,omitempty"`
	ChainID  int64  `toml:"chain_id,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var campaign string
	var chainID int64
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a splitledger.toml configuration file in the current directory.

This file stores project settings: the server URL, the default campaign
used by split, dao and plan commands, and the default chain ID.

EXAMPLES:
  # Create config with default server
  splitledger config init

  # Create config for a specific server and campaign
  splitledger config init --server https://ledger.example.com --campaign grants-2026

  # Overwrite existing config
  splitledger config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(serverURL, campaign, chainID, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&campaign, "campaign", "", "default campaign ID (defaults to directory name)")
	cmd.Flags().Int64Var(&chainID, "chain-id", 1, "default chain ID")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration and where each value comes from.

EXAMPLES:
  splitledger config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigInit(serverURL, campaign string, chainID int64, force bool) error {
	configPath := projectConfigFiles[0]

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	if campaign == "" {
		if cwd, err := os.Getwd(); err == nil {
			campaign = filepath.Base(cwd)
		}
	}

	f, err := os.OpenFile(configPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# Splitledger project configuration")
	fmt.Fprintln(f)
	if err := toml.NewEncoder(f).Encode(ProjectConfig{Server: serverURL, Campaign: campaign, ChainID: chainID}); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Server:   %s\n", serverURL)
	fmt.Printf("  Campaign: %s\n", campaign)
	fmt.Printf("  Chain ID: %d\n", chainID)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'splitledger auth login' to store an API key")
	fmt.Println("  2. Run 'splitledger split create --total 1000 --line 0xabc...:10000'")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --api-key, --token, --config")
	fmt.Println()

	fmt.Println("2. Environment variables")
	for _, name := range []string{"SPLITLEDGER_SERVER", "SPLITLEDGER_API_KEY", "SPLITLEDGER_TOKEN"} {
		v := os.Getenv(name)
		switch {
		case v == "":
			fmt.Printf("   %s=(not set)\n", name)
		case name == "SPLITLEDGER_SERVER":
			fmt.Printf("   %s=%s\n", name, v)
		default:
			fmt.Printf("   %s=%s\n", name, maskAPIKey(v))
		}
	}
	fmt.Println()

	fmt.Println("3. Project config (splitledger.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	default:
		fmt.Printf("   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Printf("   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Campaign != "" {
			fmt.Printf("   campaign: %s\n", projectConfig.Campaign)
		}
		if projectConfig.ChainID != 0 {
			fmt.Printf("   chain_id: %d\n", projectConfig.ChainID)
		}
	}
	fmt.Println()

	fmt.Printf("4. Credentials (%s)\n", credentialsFilePath())
	creds, err := loadCredentials()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	case len(creds.Servers) == 0:
		fmt.Println("   (no credentials stored)")
	default:
		for server, cred := range creds.Servers {
			fmt.Printf("   %s: %s\n", server, describeCredential(cred))
		}
	}
	fmt.Println()

	fmt.Println("Effective configuration:")
	fmt.Printf("   Server:   %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Printf("   API Key:  %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   API Key:  (not set)")
	}
	if t := getToken(); t != "" {
		fmt.Printf("   Session:  %s\n", maskAPIKey(t))
	} else {
		fmt.Println("   Session:  (not signed in)")
	}
	if c := defaultCampaign(); c != "" {
		fmt.Printf("   Campaign: %s\n", c)
	}

	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	var config ProjectConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but warns about parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}
