package cli

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/splitledger/pkg/client"
)

// Credentials stores API keys and session tokens per server
type Credentials struct {
	Servers map[string]ServerCredential `yaml:"servers"`
}

// ServerCredential stores credentials for a single server
type ServerCredential struct {
	APIKey         string    `yaml:"api_key,omitempty"`
	Name           string    `yaml:"name,omitempty"` // Optional name/description
	Address        string    `yaml:"address,omitempty"`
	Token          string    `yaml:"token,omitempty"`
	TokenExpiresAt time.Time `yaml:"token_expires_at,omitempty"`
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthSignInCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var serverFlag string
	var apiKeyFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a server",
		Long: `Save API key credentials for a splitledger server.

The API key is stored in ~/.splitledger/credentials with secure file permissions.

EXAMPLES:
  # Interactive login (prompts for API key)
  splitledger auth login

  # Non-interactive login (for CI)
  splitledger auth login --api-key $SPLITLEDGER_API_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(serverFlag, apiKeyFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")

	return cmd
}

func createAuthSignInCmd() *cobra.Command {
	var serverFlag string
	var keyFile string

	cmd := &cobra.Command{
		Use:   "sign-in",
		Short: "Sign in with a wallet key",
		Long: `Sign the server's challenge with a wallet private key and store the
session token. DAO authorities need a session to record verification
decisions and reject split requests; payers need one to cancel plans.

The private key is read from --key-file, then SPLITLEDGER_PRIVATE_KEY, then
prompted for. It is never stored.

EXAMPLES:
  splitledger auth sign-in --key-file ~/.keys/authority.hex
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthSignIn(serverFlag, keyFile)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "file containing a hex private key")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var serverFlag string
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear credentials",
		Long: `Remove saved credentials for a server.

EXAMPLES:
  # Logout from default server
  splitledger auth logout

  # Clear all credentials
  splitledger auth logout --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(serverFlag, allFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().BoolVar(&allFlag, "all", false, "clear all credentials")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus()
		},
	}
}

// readSecret prompts for a secret, without echo on a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		b, err := term.ReadPassword(stdinFd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogin(serverURL, apiKeyInput string) error {
	if serverURL == "" {
		serverURL = getServer()
	}

	key := apiKeyInput
	if key == "" {
		var err error
		key, err = readSecret(fmt.Sprintf("Enter API key for %s: ", serverURL))
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
	}

	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	fmt.Printf("Validating credentials with %s...\n", serverURL)
	name, err := whoami(serverURL, key)
	if err != nil {
		return err
	}

	if err := updateCredential(serverURL, func(c *ServerCredential) {
		c.APIKey = key
		c.Name = name
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Authenticated to %s (key: %s)\n", serverURL, maskAPIKey(key))
	fmt.Printf("   Credentials saved to %s\n", credentialsFilePath())

	return nil
}

// whoami checks key against the server and returns the key's name.
func whoami(serverURL, key string) (string, error) {
	var resp struct {
		APIKey string `json:"apiKey"`
	}
	c := client.New(serverURL, key)
	if err := c.Whoami(context.Background(), &resp); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return "", fmt.Errorf("invalid API key")
		}
		return "", fmt.Errorf("failed to validate credentials: %w", err)
	}
	return resp.APIKey, nil
}

func runAuthSignIn(serverURL, keyFile string) error {
	if serverURL == "" {
		serverURL = getServer()
	}

	key, err := loadPrivateKey(keyFile)
	if err != nil {
		return err
	}

	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	session, err := signIn(context.Background(), client.New(serverURL, ""), key)
	if err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	if err := updateCredential(serverURL, func(c *ServerCredential) {
		c.Address = address
		c.Token = session.Token
		c.TokenExpiresAt = session.ExpiresAt
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Signed in to %s as %s\n", serverURL, address)
	fmt.Printf("   Session expires %s\n", session.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

// signIn requests a challenge, signs it with an EIP-191 personal signature
// and exchanges it for a session.
func signIn(ctx context.Context, c *client.Client, key *ecdsa.PrivateKey) (*client.Session, error) {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	challenge, err := c.Nonce(ctx, address)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), key)
	if err != nil {
		return nil, fmt.Errorf("signing challenge: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return c.Login(ctx, address, challenge.Message, hexutil.Encode(sig))
}

func loadPrivateKey(keyFile string) (*ecdsa.PrivateKey, error) {
	var raw string
	switch {
	case keyFile != "":
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		raw = string(data)
	case os.Getenv("SPLITLEDGER_PRIVATE_KEY") != "":
		raw = os.Getenv("SPLITLEDGER_PRIVATE_KEY")
	default:
		var err error
		raw, err = readSecret("Enter wallet private key (hex): ")
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
	}

	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func runAuthLogout(serverURL string, all bool) error {
	if all {
		if err := os.Remove(credentialsFilePath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Println("All credentials cleared")
		return nil
	}

	if serverURL == "" {
		serverURL = getServer()
	}

	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No credentials found for %s\n", serverURL)
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if _, exists := creds.Servers[serverURL]; !exists {
		fmt.Printf("No credentials found for %s\n", serverURL)
		return nil
	}

	delete(creds.Servers, serverURL)

	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Logged out from %s\n", serverURL)
	return nil
}

func runAuthStatus() error {
	creds, err := loadCredentials()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if creds == nil || len(creds.Servers) == 0 {
		fmt.Println("Not authenticated to any servers")
		fmt.Println("\nRun 'splitledger auth login' to authenticate")
		return nil
	}

	fmt.Println("Authenticated servers:")
	for server, cred := range creds.Servers {
		fmt.Printf("  - %s (%s)\n", server, describeCredential(cred))
	}

	return nil
}

func describeCredential(cred ServerCredential) string {
	var parts []string
	if cred.APIKey != "" {
		if cred.Name != "" {
			parts = append(parts, fmt.Sprintf("%s, key: %s", cred.Name, maskAPIKey(cred.APIKey)))
		} else {
			parts = append(parts, "key: "+maskAPIKey(cred.APIKey))
		}
	}
	if cred.Token != "" {
		state := "active"
		if !cred.TokenExpiresAt.IsZero() && time.Now().After(cred.TokenExpiresAt) {
			state = "expired"
		}
		parts = append(parts, fmt.Sprintf("wallet %s, session %s", cred.Address, state))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, "; ")
}

// Credential file helpers

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".splitledger"
	}
	return filepath.Join(home, ".splitledger")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

func loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(credentialsFilePath())
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if creds.Servers == nil {
		creds.Servers = make(map[string]ServerCredential)
	}

	return &creds, nil
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	return os.WriteFile(credentialsFilePath(), data, 0600)
}

// updateCredential applies fn to the stored credential for serverURL.
func updateCredential(serverURL string, fn func(*ServerCredential)) error {
	creds, err := loadCredentials()
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		creds = &Credentials{Servers: make(map[string]ServerCredential)}
	}

	cred := creds.Servers[serverURL]
	fn(&cred)
	creds.Servers[serverURL] = cred
	return writeCredentials(creds)
}

func getCredential(serverURL string) (ServerCredential, bool) {
	creds, err := loadCredentials()
	if err != nil {
		return ServerCredential{}, false
	}
	cred, ok := creds.Servers[serverURL]
	return cred, ok
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
