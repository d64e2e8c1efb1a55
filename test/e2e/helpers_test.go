//go:build e2e

package e2e

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/splitledger/internal/config"
	"github.com/pendergraft/splitledger/internal/server"
	"github.com/pendergraft/splitledger/internal/storage"
	"github.com/pendergraft/splitledger/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Server            *server.Server
	Store             storage.Store
	AuthorityKey      *ecdsa.PrivateKey
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("splitledger"),
		postgres.WithUsername("splitledger"),
		postgres.WithPassword("splitledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the server in-process against the container with API
// keys required for writes and one generated DAO authority.
func startServerE(tc *TestContext) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating authority key: %w", err)
	}
	tc.AuthorityKey = key

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: config.StorageConfig{
			Type:     "postgres",
			Postgres: config.PostgresConfig{URL: tc.ConnString},
			Timeout:  5 * time.Second,
		},
		Auth: config.AuthConfig{
			Type:        "api-key",
			JWTSecret:   "e2e-secret",
			JWTTTL:      time.Hour,
			NonceTTL:    5 * time.Minute,
			Authorities: []string{crypto.PubkeyToAddress(key.PublicKey).Hex()},
		},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: true, MaxBodySizeKB: 256},
		Proxy:     config.ProxyConfig{TrustProxy: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	srv, err := server.New(cfg, store, nil, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	tc.Store = store
	tc.Server = srv
	tc.TestServer = httptest.NewServer(srv.Handler())
	return nil
}

// newClient creates a new API client for the test server
func newClient(apiKey string, opts ...client.Option) *client.Client {
	return client.New(testCtx.TestServer.URL, apiKey, opts...)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, name string) string {
	t.Helper()
	key, err := testCtx.Store.CreateAPIKey(context.Background(), name)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// signIn performs wallet sign-in for key and returns the session token.
func signIn(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	ctx := context.Background()
	c := newClient("")
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	challenge, err := c.Nonce(ctx, address)
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), key)
	require.NoError(t, err)
	sig[64] += 27

	session, err := c.Login(ctx, address, challenge.Message, hexutil.Encode(sig))
	require.NoError(t, err)
	return session.Token
}

// authorityClient returns a client signed in as the configured DAO authority.
func authorityClient(t *testing.T) *client.Client {
	t.Helper()
	return newClient("", client.WithToken(signIn(t, testCtx.AuthorityKey)))
}

// randomAddress returns a fresh checksummed address.
func randomAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// uniqueCampaign keeps tests sharing one database independent.
func uniqueCampaign(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
