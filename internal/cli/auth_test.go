package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"
)

// TestStdinFdCrossplatform verifies that os.Stdin.Fd() can be passed to
// golang.org/x/term on every platform.
func TestStdinFdCrossplatform(t *testing.T) {
	stdinFd := int(os.Stdin.Fd())
	assert.GreaterOrEqual(t, stdinFd, 0, "stdin file descriptor should be non-negative")

	isTerminal := term.IsTerminal(stdinFd)
	t.Logf("stdin fd=%d, isTerminal=%v", stdinFd, isTerminal)
}

// whoamiServer accepts only validKey.
func whoamiServer(t *testing.T, validKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/whoami" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("X-API-Key") != validKey {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid API key"}}`))
			return
		}
		w.Write([]byte(`{"apiKey":"ci"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthLoginWithFlags(t *testing.T) {
	isolate(t)
	srv := whoamiServer(t, "valid-key")

	t.Run("successful login with valid key", func(t *testing.T) {
		require.NoError(t, runAuthLogin(srv.URL, "valid-key"))

		cred, ok := getCredential(srv.URL)
		require.True(t, ok)
		assert.Equal(t, "valid-key", cred.APIKey)
		assert.Equal(t, "ci", cred.Name)
	})

	t.Run("failed login with invalid key", func(t *testing.T) {
		err := runAuthLogin(srv.URL, "invalid-key")
		assert.ErrorContains(t, err, "invalid API key")
	})

	t.Run("empty API key rejected", func(t *testing.T) {
		origStdin := os.Stdin
		defer func() { os.Stdin = origStdin }()

		r, w, err := os.Pipe()
		require.NoError(t, err)
		w.Close()
		os.Stdin = r

		err = runAuthLogin(srv.URL, "")
		assert.ErrorContains(t, err, "API key cannot be empty")
	})
}

func TestAuthLoginFromStdin(t *testing.T) {
	isolate(t)
	srv := whoamiServer(t, "piped-key")

	origStdin := os.Stdin
	defer func() { os.Stdin = origStdin }()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	go func() {
		defer w.Close()
		io.WriteString(w, "piped-key\n")
	}()
	os.Stdin = r

	require.NoError(t, runAuthLogin(srv.URL, ""))
	cred, _ := getCredential(srv.URL)
	assert.Equal(t, "piped-key", cred.APIKey)
}

func TestAuthLoginServerDown(t *testing.T) {
	isolate(t)
	srv := whoamiServer(t, "k")
	url := srv.URL
	srv.Close()

	err := runAuthLogin(url, "k")
	assert.ErrorContains(t, err, "failed to validate credentials")
}

// walletServer issues a fixed challenge and accepts only a valid personal
// signature over it.
func walletServer(t *testing.T) *httptest.Server {
	t.Helper()
	const message = "Sign in to splitledger\nNonce: abc"
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/auth/nonce":
			json.NewEncoder(w).Encode(map[string]any{"message": message, "expiresAt": expires})
		case "/api/v1/auth/login":
			var body struct{ Address, Message, Signature string }
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			sig, err := hexutil.Decode(body.Signature)
			if err != nil || len(sig) != 65 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			sig[64] -= 27
			pub, err := crypto.SigToPub(accounts.TextHash([]byte(body.Message)), sig)
			if err != nil || crypto.PubkeyToAddress(*pub).Hex() != body.Address || body.Message != message {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"bad signature"}}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"token": "session-for-" + body.Address, "expiresAt": expires})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthSignIn(t *testing.T) {
	isolate(t)
	srv := walletServer(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	keyFile := filepath.Join(t.TempDir(), "key.hex")
	require.NoError(t, os.WriteFile(keyFile, []byte(hexutil.Encode(crypto.FromECDSA(key))+"\n"), 0600))

	// An API key stored earlier must survive sign-in.
	require.NoError(t, updateCredential(srv.URL, func(c *ServerCredential) { c.APIKey = "kept" }))

	require.NoError(t, runAuthSignIn(srv.URL, keyFile))

	cred, ok := getCredential(srv.URL)
	require.True(t, ok)
	assert.Equal(t, "kept", cred.APIKey)
	assert.Equal(t, address, cred.Address)
	assert.Equal(t, "session-for-"+address, cred.Token)
	assert.True(t, cred.TokenExpiresAt.After(time.Now()))

	server = srv.URL
	assert.Equal(t, "session-for-"+address, getToken())
}

func TestAuthSignInFromEnv(t *testing.T) {
	isolate(t)
	srv := walletServer(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	t.Setenv("SPLITLEDGER_PRIVATE_KEY", hexutil.Encode(crypto.FromECDSA(key)))

	require.NoError(t, runAuthSignIn(srv.URL, ""))
	cred, _ := getCredential(srv.URL)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), cred.Address)
}

func TestLoadPrivateKeyRejectsGarbage(t *testing.T) {
	isolate(t)

	keyFile := filepath.Join(t.TempDir(), "key.hex")
	require.NoError(t, os.WriteFile(keyFile, []byte("not-a-key"), 0600))
	_, err := loadPrivateKey(keyFile)
	assert.ErrorContains(t, err, "invalid private key")

	_, err = loadPrivateKey(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "reading key file")
}

func TestAuthLogout(t *testing.T) {
	isolate(t)

	require.NoError(t, updateCredential("http://a", func(c *ServerCredential) { c.APIKey = "key-a" }))
	require.NoError(t, updateCredential("http://b", func(c *ServerCredential) { c.APIKey = "key-b" }))

	t.Run("single server", func(t *testing.T) {
		require.NoError(t, runAuthLogout("http://a", false))
		_, ok := getCredential("http://a")
		assert.False(t, ok)
		_, ok = getCredential("http://b")
		assert.True(t, ok)
	})

	t.Run("unknown server is not an error", func(t *testing.T) {
		assert.NoError(t, runAuthLogout("http://unknown", false))
	})

	t.Run("all", func(t *testing.T) {
		require.NoError(t, runAuthLogout("", true))
		_, err := os.Stat(credentialsFilePath())
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("all without credentials", func(t *testing.T) {
		assert.NoError(t, runAuthLogout("", true))
	})
}

func TestAuthStatus(t *testing.T) {
	isolate(t)
	assert.NoError(t, runAuthStatus())

	require.NoError(t, updateCredential("http://a", func(c *ServerCredential) { c.APIKey = "key-aaaaaaaaa" }))
	assert.NoError(t, runAuthStatus())
}

func TestDescribeCredential(t *testing.T) {
	assert.Equal(t, "empty", describeCredential(ServerCredential{}))
	assert.Equal(t, "ci, key: sl_key_a...mnop", describeCredential(ServerCredential{APIKey: "sl_key_abcdefghijklmnop", Name: "ci"}))

	expired := describeCredential(ServerCredential{Token: "t", Address: "0xabc", TokenExpiresAt: time.Now().Add(-time.Hour)})
	assert.Equal(t, "wallet 0xabc, session expired", expired)
}

func TestCredentialFilePermissions(t *testing.T) {
	isolate(t)

	require.NoError(t, updateCredential("http://a", func(c *ServerCredential) { c.APIKey = "k" }))

	info, err := os.Stat(credentialsFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(credentialsDir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestReadSecretFromNonTerminal(t *testing.T) {
	origStdin := os.Stdin
	defer func() { os.Stdin = origStdin }()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	go func() {
		defer w.Close()
		io.WriteString(w, "  secret-value  \n")
	}()
	os.Stdin = r

	got, err := readSecret("")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", got)
}
