package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/splitledger/internal/config"
	"github.com/pendergraft/splitledger/internal/storage"
)

const (
	creator = "0x1111111111111111111111111111111111111111"
	alice   = "0x2222222222222222222222222222222222222222"
	bob     = "0x3333333333333333333333333333333333333333"
)

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	store storage.Store
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Type:    "sqlite",
			SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ledger.db")},
			Timeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			Type:     "none",
			JWTTTL:   time.Hour,
			NonceTTL: time.Minute,
		},
		Security: config.SecurityConfig{FilterEnabled: true, MaxBodySizeKB: 64},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.New(cfg.Storage, logger)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	srv, err := New(cfg, store, nil, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		store.Close()
	})
	return &testEnv{srv: srv, http: ts, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func halves() []map[string]any {
	return []map[string]any{
		{"recipient": alice, "shareBasisPoints": 5000},
		{"recipient": bob, "shareBasisPoints": 5000},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	for _, path := range []string{"/health", "/healthz"} {
		resp, body := env.do(t, "GET", path, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
	}

	resp, body := env.do(t, "GET", "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["eventSubscribers"])
}

func TestSplitLifecycle(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp, created := env.do(t, "POST", "/api/v1/splits", map[string]any{
		"creator":     creator,
		"campaignId":  "grants",
		"totalAmount": 101,
		"lines":       halves(),
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, created)
	id := created["id"].(string)
	assert.Equal(t, "pending", created["status"])

	lines := created["lines"].([]any)
	assert.Equal(t, float64(51), lines[0].(map[string]any)["amount"])
	assert.Equal(t, float64(50), lines[1].(map[string]any)["amount"])

	resp, paid := env.do(t, "POST", "/api/v1/splits/"+id+"/lines/"+alice+"/paid", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, paid)
	assert.Equal(t, "partially_fulfilled", paid["status"])

	resp, progress := env.do(t, "GET", "/api/v1/splits/"+id+"/progress", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 5100.0/101, progress["percent"], 1e-9)

	resp, paid = env.do(t, "POST", "/api/v1/splits/"+id+"/lines/"+bob+"/paid", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fulfilled", paid["status"])
	assert.Equal(t, float64(100), paid["progress"])

	resp, legacy := env.do(t, "GET", "/api/dao?kind=splits", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, legacy["success"])
	assert.Equal(t, float64(1), legacy["count"])

	resp, _ = env.do(t, "GET", "/api/v1/splits/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSplitValidation(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp, body := env.do(t, "POST", "/api/v1/splits", map[string]any{
		"creator":     creator,
		"totalAmount": 100,
		"lines": []map[string]any{
			{"recipient": alice, "shareBasisPoints": 5000},
			{"recipient": bob, "shareBasisPoints": 4999},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", body["error"].(map[string]any)["code"])
}

func TestRequireJSON(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	req, err := http.NewRequest("POST", env.http.URL+"/api/v1/splits", bytes.NewBufferString("creator="+creator))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Type = "api-key"
	env := newTestEnv(t, cfg)

	split := map[string]any{"creator": creator, "totalAmount": 10, "lines": halves()}

	resp, _ := env.do(t, "POST", "/api/v1/splits", split, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, "GET", "/api/v1/splits", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads stay public")

	key, err := env.store.CreateAPIKey(context.Background(), "ci")
	require.NoError(t, err)

	resp, _ = env.do(t, "POST", "/api/v1/splits", split, map[string]string{"X-API-Key": key})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, who := env.do(t, "GET", "/api/v1/whoami", nil, map[string]string{"X-API-Key": key})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ci", who["apiKey"])

	resp, _ = env.do(t, "GET", "/api/v1/whoami", nil, map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func signIn(t *testing.T, env *testEnv, key *ecdsa.PrivateKey) string {
	t.Helper()

	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	resp, challenge := env.do(t, "GET", "/api/v1/auth/nonce?address="+address, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, challenge)
	message := challenge["message"].(string)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27

	resp, login := env.do(t, "POST", "/api/v1/auth/login", map[string]any{
		"address":   address,
		"message":   message,
		"signature": hexutil.Encode(sig),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, login)
	return login["token"].(string)
}

func TestAuthorityFlow(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	authority := crypto.PubkeyToAddress(key.PublicKey).Hex()

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.Authorities = []string{authority}
	env := newTestEnv(t, cfg)

	token := signIn(t, env, key)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	resp, who := env.do(t, "GET", "/api/v1/whoami", nil, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, authority, who["address"])

	resp, created := env.do(t, "POST", "/api/v1/splits", map[string]any{
		"creator":                 creator,
		"campaignId":              "grants",
		"daoVerificationRequired": true,
		"totalAmount":             10,
		"lines":                   halves(),
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, created)
	id := created["id"].(string)

	// gate closed until the creator is verified
	resp, _ = env.do(t, "POST", "/api/v1/splits/"+id+"/lines/"+alice+"/paid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, rec := env.do(t, "GET", "/api/v1/dao/grants/"+creator, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending_verification", rec["status"])

	resp, _ = env.do(t, "PUT", "/api/v1/dao/grants/"+creator, map[string]any{"status": "verified"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, rec = env.do(t, "PUT", "/api/v1/dao/grants/"+creator, map[string]any{"status": "verified"}, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode, rec)
	assert.Equal(t, authority, rec["updatedBy"])

	resp, paid := env.do(t, "POST", "/api/v1/splits/"+id+"/lines/"+alice+"/paid", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, paid)
	assert.Equal(t, "partially_fulfilled", paid["status"])

	// rejection only applies to pending requests
	resp, _ = env.do(t, "POST", "/api/v1/splits/"+id+"/reject", nil, bearer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, other := env.do(t, "POST", "/api/v1/splits", map[string]any{"creator": creator, "totalAmount": 10, "lines": halves()}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	otherID := other["id"].(string)

	resp, _ = env.do(t, "POST", "/api/v1/splits/"+otherID+"/reject", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, rejected := env.do(t, "POST", "/api/v1/splits/"+otherID+"/reject", nil, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", rejected["status"])
}

func TestWalletSignInDisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	resp, _ := env.do(t, "GET", "/api/v1/auth/nonce?address="+creator, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlansAndDeployments(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp, plan := env.do(t, "POST", "/api/v1/plans", map[string]any{
		"campaignId":      "grants",
		"payer":           creator,
		"chainId":         8453,
		"amount":          5,
		"intervalSeconds": 3600,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, plan)
	assert.Equal(t, true, plan["active"])

	resp, _ = env.do(t, "GET", "/api/v1/plans/"+plan["id"].(string), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	deployment := map[string]any{
		"chainId":           8453,
		"address":           alice,
		"version":           "1.3.0",
		"delegationManager": bob,
		"owner":             creator,
	}
	resp, d := env.do(t, "POST", "/api/v1/deployments", deployment, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, d)

	resp, _ = env.do(t, "POST", "/api/v1/deployments", deployment, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, d = env.do(t, "GET", "/api/v1/deployments/8453/"+alice, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1.3.0", d["version"])
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	wsURL := "ws" + env.http.URL[len("http"):] + "/api/v1/events?types=split."
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.srv.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, created := env.do(t, "POST", "/api/v1/splits", map[string]any{"creator": creator, "totalAmount": 10, "lines": halves()}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "split.created", event["type"])
	assert.Equal(t, created["id"], event["subject"])
}

func TestBlocksScannerTraffic(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	resp, _ := env.do(t, "GET", "/wp-admin/", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
