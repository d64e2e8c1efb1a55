package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/splitledger/internal/apperr"
	"github.com/pendergraft/splitledger/internal/auth"
	"github.com/pendergraft/splitledger/internal/dao/domain"
	splits "github.com/pendergraft/splitledger/internal/splits/domain"
)

const (
	member  = "0x1111111111111111111111111111111111111111"
	officer = "0x9999999999999999999999999999999999999999"
)

// mockService implements Service for testing
type mockService struct {
	records    map[string]*domain.Record
	err        error
	lastFilter domain.ListFilter
}

func newMockService() *mockService {
	return &mockService{records: make(map[string]*domain.Record)}
}

func (m *mockService) Membership(ctx context.Context, campaignID, address string) (*domain.Record, error) {
	if m.err != nil {
		return nil, m.err
	}
	key := campaignID + "/" + address
	if rec, ok := m.records[key]; ok {
		return rec, nil
	}
	rec := &domain.Record{CampaignID: campaignID, Address: address, Status: domain.StatusPendingVerification, UpdatedAt: time.Now()}
	m.records[key] = rec
	return rec, nil
}

func (m *mockService) SetVerification(ctx context.Context, campaignID, address string, status domain.Status, actor string) (*domain.Record, error) {
	if actor != officer {
		return nil, apperr.Authorization("dao.SetVerification", "actor="+actor, domain.ErrForbidden)
	}
	rec := &domain.Record{CampaignID: campaignID, Address: address, Status: status, UpdatedBy: actor, UpdatedAt: time.Now()}
	m.records[campaignID+"/"+address] = rec
	return rec, nil
}

func (m *mockService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Record, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Record
	for _, r := range m.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

type mockSplits struct {
	requests []splits.SplitRequest
	err      error
}

func (m *mockSplits) List(ctx context.Context, filter splits.ListFilter, pagination splits.PaginationParams) (*splits.ListResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &splits.ListResult{Requests: m.requests}, nil
}

func setup(svc *mockService, sl SplitLister) *chi.Mux {
	h := NewHandler(svc, sl, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Get("/api/dao", h.LegacyHandler())
	r.Route("/api/v1/dao", func(r chi.Router) {
		h.RegisterReadRoutes(r)
		h.RegisterWriteRoutes(r)
	})
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleCheck(t *testing.T) {
	svc := newMockService()
	r := setup(svc, nil)

	rec := do(r, httptest.NewRequest("GET", "/api/v1/dao/grants/"+member, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "pending_verification", resp.Status)
	assert.Equal(t, "grants", resp.CampaignID)
	assert.Equal(t, member, resp.Address)

	svc.err = apperr.Validation("dao.CheckMembership", "address", domain.ErrInvalidAddress)
	rec = do(r, httptest.NewRequest("GET", "/api/v1/dao/grants/0xB", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSet(t *testing.T) {
	svc := newMockService()
	r := setup(svc, nil)

	body := `{"status":"verified"}`
	rec := do(r, httptest.NewRequest("PUT", "/api/v1/dao/grants/"+member, bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest("PUT", "/api/v1/dao/grants/"+member, bytes.NewBufferString(body))
	req = req.WithContext(auth.WithActor(req.Context(), officer))
	rec = do(r, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RecordResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "verified", resp.Status)
	assert.Equal(t, officer, resp.UpdatedBy)
}

func TestHandleSet_InvalidBody(t *testing.T) {
	r := setup(newMockService(), nil)

	for _, body := range []string{`{`, `{}`, `{"status":"approved"}`} {
		rec := do(r, httptest.NewRequest("PUT", "/api/v1/dao/grants/"+member, bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandleList(t *testing.T) {
	svc := newMockService()
	svc.records["a/"+member] = &domain.Record{CampaignID: "a", Address: member, Status: domain.StatusVerified}
	svc.records["b/"+member] = &domain.Record{CampaignID: "b", Address: member, Status: domain.StatusRejected}

	rec := do(setup(svc, nil), httptest.NewRequest("GET", "/api/v1/dao/?status=verified", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []RecordResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "a", resp.Data[0].CampaignID)
}

type legacyBody struct {
	Success bool              `json:"success"`
	Data    []json.RawMessage `json:"data"`
	Count   int               `json:"count"`
	Error   string            `json:"error"`
}

func decodeLegacy(t *testing.T, rec *httptest.ResponseRecorder) legacyBody {
	t.Helper()
	var body legacyBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestLegacy_Records(t *testing.T) {
	svc := newMockService()
	svc.records["a/"+member] = &domain.Record{CampaignID: "a", Address: member, Status: domain.StatusVerified}

	rec := do(setup(svc, nil), httptest.NewRequest("GET", "/api/dao", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeLegacy(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Count)
	assert.Len(t, body.Data, 1)
	assert.Equal(t, legacyLimit, svc.lastFilter.Limit)
}

func TestLegacy_Empty(t *testing.T) {
	rec := do(setup(newMockService(), nil), httptest.NewRequest("GET", "/api/dao?kind=records", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestLegacy_Splits(t *testing.T) {
	sl := &mockSplits{requests: []splits.SplitRequest{
		{ID: "req-1", Creator: member, TotalAmount: 100, Status: splits.StatusPending},
		{ID: "req-2", Creator: member, TotalAmount: 200, Status: splits.StatusFulfilled},
	}}

	rec := do(setup(newMockService(), sl), httptest.NewRequest("GET", "/api/dao?kind=splits", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeLegacy(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Count)
	assert.Contains(t, string(body.Data[0]), `"id":"req-1"`)
}

func TestLegacy_Failure(t *testing.T) {
	svc := newMockService()
	svc.err = apperr.Persistence("dao.List", "", errors.New("database is locked"))

	rec := do(setup(svc, nil), httptest.NewRequest("GET", "/api/dao", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, map[string]any{"success": false, "error": "Failed to load DAO data"}, raw)
	assert.NotContains(t, rec.Body.String(), "database is locked")

	sl := &mockSplits{err: errors.New("boom")}
	rec = do(setup(newMockService(), sl), httptest.NewRequest("GET", "/api/dao?kind=splits", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, decodeLegacy(t, rec).Success)
}

func TestLegacy_UnknownKind(t *testing.T) {
	rec := do(setup(newMockService(), nil), httptest.NewRequest("GET", "/api/dao?kind=plans", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decodeLegacy(t, rec).Success)
}
