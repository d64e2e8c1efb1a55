// Package client provides a Go client for the splitledger API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a splitledger API client
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithToken sets a session token obtained from wallet sign-in. Authority
// actions (verification decisions, rejections) need one.
func WithToken(token string) Option {
	return func(client *Client) {
		client.token = token
	}
}

// New creates a new splitledger client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Split is a split payment request.
type Split struct {
	ID                      string    `json:"id"`
	Creator                 string    `json:"creator"`
	CampaignID              string    `json:"campaignId,omitempty"`
	TotalAmount             int64     `json:"totalAmount"`
	Status                  string    `json:"status"`
	DAOVerificationRequired bool      `json:"daoVerificationRequired"`
	Progress                float64   `json:"progress"`
	Lines                   []Line    `json:"lines"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// Line is one recipient's share of a split.
type Line struct {
	Recipient        string     `json:"recipient"`
	ShareBasisPoints int        `json:"shareBasisPoints"`
	Amount           int64      `json:"amount,omitempty"`
	State            string     `json:"state,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

// CreateSplitRequest is the request for creating a split.
type CreateSplitRequest struct {
	Creator                 string `json:"creator,omitempty"`
	CampaignID              string `json:"campaignId,omitempty"`
	DAOVerificationRequired bool   `json:"daoVerificationRequired"`
	TotalAmount             int64  `json:"totalAmount"`
	Lines                   []Line `json:"lines"`
}

// Progress is the derived payment progress of a split.
type Progress struct {
	RequestID   string  `json:"requestId"`
	Status      string  `json:"status"`
	Percent     float64 `json:"percent"`
	PaidAmount  int64   `json:"paidAmount"`
	TotalAmount int64   `json:"totalAmount"`
	PaidLines   int     `json:"paidLines"`
	TotalLines  int     `json:"totalLines"`
}

// SplitFilter narrows ListSplits.
type SplitFilter struct {
	Creator  string
	Campaign string
	Status   string
	Limit    int
	Cursor   string
}

// DAORecord is a verification record for one address in one campaign.
type DAORecord struct {
	CampaignID string    `json:"campaignId"`
	Address    string    `json:"address"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt"`
	UpdatedBy  string    `json:"updatedBy,omitempty"`
}

// Plan is a recurring payment plan.
type Plan struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaignId"`
	Payer           string    `json:"payer"`
	ChainID         int64     `json:"chainId"`
	Amount          int64     `json:"amount"`
	IntervalSeconds int64     `json:"intervalSeconds"`
	NextDueAt       time.Time `json:"nextDueAt"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CreatePlanRequest is the request for creating a plan.
type CreatePlanRequest struct {
	CampaignID      string     `json:"campaignId"`
	Payer           string     `json:"payer,omitempty"`
	ChainID         int64      `json:"chainId"`
	Amount          int64      `json:"amount"`
	IntervalSeconds int64      `json:"intervalSeconds"`
	StartAt         *time.Time `json:"startAt,omitempty"`
}

// Deployment is a recorded delegator contract deployment.
type Deployment struct {
	ID                string    `json:"id,omitempty"`
	Contract          string    `json:"contract,omitempty"`
	ChainID           int64     `json:"chainId"`
	Address           string    `json:"address"`
	Version           string    `json:"version"`
	DelegationManager string    `json:"delegationManager"`
	Owner             string    `json:"owner"`
	TxHash            string    `json:"txHash,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitzero"`
}

// Challenge is the sign-in message a wallet must sign.
type Challenge struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Session is an issued session token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Page is one page of a list response.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Splits

// CreateSplit creates a split payment request.
func (c *Client) CreateSplit(ctx context.Context, req CreateSplitRequest) (*Split, error) {
	var resp Split
	if err := c.send(ctx, http.MethodPost, "/api/v1/splits", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSplit gets a split by id.
func (c *Client) GetSplit(ctx context.Context, id string) (*Split, error) {
	var resp Split
	if err := c.get(ctx, "/api/v1/splits/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSplits lists split requests.
func (c *Client) ListSplits(ctx context.Context, f SplitFilter) (*Page[Split], error) {
	q := url.Values{}
	setIf(q, "creator", f.Creator)
	setIf(q, "campaign", f.Campaign)
	setIf(q, "status", f.Status)
	setIf(q, "cursor", f.Cursor)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var resp Page[Split]
	if err := c.get(ctx, "/api/v1/splits", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProgress gets the payment progress of a split.
func (c *Client) GetProgress(ctx context.Context, id string) (*Progress, error) {
	var resp Progress
	if err := c.get(ctx, "/api/v1/splits/"+url.PathEscape(id)+"/progress", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkLinePaid marks the recipient's line as paid.
func (c *Client) MarkLinePaid(ctx context.Context, id, recipient string) (*Split, error) {
	var resp Split
	path := fmt.Sprintf("/api/v1/splits/%s/lines/%s/paid", url.PathEscape(id), url.PathEscape(recipient))
	if err := c.send(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RejectSplit rejects a pending split. Requires an authority session.
func (c *Client) RejectSplit(ctx context.Context, id string) (*Split, error) {
	var resp Split
	if err := c.send(ctx, http.MethodPost, "/api/v1/splits/"+url.PathEscape(id)+"/reject", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DAO verification

// CheckMembership returns the verification record for address in campaign,
// creating a pending one if none exists.
func (c *Client) CheckMembership(ctx context.Context, campaign, address string) (*DAORecord, error) {
	var resp DAORecord
	if err := c.get(ctx, daoPath(campaign, address), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetVerification records an authority decision. Requires an authority session.
func (c *Client) SetVerification(ctx context.Context, campaign, address, status string) (*DAORecord, error) {
	var resp DAORecord
	body := map[string]string{"status": status}
	if err := c.send(ctx, http.MethodPut, daoPath(campaign, address), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDAORecords lists verification records, optionally by campaign and status.
func (c *Client) ListDAORecords(ctx context.Context, campaign, status string) ([]DAORecord, error) {
	q := url.Values{}
	setIf(q, "campaign", campaign)
	setIf(q, "status", status)

	var resp struct {
		Data []DAORecord `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/dao", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func daoPath(campaign, address string) string {
	return fmt.Sprintf("/api/v1/dao/%s/%s", url.PathEscape(campaign), url.PathEscape(address))
}

// Recurring plans

// CreatePlan creates a recurring payment plan.
func (c *Client) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	var resp Plan
	if err := c.send(ctx, http.MethodPost, "/api/v1/plans", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPlan gets a plan by id.
func (c *Client) GetPlan(ctx context.Context, id string) (*Plan, error) {
	var resp Plan
	if err := c.get(ctx, "/api/v1/plans/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPlans lists plans, optionally by campaign and payer.
func (c *Client) ListPlans(ctx context.Context, campaign, payer string, limit int) (*Page[Plan], error) {
	q := url.Values{}
	setIf(q, "campaign", campaign)
	setIf(q, "payer", payer)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp Page[Plan]
	if err := c.get(ctx, "/api/v1/plans", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelPlan deactivates a plan. Requires the payer's session.
func (c *Client) CancelPlan(ctx context.Context, id string) (*Plan, error) {
	var resp Plan
	if err := c.send(ctx, http.MethodPost, "/api/v1/plans/"+url.PathEscape(id)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Deployments

// RecordDeployment records a delegator deployment.
func (c *Client) RecordDeployment(ctx context.Context, d Deployment) (*Deployment, error) {
	var resp Deployment
	if err := c.send(ctx, http.MethodPost, "/api/v1/deployments", d, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeployment gets a deployment by chain ID and address
func (c *Client) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%d/%s", chainID, url.PathEscape(address))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDeployments lists deployments, optionally by chain and owner.
func (c *Client) ListDeployments(ctx context.Context, chainID int64, owner string, limit int) (*Page[Deployment], error) {
	q := url.Values{}
	if chainID > 0 {
		q.Set("chain_id", strconv.FormatInt(chainID, 10))
	}
	setIf(q, "owner", owner)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp Page[Deployment]
	if err := c.get(ctx, "/api/v1/deployments", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Wallet sign-in

// Nonce requests a sign-in challenge for address.
func (c *Client) Nonce(ctx context.Context, address string) (*Challenge, error) {
	var resp Challenge
	if err := c.get(ctx, "/api/v1/auth/nonce", url.Values{"address": {address}}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges a signed challenge for a session token.
func (c *Client) Login(ctx context.Context, address, message, signature string) (*Session, error) {
	var resp Session
	body := map[string]string{"address": address, "message": message, "signature": signature}
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Whoami decodes the server's view of the client's credentials into result.
// It fails with a 401 APIError when no valid credential was sent.
func (c *Client) Whoami(ctx context.Context, result any) error {
	return c.get(ctx, "/api/v1/whoami", nil, result)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.Status = resp.StatusCode
	return &errResp.Error
}
