package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between the SQL backends
type dialect struct {
	name    string
	rebind  func(query string) string
	timeArg func(t time.Time) any
}

var sqliteDialect = dialect{
	name:   "sqlite",
	rebind: func(q string) string { return q },
	timeArg: func(t time.Time) any {
		return formatTime(t.Truncate(time.Microsecond))
	},
}

var postgresDialect = dialect{
	name:   "postgres",
	rebind: rebindDollar,
	timeArg: func(t time.Time) any {
		return t.UTC().Truncate(time.Microsecond)
	},
}

// rebindDollar rewrites ? placeholders to $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqlStore implements the Store operations shared by both backends. Schema
// creation and connection setup live in the backend files.
type sqlStore struct {
	db      *sql.DB
	logger  *slog.Logger
	dialect dialect
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *sqlStore) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *sqlStore) ts(t time.Time) any {
	return s.dialect.timeArg(t)
}

func (s *sqlStore) nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return s.dialect.timeArg(*t)
}

// Ping checks the database connection
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- split requests ---

const splitColumns = `id, creator, campaign_id, total_amount, status, dao_verification_required, created_at, updated_at`

var splitSortColumns = map[string]string{
	"created_at":   "created_at",
	"total_amount": "total_amount",
	"status":       "status",
}

// CreateSplitRequest inserts a request and all of its lines atomically
func (s *sqlStore) CreateSplitRequest(ctx context.Context, req *SplitRequest) error {
	if req.ID == "" {
		req.ID = generateID()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO split_requests (`+splitColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`), req.ID, req.Creator, req.CampaignID, req.TotalAmount, req.Status, req.DAOVerificationRequired,
			s.ts(req.CreatedAt), s.ts(req.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting split request: %w", err)
		}

		for i := range req.Lines {
			line := &req.Lines[i]
			line.Index = i
			_, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO split_lines (request_id, line_index, recipient, share_bp, amount, state, paid_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`), req.ID, i, line.Recipient, line.ShareBasisPoints, line.Amount, line.State, s.nullTS(line.PaidAt))
			if err != nil {
				return fmt.Errorf("inserting split line %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetSplitRequest retrieves a request with its lines in creation order
func (s *sqlStore) GetSplitRequest(ctx context.Context, id string) (*SplitRequest, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+splitColumns+` FROM split_requests WHERE id = ?`), id)
	req, err := scanSplitRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying split request: %w", err)
	}

	lines, err := s.loadLines(ctx, s.db, []string{id})
	if err != nil {
		return nil, err
	}
	req.Lines = lines[id]
	return req, nil
}

// ListSplitRequests lists requests with filtering, sorting and offset pagination
func (s *sqlStore) ListSplitRequests(ctx context.Context, filter SplitFilter, sort SortParams, pagination PaginationParams) (*PaginatedResult[SplitRequest], error) {
	limit, offset, err := pageBounds(pagination)
	if err != nil {
		return nil, err
	}

	var conds []string
	var args []any
	if filter.Creator != "" {
		conds = append(conds, "creator = ?")
		args = append(args, filter.Creator)
	}
	if filter.CampaignID != "" {
		conds = append(conds, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + splitColumns + ` FROM split_requests` + whereClause(conds) +
		orderBy(sort, splitSortColumns, " ORDER BY created_at DESC, id DESC", "id") +
		` LIMIT ? OFFSET ?`
	args = append(args, limit+1, offset)

	reqs, err := s.querySplitRequests(ctx, query, args)
	if err != nil {
		return nil, err
	}

	hasMore := len(reqs) > limit
	if hasMore {
		reqs = reqs[:limit]
	}

	if len(reqs) > 0 {
		ids := make([]string, len(reqs))
		for i := range reqs {
			ids[i] = reqs[i].ID
		}
		lines, err := s.loadLines(ctx, s.db, ids)
		if err != nil {
			return nil, err
		}
		for i := range reqs {
			reqs[i].Lines = lines[reqs[i].ID]
		}
	}

	result := &PaginatedResult[SplitRequest]{Data: reqs, HasMore: hasMore}
	if hasMore {
		result.NextCursor = strconv.Itoa(offset + limit)
	}
	return result, nil
}

func (s *sqlStore) querySplitRequests(ctx context.Context, query string, args []any) ([]SplitRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing split requests: %w", err)
	}
	defer rows.Close()

	var reqs []SplitRequest
	for rows.Next() {
		req, err := scanSplitRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning split request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func (s *sqlStore) loadLines(ctx context.Context, q queryer, ids []string) (map[string][]SplitLine, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, s.q(`
		SELECT request_id, line_index, recipient, share_bp, amount, state, paid_at
		FROM split_lines
		WHERE request_id IN (`+placeholders+`)
		ORDER BY request_id, line_index
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("querying split lines: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]SplitLine, len(ids))
	for rows.Next() {
		var requestID string
		var l SplitLine
		if err := rows.Scan(&requestID, &l.Index, &l.Recipient, &l.ShareBasisPoints, &l.Amount, &l.State, nullTime{&l.PaidAt}); err != nil {
			return nil, fmt.Errorf("scanning split line: %w", err)
		}
		out[requestID] = append(out[requestID], l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSplitRequest(row rowScanner) (*SplitRequest, error) {
	var r SplitRequest
	err := row.Scan(&r.ID, &r.Creator, &r.CampaignID, &r.TotalAmount, &r.Status, &r.DAOVerificationRequired,
		dbTime{&r.CreatedAt}, dbTime{&r.UpdatedAt})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateSplitStatus moves a request from one status to another
func (s *sqlStore) UpdateSplitStatus(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE split_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		to, s.ts(time.Now()), id, from)
	if err != nil {
		return fmt.Errorf("updating split status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating split status: %w", err)
	}
	if n == 1 {
		return nil
	}
	return s.splitMissOrConflict(ctx, s.db, id)
}

// splitMissOrConflict explains a conditional update that matched no row
func (s *sqlStore) splitMissOrConflict(ctx context.Context, q queryer, id string) error {
	var count int
	if err := q.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM split_requests WHERE id = ?`), id).Scan(&count); err != nil {
		return fmt.Errorf("checking split request: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

// MarkLinePaid applies a conditional update so a line can only be paid once.
// The request row is written first so that concurrent payments on the same
// request serialize on its row lock and each one derives the status from
// committed line states.
func (s *sqlStore) MarkLinePaid(ctx context.Context, id, recipient string, paidAt time.Time) (*LinePayment, error) {
	var out LinePayment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE split_requests SET status = status WHERE id = ? AND status <> 'rejected'`), id)
		if err != nil {
			return fmt.Errorf("locking split request: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("locking split request: %w", err)
		} else if n == 0 {
			return s.splitMissOrConflict(ctx, tx, id)
		}

		res, err = tx.ExecContext(ctx, s.q(`
			UPDATE split_lines SET state = 'paid', paid_at = ?
			WHERE request_id = ? AND recipient = ? AND state = 'unpaid'
		`), s.ts(paidAt), id, recipient)
		if err != nil {
			return fmt.Errorf("marking line paid: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("marking line paid: %w", err)
		}
		if n == 0 {
			var count int
			err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM split_lines WHERE request_id = ? AND recipient = ?`),
				id, recipient).Scan(&count)
			if err != nil {
				return fmt.Errorf("checking split line: %w", err)
			}
			if count == 0 {
				return ErrNotFound
			}
		}
		out.Paid = n == 1

		var paid, total int
		err = tx.QueryRowContext(ctx, s.q(`
			SELECT COALESCE(SUM(CASE WHEN state = 'paid' THEN 1 ELSE 0 END), 0), COUNT(*)
			FROM split_lines WHERE request_id = ?
		`), id).Scan(&paid, &total)
		if err != nil {
			return fmt.Errorf("counting paid lines: %w", err)
		}
		if err := tx.QueryRowContext(ctx, s.q(`SELECT status FROM split_requests WHERE id = ?`), id).Scan(&out.PrevStatus); err != nil {
			return fmt.Errorf("reading split status: %w", err)
		}

		out.Status = out.PrevStatus
		switch {
		case total > 0 && paid == total:
			out.Status = "fulfilled"
		case paid > 0:
			out.Status = "partially_fulfilled"
		}

		if !out.Paid && out.Status == out.PrevStatus {
			return nil
		}
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE split_requests SET status = ?, updated_at = ? WHERE id = ?`),
			out.Status, s.ts(paidAt), id); err != nil {
			return fmt.Errorf("updating split status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- DAO verification records ---

const daoColumns = `campaign_id, address, status, updated_at, updated_by`

var daoSortColumns = map[string]string{
	"updated_at": "updated_at",
	"status":     "status",
	"campaign":   "campaign_id",
}

// GetOrCreateDAORecord inserts the seed record unless one already exists
func (s *sqlStore) GetOrCreateDAORecord(ctx context.Context, seed *DAORecord) (*DAORecord, bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO dao_records (`+daoColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, address) DO NOTHING
	`), seed.CampaignID, seed.Address, seed.Status, s.ts(seed.UpdatedAt), seed.UpdatedBy)
	if err != nil {
		return nil, false, fmt.Errorf("inserting dao record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("inserting dao record: %w", err)
	}

	rec, err := s.GetDAORecord(ctx, seed.CampaignID, seed.Address)
	if err != nil {
		return nil, false, err
	}
	return rec, n == 1, nil
}

// GetDAORecord retrieves a record by campaign and address
func (s *sqlStore) GetDAORecord(ctx context.Context, campaignID, address string) (*DAORecord, error) {
	var r DAORecord
	err := s.db.QueryRowContext(ctx, s.q(`SELECT `+daoColumns+` FROM dao_records WHERE campaign_id = ? AND address = ?`),
		campaignID, address).Scan(&r.CampaignID, &r.Address, &r.Status, dbTime{&r.UpdatedAt}, &r.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying dao record: %w", err)
	}
	return &r, nil
}

// UpsertDAORecord creates or supersedes the record for (campaign, address)
func (s *sqlStore) UpsertDAORecord(ctx context.Context, rec *DAORecord) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO dao_records (`+daoColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, address) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`), rec.CampaignID, rec.Address, rec.Status, s.ts(rec.UpdatedAt), rec.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upserting dao record: %w", err)
	}
	return nil
}

// ListDAORecords lists at most filter.Limit records matching filter
func (s *sqlStore) ListDAORecords(ctx context.Context, filter DAOFilter, sort SortParams) ([]DAORecord, error) {
	var conds []string
	var args []any
	if filter.CampaignID != "" {
		conds = append(conds, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}
	if filter.Address != "" {
		conds = append(conds, "address = ?")
		args = append(args, filter.Address)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + daoColumns + ` FROM dao_records` + whereClause(conds) +
		orderBy(sort, daoSortColumns, " ORDER BY updated_at DESC, address DESC", "address") +
		" LIMIT ?"
	limit := filter.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing dao records: %w", err)
	}
	defer rows.Close()

	var records []DAORecord
	for rows.Next() {
		var r DAORecord
		if err := rows.Scan(&r.CampaignID, &r.Address, &r.Status, dbTime{&r.UpdatedAt}, &r.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scanning dao record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- recurring plans ---

const planColumns = `id, campaign_id, payer, chain_id, amount, interval_seconds, next_due_at, active, created_at`

// CreatePlan inserts a recurring plan
func (s *sqlStore) CreatePlan(ctx context.Context, plan *RecurringPlan) error {
	if plan.ID == "" {
		plan.ID = generateID()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO recurring_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), plan.ID, plan.CampaignID, plan.Payer, plan.ChainID, plan.Amount, int64(plan.Interval/time.Second),
		s.ts(plan.NextDueAt), plan.Active, s.ts(plan.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by id
func (s *sqlStore) GetPlan(ctx context.Context, id string) (*RecurringPlan, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+planColumns+` FROM recurring_plans WHERE id = ?`), id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying plan: %w", err)
	}
	return p, nil
}

// ListPlans lists plans newest first
func (s *sqlStore) ListPlans(ctx context.Context, filter PlanFilter, pagination PaginationParams) (*PaginatedResult[RecurringPlan], error) {
	limit, offset, err := pageBounds(pagination)
	if err != nil {
		return nil, err
	}

	var conds []string
	var args []any
	if filter.CampaignID != "" {
		conds = append(conds, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}
	if filter.Payer != "" {
		conds = append(conds, "payer = ?")
		args = append(args, filter.Payer)
	}
	if filter.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, *filter.Active)
	}

	query := `SELECT ` + planColumns + ` FROM recurring_plans` + whereClause(conds) +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit+1, offset)

	plans, err := s.queryPlans(ctx, query, args)
	if err != nil {
		return nil, err
	}

	hasMore := len(plans) > limit
	if hasMore {
		plans = plans[:limit]
	}
	result := &PaginatedResult[RecurringPlan]{Data: plans, HasMore: hasMore}
	if hasMore {
		result.NextCursor = strconv.Itoa(offset + limit)
	}
	return result, nil
}

// DeactivatePlan marks a plan inactive
func (s *sqlStore) DeactivatePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE recurring_plans SET active = ? WHERE id = ?`), false, id)
	if err != nil {
		return fmt.Errorf("deactivating plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivating plan: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDuePlans returns active plans whose next occurrence is at or before now
func (s *sqlStore) ListDuePlans(ctx context.Context, now time.Time, limit int) ([]RecurringPlan, error) {
	if limit <= 0 {
		limit = maxPageSize
	}
	return s.queryPlans(ctx, `SELECT `+planColumns+` FROM recurring_plans
		WHERE active = ? AND next_due_at <= ?
		ORDER BY next_due_at ASC, id ASC LIMIT ?`, []any{true, s.ts(now), limit})
}

// AdvancePlan compares-and-sets next_due_at
func (s *sqlStore) AdvancePlan(ctx context.Context, id string, prev, next time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE recurring_plans SET next_due_at = ?
		WHERE id = ? AND next_due_at = ? AND active = ?
	`), s.ts(next), id, s.ts(prev), true)
	if err != nil {
		return false, fmt.Errorf("advancing plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advancing plan: %w", err)
	}
	return n == 1, nil
}

func (s *sqlStore) queryPlans(ctx context.Context, query string, args []any) ([]RecurringPlan, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	var plans []RecurringPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func scanPlan(row rowScanner) (*RecurringPlan, error) {
	var p RecurringPlan
	var intervalSeconds int64
	err := row.Scan(&p.ID, &p.CampaignID, &p.Payer, &p.ChainID, &p.Amount, &intervalSeconds,
		dbTime{&p.NextDueAt}, &p.Active, dbTime{&p.CreatedAt})
	if err != nil {
		return nil, err
	}
	p.Interval = time.Duration(intervalSeconds) * time.Second
	return &p, nil
}

// --- deployments ---

const deploymentColumns = `id, contract, chain_id, address, version, delegation_manager, owner, tx_hash, created_at`

// RecordDeployment records a deployment; a second record for the same
// (chain, address) returns ErrAlreadyExists
func (s *sqlStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO deployments (`+deploymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, address) DO NOTHING
	`), d.ID, d.Contract, d.ChainID, d.Address, d.Version, d.DelegationManager, d.Owner, d.TxHash, s.ts(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting deployment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting deployment: %w", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetDeployment retrieves a deployment by chain and address
func (s *sqlStore) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+deploymentColumns+` FROM deployments WHERE chain_id = ? AND address = ?`),
		chainID, address)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying deployment: %w", err)
	}
	return d, nil
}

// ListDeployments lists deployments newest first
func (s *sqlStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	limit, offset, err := pageBounds(pagination)
	if err != nil {
		return nil, err
	}

	var conds []string
	var args []any
	if filter.ChainID != 0 {
		conds = append(conds, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.Contract != "" {
		conds = append(conds, "contract = ?")
		args = append(args, filter.Contract)
	}
	if filter.Owner != "" {
		conds = append(conds, "owner = ?")
		args = append(args, filter.Owner)
	}

	query := `SELECT ` + deploymentColumns + ` FROM deployments` + whereClause(conds) +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deployment: %w", err)
		}
		deployments = append(deployments, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(deployments) > limit
	if hasMore {
		deployments = deployments[:limit]
	}
	result := &PaginatedResult[Deployment]{Data: deployments, HasMore: hasMore}
	if hasMore {
		result.NextCursor = strconv.Itoa(offset + limit)
	}
	return result, nil
}

func scanDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	err := row.Scan(&d.ID, &d.Contract, &d.ChainID, &d.Address, &d.Version, &d.DelegationManager, &d.Owner, &d.TxHash, dbTime{&d.CreatedAt})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// --- API keys ---

// CreateAPIKey creates a new API key and returns the plaintext once
func (s *sqlStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, ?)`),
		generateID(), hashAPIKey(key), name, s.ts(time.Now()))
	if err != nil {
		return "", fmt.Errorf("inserting api key: %w", err)
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *sqlStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	var ak APIKey
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL`),
		hashAPIKey(key)).Scan(&ak.ID, &ak.KeyHash, &ak.Name, dbTime{&ak.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}

	// Update last used
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`), s.ts(time.Now()), ak.ID); err != nil {
		s.logger.Warn("failed to update api key last use", "key_id", ak.ID, "error", err)
	}
	return &ak, nil
}

// ListAPIKeys lists all active API keys
func (s *sqlStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, dbTime{&k.CreatedAt}, nullTime{&k.LastUsedAt}); err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *sqlStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`), s.ts(time.Now()), id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
