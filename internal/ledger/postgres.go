package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	userColumns = `id, display_name, email, role, wallet_balance, hold_balance, created_at, updated_at`

	transactionColumns = `id, seq, user_id, amount, type, status, description, reference_kind, reference_id,
        from_user_id, balance_before, balance_after, idempotency_key, created_at`

	holdColumns = `id, user_id, amount, hold_type, status, reference_kind, reference_id, description,
        expires_at, released_at, confirmed_at, release_reason, transaction_id, created_at`

	requestColumns = `r.id, r.requester_id, r.target_id, r.amount, r.request_type, r.status, r.requester_note,
        r.responder_note, r.payment_proof_url, r.payment_reference, r.processed_by, r.processed_at,
        r.transaction_id, r.created_at, r.updated_at, rq.display_name, tg.display_name`

	requestFrom = `deposit_requests r
        INNER JOIN users rq ON rq.id = r.requester_id
        INNER JOIN users tg ON tg.id = r.target_id`

	idempotencyIndex = "wallet_transactions_idempotency_key"
	activeHoldIndex  = "balance_holds_active_reference"
	userEmailIndex   = "users_email_key"
)

// PostgresStore persists the ledger in PostgreSQL and relies on explicit row
// locks (SELECT ... FOR UPDATE) inside each transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// WithTx runs fn inside a read-committed transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateUser inserts a user with zero balances.
func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.Exec(ctx, `INSERT INTO users (id, display_name, email, role, wallet_balance, hold_balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, 0, 0, $5, $5)`, user.ID, user.DisplayName, user.Email, user.Role, user.CreatedAt.UTC())
	if isUniqueViolation(err, userEmailIndex) {
		return ErrUserExists
	}
	return err
}

// User reads a user without locking.
func (s *PostgresStore) User(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

// Transactions pages through a user's ledger rows, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, filter TransactionFilter) (Page[WalletTransaction], error) {
	var w where
	w.add("user_id = $%d", filter.UserID)
	if filter.Type != "" {
		w.add("type = $%d", filter.Type)
	}

	page := Page[WalletTransaction]{Page: filter.Page, Limit: filter.Limit}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions`+w.sql(), w.args...).Scan(&page.Total); err != nil {
		return page, err
	}

	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions` + w.sql() +
		fmt.Sprintf(` ORDER BY created_at DESC, seq DESC LIMIT %d OFFSET %d`, filter.Limit, filter.Offset())
	rows, err := s.db.Query(ctx, query, w.args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, txn)
	}
	return page, rows.Err()
}

// Hold reads a hold without locking.
func (s *PostgresStore) Hold(ctx context.Context, id uuid.UUID) (BalanceHold, error) {
	hold, err := scanHold(s.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM balance_holds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceHold{}, ErrHoldNotFound
	}
	return hold, err
}

// Holds pages through holds, newest first.
func (s *PostgresStore) Holds(ctx context.Context, filter HoldFilter) (Page[BalanceHold], error) {
	var w where
	if filter.UserID != uuid.Nil {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}

	page := Page[BalanceHold]{Page: filter.Page, Limit: filter.Limit}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM balance_holds`+w.sql(), w.args...).Scan(&page.Total); err != nil {
		return page, err
	}

	query := `SELECT ` + holdColumns + ` FROM balance_holds` + w.sql() +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, filter.Limit, filter.Offset())
	rows, err := s.db.Query(ctx, query, w.args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, hold)
	}
	return page, rows.Err()
}

// DepositRequest reads a request with its display joins.
func (s *PostgresStore) DepositRequest(ctx context.Context, id uuid.UUID) (DepositRequest, error) {
	return readDepositRequest(ctx, s.db, id)
}

// DepositRequests pages through requests, newest first.
func (s *PostgresStore) DepositRequests(ctx context.Context, filter RequestFilter) (Page[DepositRequest], error) {
	var w where
	if filter.RequesterID != uuid.Nil {
		w.add("r.requester_id = $%d", filter.RequesterID)
	}
	if filter.TargetID != uuid.Nil {
		w.add("r.target_id = $%d", filter.TargetID)
	}
	if filter.Status != "" {
		w.add("r.status = $%d", filter.Status)
	}
	if filter.Type != "" {
		w.add("r.request_type = $%d", filter.Type)
	}

	page := Page[DepositRequest]{Page: filter.Page, Limit: filter.Limit}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM deposit_requests r`+w.sql(), w.args...).Scan(&page.Total); err != nil {
		return page, err
	}

	query := `SELECT ` + requestColumns + ` FROM ` + requestFrom + w.sql() +
		fmt.Sprintf(` ORDER BY r.created_at DESC, r.id LIMIT %d OFFSET %d`, filter.Limit, filter.Offset())
	rows, err := s.db.Query(ctx, query, w.args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		req, err := scanDepositRequest(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, req)
	}
	return page, rows.Err()
}

// PendingCounts counts pending requests addressed to and raised by userID.
func (s *PostgresStore) PendingCounts(ctx context.Context, userID uuid.UUID) (PendingCounts, error) {
	const query = `
        SELECT
            COUNT(*) FILTER (WHERE target_id = $1),
            COUNT(*) FILTER (WHERE requester_id = $1)
        FROM deposit_requests
        WHERE status = 'pending' AND (target_id = $1 OR requester_id = $1)`
	var counts PendingCounts
	err := s.db.QueryRow(ctx, query, userID).Scan(&counts.Incoming, &counts.Outgoing)
	return counts, err
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockUsers(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*User, error) {
	users := make(map[uuid.UUID]*User, len(ids))
	for _, id := range SortIDs(ids...) {
		row := t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		user, err := scanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
			}
			return nil, err
		}
		users[id] = &user
	}
	return users, nil
}

func (t *postgresTx) SaveBalances(ctx context.Context, user *User) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE users SET wallet_balance = $1, hold_balance = $2, updated_at = $3 WHERE id = $4`,
		user.WalletBalance, user.HoldBalance, user.UpdatedAt.UTC(), user.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, txn *WalletTransaction) error {
	const query = `INSERT INTO wallet_transactions (id, user_id, amount, type, status, description, reference_kind,
        reference_id, from_user_id, balance_before, balance_after, idempotency_key, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING seq`
	err := t.tx.QueryRow(ctx, query, txn.ID, txn.UserID, txn.Amount, txn.Type, txn.Status, txn.Description,
		txn.Reference.Kind, txn.Reference.ID, txn.FromUserID, txn.BalanceBefore, txn.BalanceAfter,
		nullString(txn.IdempotencyKey), txn.CreatedAt.UTC()).Scan(&txn.Seq)
	if isUniqueViolation(err, idempotencyIndex) {
		return ErrDuplicateTransaction
	}
	return err
}

func (t *postgresTx) TransactionsByIdempotencyKey(ctx context.Context, actor uuid.UUID, key string) ([]WalletTransaction, error) {
	rows, err := t.tx.Query(ctx, `WITH keyed AS (
            SELECT id, reference_kind, reference_id FROM wallet_transactions
            WHERE user_id = $2 AND idempotency_key = $1)
        SELECT `+transactionColumns+` FROM wallet_transactions w
        WHERE w.id IN (SELECT id FROM keyed)
           OR (w.from_user_id = $2 AND (w.reference_kind, w.reference_id) IN
               (SELECT reference_kind, reference_id FROM keyed))
        ORDER BY w.seq`, key, actor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WalletTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (t *postgresTx) InsertHold(ctx context.Context, hold *BalanceHold) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO balance_holds (id, user_id, amount, hold_type, status, reference_kind,
        reference_id, description, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		hold.ID, hold.UserID, hold.Amount, hold.Type, hold.Status, hold.Reference.Kind, hold.Reference.ID,
		hold.Description, hold.ExpiresAt, hold.CreatedAt.UTC())
	if isUniqueViolation(err, activeHoldIndex) {
		return ErrHoldExists
	}
	return err
}

func (t *postgresTx) LockHold(ctx context.Context, id uuid.UUID) (BalanceHold, error) {
	hold, err := scanHold(t.tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM balance_holds WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceHold{}, ErrHoldNotFound
	}
	return hold, err
}

func (t *postgresTx) LockActiveHoldByReference(ctx context.Context, ref Reference) (BalanceHold, error) {
	hold, err := scanHold(t.tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM balance_holds
        WHERE reference_kind = $1 AND reference_id = $2 AND status = 'active'
        FOR UPDATE`, ref.Kind, ref.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceHold{}, ErrHoldNotFound
	}
	return hold, err
}

func (t *postgresTx) LockExpiredHolds(ctx context.Context, now time.Time) ([]BalanceHold, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+holdColumns+` FROM balance_holds
        WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1
        ORDER BY id
        FOR UPDATE SKIP LOCKED`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceHold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, hold)
	}
	return out, rows.Err()
}

func (t *postgresTx) UpdateHold(ctx context.Context, hold BalanceHold) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE balance_holds
        SET status = $1, released_at = $2, confirmed_at = $3, release_reason = $4, transaction_id = $5
        WHERE id = $6`,
		hold.Status, hold.ReleasedAt, hold.ConfirmedAt, hold.ReleaseReason, hold.TransactionID, hold.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrHoldNotFound
	}
	return nil
}

func (t *postgresTx) InsertDepositRequest(ctx context.Context, req *DepositRequest) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO deposit_requests (id, requester_id, target_id, amount, request_type, status,
        requester_note, payment_proof_url, payment_reference, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		req.ID, req.RequesterID, req.TargetID, req.Amount, req.Type, req.Status, req.RequesterNote,
		req.PaymentProofURL, req.PaymentReference, req.CreatedAt.UTC())
	return err
}

// LockDepositRequest locks the bare request row first, then re-reads it with
// the display joins so the users rows are not locked by the join.
func (t *postgresTx) LockDepositRequest(ctx context.Context, id uuid.UUID) (DepositRequest, error) {
	var locked uuid.UUID
	if err := t.tx.QueryRow(ctx, `SELECT id FROM deposit_requests WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepositRequest{}, ErrRequestNotFound
		}
		return DepositRequest{}, err
	}
	return readDepositRequest(ctx, t.tx, id)
}

func (t *postgresTx) UpdateDepositRequest(ctx context.Context, req DepositRequest) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE deposit_requests
        SET status = $1, responder_note = $2, processed_by = $3, processed_at = $4, transaction_id = $5, updated_at = $6
        WHERE id = $7`,
		req.Status, req.ResponderNote, req.ProcessedBy, req.ProcessedAt, req.TransactionID, req.UpdatedAt.UTC(), req.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (t *postgresTx) CountPendingRequests(ctx context.Context, requesterID uuid.UUID) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM deposit_requests WHERE requester_id = $1 AND status = 'pending'`,
		requesterID).Scan(&count)
	return count, err
}

func readDepositRequest(ctx context.Context, q querier, id uuid.UUID) (DepositRequest, error) {
	req, err := scanDepositRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM `+requestFrom+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return DepositRequest{}, ErrRequestNotFound
	}
	return req, err
}

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.Role, &u.WalletBalance, &u.HoldBalance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func scanTransaction(row scanner) (WalletTransaction, error) {
	var (
		t   WalletTransaction
		key *string
	)
	err := row.Scan(&t.ID, &t.Seq, &t.UserID, &t.Amount, &t.Type, &t.Status, &t.Description, &t.Reference.Kind,
		&t.Reference.ID, &t.FromUserID, &t.BalanceBefore, &t.BalanceAfter, &key, &t.CreatedAt)
	if err != nil {
		return WalletTransaction{}, err
	}
	if key != nil {
		t.IdempotencyKey = *key
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func scanHold(row scanner) (BalanceHold, error) {
	var h BalanceHold
	err := row.Scan(&h.ID, &h.UserID, &h.Amount, &h.Type, &h.Status, &h.Reference.Kind, &h.Reference.ID,
		&h.Description, &h.ExpiresAt, &h.ReleasedAt, &h.ConfirmedAt, &h.ReleaseReason, &h.TransactionID, &h.CreatedAt)
	if err != nil {
		return BalanceHold{}, err
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return h, nil
}

func scanDepositRequest(row scanner) (DepositRequest, error) {
	var r DepositRequest
	err := row.Scan(&r.ID, &r.RequesterID, &r.TargetID, &r.Amount, &r.Type, &r.Status, &r.RequesterNote,
		&r.ResponderNote, &r.PaymentProofURL, &r.PaymentReference, &r.ProcessedBy, &r.ProcessedAt,
		&r.TransactionID, &r.CreatedAt, &r.UpdatedAt, &r.RequesterName, &r.TargetName)
	if err != nil {
		return DepositRequest{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
