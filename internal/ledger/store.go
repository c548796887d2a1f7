package ledger

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Store is the single source of truth for balances. Every balance-mutating
// operation runs inside WithTx; the read methods never take row locks.
type Store interface {
	// WithTx runs fn in one database transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateUser(ctx context.Context, user User) error
	User(ctx context.Context, id uuid.UUID) (User, error)
	Transactions(ctx context.Context, filter TransactionFilter) (Page[WalletTransaction], error)
	Hold(ctx context.Context, id uuid.UUID) (BalanceHold, error)
	Holds(ctx context.Context, filter HoldFilter) (Page[BalanceHold], error)
	DepositRequest(ctx context.Context, id uuid.UUID) (DepositRequest, error)
	DepositRequests(ctx context.Context, filter RequestFilter) (Page[DepositRequest], error)
	PendingCounts(ctx context.Context, userID uuid.UUID) (PendingCounts, error)
}

// Tx exposes the locked reads and writes available inside WithTx.
type Tx interface {
	// LockUsers locks the given user rows in ascending id order, whatever the
	// order of ids, and returns them keyed by id. Duplicates are ignored.
	LockUsers(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*User, error)
	// SaveBalances persists WalletBalance and HoldBalance of a locked user.
	SaveBalances(ctx context.Context, user *User) error
	InsertTransaction(ctx context.Context, txn *WalletTransaction) error
	// TransactionsByIdempotencyKey returns actor's row written under key plus
	// the counterparty rows actor funded under the same reference.
	TransactionsByIdempotencyKey(ctx context.Context, actor uuid.UUID, key string) ([]WalletTransaction, error)

	InsertHold(ctx context.Context, hold *BalanceHold) error
	LockHold(ctx context.Context, id uuid.UUID) (BalanceHold, error)
	LockActiveHoldByReference(ctx context.Context, ref Reference) (BalanceHold, error)
	// LockExpiredHolds locks active holds whose expiry is before now, skipping
	// rows already locked by another transaction.
	LockExpiredHolds(ctx context.Context, now time.Time) ([]BalanceHold, error)
	UpdateHold(ctx context.Context, hold BalanceHold) error

	InsertDepositRequest(ctx context.Context, req *DepositRequest) error
	LockDepositRequest(ctx context.Context, id uuid.UUID) (DepositRequest, error)
	UpdateDepositRequest(ctx context.Context, req DepositRequest) error
	CountPendingRequests(ctx context.Context, requesterID uuid.UUID) (int, error)
}

// SortIDs returns the distinct ids in ascending byte order, the global lock order.
func SortIDs(ids ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

const (
	// MaxPageSize caps the page size accepted by listing queries.
	MaxPageSize = 100
	// MaxPage caps the page number so offsets stay well inside int range.
	MaxPage     = 1_000_000
)

// PageRequest is a one-based offset/limit page selector.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds.
func (p PageRequest) Normalize(defaultLimit int) PageRequest {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	if p.Page < 1 || p.Limit <= 0 {
		return 0
	}
	return (min(p.Page, MaxPage) - 1) * min(p.Limit, MaxPageSize)
}

// Page is one page of results plus the unpaged total.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
}

// TransactionFilter selects a user's ledger rows, newest first.
type TransactionFilter struct {
	UserID uuid.UUID
	Type   TransactionType
	PageRequest
}

// HoldFilter selects holds, newest first. Zero fields do not filter.
type HoldFilter struct {
	UserID uuid.UUID
	Status HoldStatus
	PageRequest
}

// RequestFilter selects deposit requests, newest first. Zero fields do not filter.
type RequestFilter struct {
	RequesterID uuid.UUID
	TargetID    uuid.UUID
	Status      RequestStatus
	Type        RequestType
	PageRequest
}
