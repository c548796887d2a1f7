package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errConstraint = errors.New("balance constraint violated")

type memoryState struct {
	users        map[uuid.UUID]User
	transactions []WalletTransaction
	holds        map[uuid.UUID]BalanceHold
	requests     map[uuid.UUID]DepositRequest
	seq          int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		users:        make(map[uuid.UUID]User, len(s.users)),
		transactions: append([]WalletTransaction(nil), s.transactions...),
		holds:        make(map[uuid.UUID]BalanceHold, len(s.holds)),
		requests:     make(map[uuid.UUID]DepositRequest, len(s.requests)),
		seq:          s.seq,
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.holds {
		out.holds[k] = v
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	return out
}

// memoryStore serialises every transaction behind one mutex, which is a
// strictly stronger guarantee than per-row locks. A failed transaction
// restores the snapshot taken when it began.
type memoryStore struct {
	mu    sync.Mutex
	state memoryState
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests.
func NewInMemory() Store {
	return &memoryStore{state: memoryState{
		users:    make(map[uuid.UUID]User),
		holds:    make(map[uuid.UUID]BalanceHold),
		requests: make(map[uuid.UUID]DepositRequest),
	}}
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &memoryTx{state: &s.state}); err != nil {
		s.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *memoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.users[user.ID]; exists {
		return ErrUserExists
	}
	for _, u := range s.state.users {
		if user.Email != "" && u.Email == user.Email {
			return ErrUserExists
		}
	}
	user.UpdatedAt = user.CreatedAt
	s.state.users[user.ID] = user
	return nil
}

func (s *memoryStore) User(_ context.Context, id uuid.UUID) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.state.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *memoryStore) Transactions(_ context.Context, filter TransactionFilter) (Page[WalletTransaction], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []WalletTransaction
	for i := len(s.state.transactions) - 1; i >= 0; i-- {
		txn := s.state.transactions[i]
		if txn.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		matched = append(matched, txn)
	}
	return paginate(matched, filter.PageRequest), nil
}

func (s *memoryStore) Hold(_ context.Context, id uuid.UUID) (BalanceHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.state.holds[id]
	if !ok {
		return BalanceHold{}, ErrHoldNotFound
	}
	return hold, nil
}

func (s *memoryStore) Holds(_ context.Context, filter HoldFilter) (Page[BalanceHold], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []BalanceHold
	for _, hold := range s.state.holds {
		if filter.UserID != uuid.Nil && hold.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && hold.Status != filter.Status {
			continue
		}
		matched = append(matched, hold)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, filter.PageRequest), nil
}

func (s *memoryStore) DepositRequest(_ context.Context, id uuid.UUID) (DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.state.requests[id]
	if !ok {
		return DepositRequest{}, ErrRequestNotFound
	}
	return s.state.withNames(req), nil
}

func (s *memoryStore) DepositRequests(_ context.Context, filter RequestFilter) (Page[DepositRequest], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []DepositRequest
	for _, req := range s.state.requests {
		if filter.RequesterID != uuid.Nil && req.RequesterID != filter.RequesterID {
			continue
		}
		if filter.TargetID != uuid.Nil && req.TargetID != filter.TargetID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Type != "" && req.Type != filter.Type {
			continue
		}
		matched = append(matched, s.state.withNames(req))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, filter.PageRequest), nil
}

func (s *memoryStore) PendingCounts(_ context.Context, userID uuid.UUID) (PendingCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts PendingCounts
	for _, req := range s.state.requests {
		if req.Status != RequestPending {
			continue
		}
		if req.TargetID == userID {
			counts.Incoming++
		}
		if req.RequesterID == userID {
			counts.Outgoing++
		}
	}
	return counts, nil
}

func (s memoryState) withNames(req DepositRequest) DepositRequest {
	req.RequesterName = s.users[req.RequesterID].DisplayName
	req.TargetName = s.users[req.TargetID].DisplayName
	return req
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockUsers(_ context.Context, ids ...uuid.UUID) (map[uuid.UUID]*User, error) {
	users := make(map[uuid.UUID]*User, len(ids))
	for _, id := range SortIDs(ids...) {
		user, ok := t.state.users[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		users[id] = &user
	}
	return users, nil
}

// SaveBalances enforces the same CHECK constraint the users table carries.
func (t *memoryTx) SaveBalances(_ context.Context, user *User) error {
	stored, ok := t.state.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	if user.WalletBalance.IsNegative() || user.HoldBalance.IsNegative() || user.HoldBalance.GreaterThan(user.WalletBalance) {
		return errConstraint
	}
	stored.WalletBalance = user.WalletBalance
	stored.HoldBalance = user.HoldBalance
	stored.UpdatedAt = user.UpdatedAt
	t.state.users[user.ID] = stored
	return nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, txn *WalletTransaction) error {
	if txn.IdempotencyKey != "" {
		for _, existing := range t.state.transactions {
			if existing.UserID == txn.UserID && existing.IdempotencyKey == txn.IdempotencyKey {
				return ErrDuplicateTransaction
			}
		}
	}
	t.state.seq++
	txn.Seq = t.state.seq
	t.state.transactions = append(t.state.transactions, *txn)
	return nil
}

func (t *memoryTx) TransactionsByIdempotencyKey(_ context.Context, actor uuid.UUID, key string) ([]WalletTransaction, error) {
	var keyed *WalletTransaction
	for i, txn := range t.state.transactions {
		if txn.UserID == actor && txn.IdempotencyKey == key {
			keyed = &t.state.transactions[i]
			break
		}
	}
	if keyed == nil {
		return nil, nil
	}
	out := []WalletTransaction{*keyed}
	if keyed.Reference.IsZero() {
		return out, nil
	}
	for _, txn := range t.state.transactions {
		if txn.ID != keyed.ID && txn.Reference == keyed.Reference &&
			txn.FromUserID != nil && *txn.FromUserID == actor {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertHold(_ context.Context, hold *BalanceHold) error {
	for _, existing := range t.state.holds {
		if existing.Status == HoldActive && existing.Reference == hold.Reference {
			return ErrHoldExists
		}
	}
	t.state.holds[hold.ID] = *hold
	return nil
}

func (t *memoryTx) LockHold(_ context.Context, id uuid.UUID) (BalanceHold, error) {
	hold, ok := t.state.holds[id]
	if !ok {
		return BalanceHold{}, ErrHoldNotFound
	}
	return hold, nil
}

func (t *memoryTx) LockActiveHoldByReference(_ context.Context, ref Reference) (BalanceHold, error) {
	for _, hold := range t.state.holds {
		if hold.Status == HoldActive && hold.Reference == ref {
			return hold, nil
		}
	}
	return BalanceHold{}, ErrHoldNotFound
}

func (t *memoryTx) LockExpiredHolds(_ context.Context, now time.Time) ([]BalanceHold, error) {
	var out []BalanceHold
	for _, hold := range t.state.holds {
		if hold.Status == HoldActive && hold.ExpiresAt != nil && hold.ExpiresAt.Before(now) {
			out = append(out, hold)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *memoryTx) UpdateHold(_ context.Context, hold BalanceHold) error {
	if _, ok := t.state.holds[hold.ID]; !ok {
		return ErrHoldNotFound
	}
	t.state.holds[hold.ID] = hold
	return nil
}

func (t *memoryTx) InsertDepositRequest(_ context.Context, req *DepositRequest) error {
	stored := *req
	stored.RequesterName = ""
	stored.TargetName = ""
	stored.UpdatedAt = stored.CreatedAt
	t.state.requests[req.ID] = stored
	return nil
}

func (t *memoryTx) LockDepositRequest(_ context.Context, id uuid.UUID) (DepositRequest, error) {
	req, ok := t.state.requests[id]
	if !ok {
		return DepositRequest{}, ErrRequestNotFound
	}
	return t.state.withNames(req), nil
}

func (t *memoryTx) UpdateDepositRequest(_ context.Context, req DepositRequest) error {
	stored, ok := t.state.requests[req.ID]
	if !ok {
		return ErrRequestNotFound
	}
	stored.Status = req.Status
	stored.ResponderNote = req.ResponderNote
	stored.ProcessedBy = req.ProcessedBy
	stored.ProcessedAt = req.ProcessedAt
	stored.TransactionID = req.TransactionID
	stored.UpdatedAt = req.UpdatedAt
	t.state.requests[req.ID] = stored
	return nil
}

func (t *memoryTx) CountPendingRequests(_ context.Context, requesterID uuid.UUID) (int, error) {
	count := 0
	for _, req := range t.state.requests {
		if req.RequesterID == requesterID && req.Status == RequestPending {
			count++
		}
	}
	return count, nil
}

func paginate[T any](items []T, p PageRequest) Page[T] {
	page := Page[T]{Total: len(items), Page: p.Page, Limit: p.Limit}
	start := p.Offset()
	if start >= len(items) {
		return page
	}
	end := len(items)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	page.Items = append([]T(nil), items[start:end]...)
	return page
}
