package payments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/notification"
)

type testNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
	err  error
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOwnerDepositToOrganizer(t *testing.T) {
	store := ledger.NewInMemory()
	notifier := &testNotifier{}
	svc := NewService(store, notifier, logging.Discard())
	ctx := context.Background()

	owner := ledger.SeedUser(store, ledger.RoleOwner, decimal.Zero, decimal.Zero)
	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, amt("100"), decimal.Zero)

	txn, err := svc.OwnerDepositToOrganizer(ctx, OwnerDepositInput{OwnerID: owner, OrganizerID: organizer, Amount: amt("500")})
	if err != nil {
		t.Fatalf("owner deposit: %v", err)
	}
	if txn.Type != ledger.TypeOwnerDeposit || !txn.Amount.Equal(amt("500")) || txn.FromUserID == nil || *txn.FromUserID != owner {
		t.Fatalf("unexpected transaction %+v", txn)
	}

	got, err := store.User(ctx, organizer)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if !got.WalletBalance.Equal(amt("600")) {
		t.Fatalf("expected organizer balance 600, got %s", got.WalletBalance)
	}
	if rows := ledger.Entries(store, organizer); len(rows) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(rows))
	}
	if rows := ledger.Entries(store, owner); len(rows) != 0 {
		t.Fatalf("owner must not be debited, got %d rows", len(rows))
	}
	if len(notifier.msgs) != 1 || notifier.msgs[0].Destination != organizer.String() {
		t.Fatalf("expected deposit notification to organizer, got %+v", notifier.msgs)
	}
}

func TestOwnerDepositRoleMismatch(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, logging.Discard())
	ctx := context.Background()

	owner := ledger.SeedUser(store, ledger.RoleOwner, decimal.Zero, decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)

	if _, err := svc.OwnerDepositToOrganizer(ctx, OwnerDepositInput{OwnerID: owner, OrganizerID: player, Amount: amt("10")}); !errors.Is(err, ledger.ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
	if n := ledger.TransactionCount(store); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestOrganizerDepositToUserConservation(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, &testNotifier{}, logging.Discard())
	ctx := context.Background()

	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, amt("1000"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, amt("5"), decimal.Zero)

	res, err := svc.OrganizerDepositToUser(ctx, OrganizerDepositInput{OrganizerID: organizer, UserID: player, Amount: amt("250.75")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.Debit.Amount.Add(res.Credit.Amount).IsZero() {
		t.Fatalf("rows do not sum to zero: %s + %s", res.Debit.Amount, res.Credit.Amount)
	}
	if res.Debit.Reference != res.Credit.Reference || res.Credit.Reference.Kind != ledger.RefTransfer {
		t.Fatalf("expected shared transfer reference, got %v / %v", res.Debit.Reference, res.Credit.Reference)
	}
	if res.Credit.FromUserID == nil || *res.Credit.FromUserID != organizer {
		t.Fatalf("credit row must name the organizer")
	}

	o, _ := store.User(ctx, organizer)
	p, _ := store.User(ctx, player)
	if !o.WalletBalance.Equal(amt("749.25")) || !p.WalletBalance.Equal(amt("255.75")) {
		t.Fatalf("unexpected balances organizer=%s player=%s", o.WalletBalance, p.WalletBalance)
	}
	if n := ledger.TransactionCount(store); n != 2 {
		t.Fatalf("expected exactly two rows, got %d", n)
	}
}

func TestOrganizerDepositInsufficientBalance(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, logging.Discard())
	ctx := context.Background()

	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, amt("50"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)

	_, err := svc.OrganizerDepositToUser(ctx, OrganizerDepositInput{OrganizerID: organizer, UserID: player, Amount: amt("50.01")})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	o, _ := store.User(ctx, organizer)
	p, _ := store.User(ctx, player)
	if !o.WalletBalance.Equal(amt("50")) || !p.WalletBalance.IsZero() {
		t.Fatalf("balances changed on failure: organizer=%s player=%s", o.WalletBalance, p.WalletBalance)
	}
	if n := ledger.TransactionCount(store); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestOrganizerDepositIdempotencyKey(t *testing.T) {
	store := ledger.NewInMemory()
	notifier := &testNotifier{}
	svc := NewService(store, notifier, logging.Discard())
	ctx := context.Background()

	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, amt("100"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)
	input := OrganizerDepositInput{OrganizerID: organizer, UserID: player, Amount: amt("40"), IdempotencyKey: "retry-1"}

	first, err := svc.OrganizerDepositToUser(ctx, input)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	again, err := svc.OrganizerDepositToUser(ctx, input)
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate transaction, got %v", err)
	}
	if again.Debit.ID != first.Debit.ID || again.Credit.ID != first.Credit.ID {
		t.Fatalf("expected original rows to be returned")
	}

	o, _ := store.User(ctx, organizer)
	if !o.WalletBalance.Equal(amt("60")) {
		t.Fatalf("retry moved money again: organizer=%s", o.WalletBalance)
	}
	if len(notifier.msgs) != 1 {
		t.Fatalf("expected a single notification, got %d", len(notifier.msgs))
	}
}

func TestOrganizerDepositKeysAreScopedPerOrganizer(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, logging.Discard())
	ctx := context.Background()

	first := ledger.SeedUser(store, ledger.RoleOrganizer, amt("1000"), decimal.Zero)
	second := ledger.SeedUser(store, ledger.RoleOrganizer, amt("1000"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)

	a, err := svc.OrganizerDepositToUser(ctx, OrganizerDepositInput{OrganizerID: first, UserID: player, Amount: amt("100"), IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("first organizer: %v", err)
	}
	b, err := svc.OrganizerDepositToUser(ctx, OrganizerDepositInput{OrganizerID: second, UserID: player, Amount: amt("200"), IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("second organizer with the same key: %v", err)
	}
	if b.Replayed() || b.Debit.ID == a.Debit.ID || b.Credit.ID == a.Credit.ID {
		t.Fatalf("second transfer must not reuse the first one's rows")
	}

	p, _ := store.User(ctx, player)
	o2, _ := store.User(ctx, second)
	if !p.WalletBalance.Equal(amt("300")) || !o2.WalletBalance.Equal(amt("800")) {
		t.Fatalf("unexpected balances: player=%s second=%s", p.WalletBalance, o2.WalletBalance)
	}

	again, err := svc.OrganizerDepositToUser(ctx, OrganizerDepositInput{OrganizerID: second, UserID: player, Amount: amt("200"), IdempotencyKey: "k1"})
	if !errors.Is(err, ledger.ErrDuplicateTransaction) || !again.Replayed() {
		t.Fatalf("expected replay of second organizer's transfer, got %v", err)
	}
	if again.Debit.ID != b.Debit.ID || again.Credit.ID != b.Credit.ID {
		t.Fatalf("replay returned the wrong rows")
	}
	if (TransferResult{}).Replayed() {
		t.Fatal("empty result must not count as replayed")
	}
}

func TestOrganizerDepositConcurrentTransfersConserve(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil, logging.Discard())
	ctx := context.Background()

	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, amt("1000"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.OrganizerDepositToUser(ctx, OrganizerDepositInput{OrganizerID: organizer, UserID: player, Amount: amt("10")}); err != nil {
				t.Errorf("transfer: %v", err)
			}
		}()
	}
	wg.Wait()

	o, _ := store.User(ctx, organizer)
	p, _ := store.User(ctx, player)
	if !o.WalletBalance.Add(p.WalletBalance).Equal(amt("1000")) || !p.WalletBalance.Equal(amt("200")) {
		t.Fatalf("money not conserved: organizer=%s player=%s", o.WalletBalance, p.WalletBalance)
	}
}
