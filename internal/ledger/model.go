package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the tier a user occupies in the platform hierarchy.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleOrganizer Role = "organizer"
	RoleUser      Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleOrganizer, RoleUser:
		return true
	}
	return false
}

// User is the balance-bearing subset of a platform user.
type User struct {
	ID            uuid.UUID
	DisplayName   string
	Email         string
	Role          Role
	WalletBalance decimal.Decimal
	HoldBalance   decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Available is the part of the wallet balance not reserved by holds.
func (u User) Available() decimal.Decimal {
	return u.WalletBalance.Sub(u.HoldBalance)
}

// BalanceSummary is a point-in-time view of a user's balances.
type BalanceSummary struct {
	UserID    uuid.UUID
	Wallet    decimal.Decimal
	Hold      decimal.Decimal
	Available decimal.Decimal
	AsOf      time.Time
}

// Summary builds a BalanceSummary from the user's current balances.
func (u User) Summary(asOf time.Time) BalanceSummary {
	return BalanceSummary{
		UserID:    u.ID,
		Wallet:    u.WalletBalance,
		Hold:      u.HoldBalance,
		Available: u.Available(),
		AsOf:      asOf,
	}
}

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TypeDeposit          TransactionType = "deposit"
	TypeWithdrawal       TransactionType = "withdrawal"
	TypeEntryFee         TransactionType = "entry_fee"
	TypePrize            TransactionType = "prize"
	TypeRefund           TransactionType = "refund"
	TypeOwnerDeposit     TransactionType = "owner_deposit"
	TypeOrganizerDeposit TransactionType = "organizer_deposit"
	TypeHoldConfirmed    TransactionType = "hold_confirmed"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeEntryFee, TypePrize, TypeRefund,
		TypeOwnerDeposit, TypeOrganizerDeposit, TypeHoldConfirmed:
		return true
	}
	return false
}

// TransactionStatus is the settlement state of a ledger row. Rows are only
// ever written completed; the other values exist for imported history.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// WalletTransaction is an immutable ledger row. Amount is signed: positive
// credits, negative debits.
type WalletTransaction struct {
	ID             uuid.UUID
	Seq            int64
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Type           TransactionType
	Status         TransactionStatus
	Description    string
	Reference      Reference
	FromUserID     *uuid.UUID
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	IdempotencyKey string
	CreatedAt      time.Time
}

// HoldType names why funds are reserved.
type HoldType string

const (
	HoldWaitlistEntryFee  HoldType = "waitlist_entry_fee"
	HoldPendingWithdrawal HoldType = "pending_withdrawal"
	HoldDispute           HoldType = "dispute"
)

// Valid reports whether h is a known hold type.
func (h HoldType) Valid() bool {
	switch h {
	case HoldWaitlistEntryFee, HoldPendingWithdrawal, HoldDispute:
		return true
	}
	return false
}

// HoldStatus is the lifecycle state of a hold.
type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldReleased  HoldStatus = "released"
	HoldConfirmed HoldStatus = "confirmed"
	HoldExpired   HoldStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s HoldStatus) Terminal() bool {
	return s == HoldReleased || s == HoldConfirmed || s == HoldExpired
}

// BalanceHold reserves part of a user's available balance.
type BalanceHold struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Type          HoldType
	Status        HoldStatus
	Reference     Reference
	Description   string
	ExpiresAt     *time.Time
	ReleasedAt    *time.Time
	ConfirmedAt   *time.Time
	ReleaseReason string
	TransactionID *uuid.UUID
	CreatedAt     time.Time
}

// RequestType is the direction of a deposit request.
type RequestType string

const (
	RequestOrganizerToOwner RequestType = "organizer_to_owner"
	RequestUserToOrganizer  RequestType = "user_to_organizer"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	return t == RequestOrganizerToOwner || t == RequestUserToOrganizer
}

// Roles returns the roles the requester and target must hold for t.
func (t RequestType) Roles() (requester, target Role) {
	switch t {
	case RequestOrganizerToOwner:
		return RoleOrganizer, RoleOwner
	case RequestUserToOrganizer:
		return RoleUser, RoleOrganizer
	}
	return "", ""
}

// RequestStatus is the lifecycle state of a deposit request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

// DepositRequest asks a higher-tier user to credit the requester.
type DepositRequest struct {
	ID               uuid.UUID
	RequesterID      uuid.UUID
	TargetID         uuid.UUID
	Amount           decimal.Decimal
	Type             RequestType
	Status           RequestStatus
	RequesterNote    string
	ResponderNote    string
	PaymentProofURL  string
	PaymentReference string
	ProcessedBy      *uuid.UUID
	ProcessedAt      *time.Time
	TransactionID    *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Display fields joined from users; never written.
	RequesterName string
	TargetName    string
}

// PendingCounts summarises pending requests around one user.
type PendingCounts struct {
	Incoming int
	Outgoing int
}
