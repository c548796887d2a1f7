package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ReferenceKind names the external entity a ledger row or hold correlates with.
type ReferenceKind string

const (
	RefDepositRequest         ReferenceKind = "deposit_request"
	RefWaitlistEntry          ReferenceKind = "waitlist_entry"
	RefTournamentRegistration ReferenceKind = "tournament_registration"
	RefWithdrawal             ReferenceKind = "withdrawal"
	RefDispute                ReferenceKind = "dispute"
	RefTransfer               ReferenceKind = "transfer"
	RefManual                 ReferenceKind = "manual"
)

// referenceKinds is ordered longest first so prefix parsing is unambiguous.
var referenceKinds = []ReferenceKind{
	RefTournamentRegistration,
	RefDepositRequest,
	RefWaitlistEntry,
	RefWithdrawal,
	RefTransfer,
	RefDispute,
	RefManual,
}

// Valid reports whether k is a known reference kind.
func (k ReferenceKind) Valid() bool {
	for _, known := range referenceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Reference is a typed correlation key. The zero value means "no reference".
type Reference struct {
	Kind ReferenceKind
	ID   string
}

// DepositRequestRef references a deposit request.
func DepositRequestRef(id uuid.UUID) Reference {
	return Reference{Kind: RefDepositRequest, ID: id.String()}
}

// WaitlistEntryRef references a tournament waitlist entry.
func WaitlistEntryRef(id string) Reference {
	return Reference{Kind: RefWaitlistEntry, ID: id}
}

// TransferRef references a direct transfer. Both rows of the transfer share it.
func TransferRef(id uuid.UUID) Reference {
	return Reference{Kind: RefTransfer, ID: id.String()}
}

// IsZero reports whether r carries no reference.
func (r Reference) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Validate checks that a non-zero reference is well formed.
func (r Reference) Validate() error {
	if r.IsZero() {
		return nil
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidReference, r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidReference)
	}
	return nil
}

// String renders the flat correlation key, e.g. deposit_request_42.
func (r Reference) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + "_" + r.ID
}

// ParseReference parses a flat correlation key produced by Reference.String.
func ParseReference(s string) (Reference, error) {
	if s == "" {
		return Reference{}, nil
	}
	for _, kind := range referenceKinds {
		prefix := string(kind) + "_"
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return Reference{Kind: kind, ID: s[len(prefix):]}, nil
		}
	}
	return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
}
