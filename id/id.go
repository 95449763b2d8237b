// Package id defines the TypeID identifiers used for funds and their receipts.
//
// A deployed fund is addressed by its FundID ("fund_…"); accepted
// contributions and completed withdrawals carry their own receipt IDs
// ("ctb_…" and "wdr_…"). All IDs are K-sortable (UUIDv7-based), so iterating
// receipts by key yields them in creation order.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefixes for FundMe entities.
const (
	PrefixFund         Prefix = "fund" // Deployed fund instance
	PrefixContribution Prefix = "ctb"  // Accepted contribution receipt
	PrefixWithdrawal   Prefix = "wdr"  // Withdrawal receipt
)

// ID wraps a TypeID in the format "prefix_suffix". The zero value is Nil.
//
//nolint:recvcheck // pointer receivers only where the value is replaced.
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// Nil is the zero-value ID.
var Nil ID

// FundID addresses a deployed fund (prefix "fund").
type FundID = ID

// ContributionID identifies a contribution receipt (prefix "ctb").
type ContributionID = ID

// WithdrawalID identifies a withdrawal receipt (prefix "wdr").
type WithdrawalID = ID

// New generates an ID with the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, ok: true}
}

// NewFundID generates a fund address.
func NewFundID() FundID { return New(PrefixFund) }

// NewContributionID generates a contribution receipt ID.
func NewContributionID() ContributionID { return New(PrefixContribution) }

// NewWithdrawalID generates a withdrawal receipt ID.
func NewWithdrawalID() WithdrawalID { return New(PrefixWithdrawal) }

// Parse parses any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, ok: true}, nil
}

// ParseWithPrefix parses s and requires the given prefix.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParseFundID parses a fund address.
func ParseFundID(s string) (FundID, error) { return ParseWithPrefix(s, PrefixFund) }

// ParseContributionID parses a contribution receipt ID.
func ParseContributionID(s string) (ContributionID, error) {
	return ParseWithPrefix(s, PrefixContribution)
}

// ParseWithdrawalID parses a withdrawal receipt ID.
func ParseWithdrawalID(s string) (WithdrawalID, error) {
	return ParseWithPrefix(s, PrefixWithdrawal)
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.ok }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer; Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.ok {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
