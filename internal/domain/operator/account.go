package operator

import (
	"strings"
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AccountTier is the commercial tier of an operator
type AccountTier string

const (
	AccountTierTrial    AccountTier = "TRIAL"
	AccountTierStandard AccountTier = "STANDARD"
	AccountTierVIP      AccountTier = "VIP"
)

// IsValid returns true if the tier is known
func (t AccountTier) IsValid() bool {
	switch t {
	case AccountTierTrial, AccountTierStandard, AccountTierVIP:
		return true
	}
	return false
}

// String returns the string representation of AccountTier
func (t AccountTier) String() string {
	return string(t)
}

var (
	ErrAccountNotFound   = shared.NewNotFoundError("ACCOUNT_NOT_FOUND", "Operator account not found")
	ErrAccountLocked     = shared.NewAuthorizationError("ACCOUNT_LOCKED", "Operator account is locked")
	ErrAccountInactive   = shared.NewAuthorizationError("ACCOUNT_INACTIVE", "Operator account is inactive")
	ErrInvalidAPIKey     = shared.NewAuthorizationError("INVALID_API_KEY", "Invalid or missing API credential")
	ErrInvalidOperatorID = shared.NewValidationError("INVALID_OPERATOR_ID", "Operator ID must be non-empty and must not contain '_' or '.'")
	ErrInvalidAmount     = shared.NewValidationError("INVALID_AMOUNT", "Amount must be positive with at most 2 decimal places")
)

// Account is the operator (arcade owner) aggregate. Balance is the single
// authoritative prepaid balance and is only mutated while the row is locked.
type Account struct {
	ID                  string
	Name                string
	Balance             decimal.Decimal
	IsLocked            bool
	IsActive            bool
	Tier                AccountTier
	APIKeyHash          string
	LowBalanceThreshold *decimal.Decimal
	shared.Versioned
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates an active account with a zero balance
func NewAccount(id, name string, tier AccountTier, now time.Time) (*Account, error) {
	if !ValidOperatorID(id) {
		return nil, ErrInvalidOperatorID
	}
	if !tier.IsValid() {
		tier = AccountTierStandard
	}
	return &Account{
		ID:        id,
		Name:      name,
		Balance:   decimal.Zero,
		IsActive:  true,
		Tier:      tier,
		Versioned: shared.Versioned{Version: 1},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidOperatorID reports whether id can be embedded in session identifiers
// and API keys, both of which use '_' and '.' as separators.
func ValidOperatorID(id string) bool {
	return id != "" && len(id) <= 64 && !strings.ContainsAny(id, "_. ")
}

// CheckCanTransact returns an error when the account may not be billed
func (a *Account) CheckCanTransact() error {
	if a.IsLocked {
		return ErrAccountLocked
	}
	if !a.IsActive {
		return ErrAccountInactive
	}
	return nil
}

// HasSufficientBalance reports whether the balance covers amount
func (a *Account) HasSufficientBalance(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// Deduct removes amount from the balance and returns the before/after snapshot.
// The balance is left untouched when it does not cover amount.
func (a *Account) Deduct(amount decimal.Decimal, now time.Time) (before, after decimal.Decimal, err error) {
	if !validAmount(amount) {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	if !a.HasSufficientBalance(amount) {
		return decimal.Zero, decimal.Zero, shared.ErrInsufficientBalance.WithDetails(map[string]any{
			"balance":  a.Balance.StringFixed(2),
			"required": amount.StringFixed(2),
		})
	}
	before = a.Balance
	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = now
	return before, a.Balance, nil
}

// Credit adds amount to the balance and returns the before/after snapshot
func (a *Account) Credit(amount decimal.Decimal, now time.Time) (before, after decimal.Decimal, err error) {
	if !validAmount(amount) {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	before = a.Balance
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = now
	return before, a.Balance, nil
}

// LowBalanceThresholdOr returns the account override or def
func (a *Account) LowBalanceThresholdOr(def decimal.Decimal) decimal.Decimal {
	if a.LowBalanceThreshold != nil {
		return *a.LowBalanceThreshold
	}
	return def
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}
