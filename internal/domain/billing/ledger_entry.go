package billing

import (
	"fmt"
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryType is the direction of a balance change
type LedgerEntryType string

const (
	// LedgerEntryTypeConsumption debits the balance for a session
	LedgerEntryTypeConsumption LedgerEntryType = "CONSUMPTION"
	// LedgerEntryTypeRecharge credits the balance for a settled payment
	LedgerEntryTypeRecharge LedgerEntryType = "RECHARGE"
)

// IsValid returns true if the type is known
func (t LedgerEntryType) IsValid() bool {
	return t == LedgerEntryTypeConsumption || t == LedgerEntryTypeRecharge
}

// IsDebit returns true for types that decrease the balance
func (t LedgerEntryType) IsDebit() bool {
	return t == LedgerEntryTypeConsumption
}

// Reference types linking an entry to the record that caused it
const (
	ReferenceTypeUsageSession  = "USAGE_SESSION"
	ReferenceTypeRechargeOrder = "RECHARGE_ORDER"
)

// ErrLedgerImbalance is returned when before/after/amount do not add up
var ErrLedgerImbalance = shared.NewDomainError("LEDGER_IMBALANCE", "Ledger entry balance snapshot does not match its amount")

// LedgerEntry is an immutable snapshot of one balance change
type LedgerEntry struct {
	ID            uuid.UUID
	OperatorID    string
	Type          LedgerEntryType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Description   string
	CreatedAt     time.Time
}

// NewLedgerEntry builds an entry and enforces
// balance_after = balance_before - amount (debit) or + amount (credit).
func NewLedgerEntry(
	operatorID string,
	entryType LedgerEntryType,
	amount, before, after decimal.Decimal,
	referenceType, referenceID, description string,
	now time.Time,
) (*LedgerEntry, error) {
	if operatorID == "" || !entryType.IsValid() || !amount.IsPositive() {
		return nil, shared.ErrInvalidInput
	}

	expected := before.Add(amount)
	if entryType.IsDebit() {
		expected = before.Sub(amount)
	}
	if !after.Equal(expected) || after.IsNegative() {
		return nil, ErrLedgerImbalance.WithDetails(map[string]any{
			"type":           string(entryType),
			"amount":         amount.StringFixed(MoneyScale),
			"balance_before": before.StringFixed(MoneyScale),
			"balance_after":  after.StringFixed(MoneyScale),
		})
	}

	return &LedgerEntry{
		ID:            uuid.New(),
		OperatorID:    operatorID,
		Type:          entryType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Description:   description,
		CreatedAt:     now,
	}, nil
}

// String returns a compact description for logs
func (e *LedgerEntry) String() string {
	return fmt.Sprintf("%s %s %s->%s (%s:%s)", e.Type, e.Amount.StringFixed(MoneyScale),
		e.BalanceBefore.StringFixed(MoneyScale), e.BalanceAfter.StringFixed(MoneyScale),
		e.ReferenceType, e.ReferenceID)
}
