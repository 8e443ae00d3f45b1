// Package notification defines the alerts the core raises and the port used to deliver them.
// Delivery itself (SMS, email, dashboards) is an external concern.
package notification

import (
	"context"
	"time"
)

// Kind identifies an alert
type Kind string

const (
	// KindLowBalance is raised after billing leaves an operator below its threshold
	KindLowBalance Kind = "LOW_BALANCE"
	// KindPaymentAnomaly is raised when a recharge order needs human review
	KindPaymentAnomaly Kind = "PAYMENT_ANOMALY"
)

// Severity of an alert
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Notification is a single alert
type Notification struct {
	Kind       Kind              `json:"kind"`
	Severity   Severity          `json:"severity"`
	OperatorID string            `json:"operator_id"`
	Subject    string            `json:"subject"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier hands a notification to a delivery channel. Implementations must
// be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
