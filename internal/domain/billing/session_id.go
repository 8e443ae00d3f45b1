package billing

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/arcade/backend/internal/domain/shared"
)

const (
	// SessionIDSuffixLength is the length of the random alphanumeric suffix
	SessionIDSuffixLength = 16
	// MaxSessionIDLength bounds the whole identifier
	MaxSessionIDLength = 128
	// DefaultSessionSkew is how far the embedded timestamp may drift from server time
	DefaultSessionSkew = 5 * time.Minute
)

const suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	ErrInvalidSessionIDFormat = shared.NewValidationError("INVALID_SESSION_ID_FORMAT", "Session ID must look like <operator-id>_<unix-ms>_<16 alphanumeric chars>")
	ErrSessionIDExpired       = shared.NewValidationError("SESSION_ID_EXPIRED", "Session ID timestamp is outside the accepted window")
	ErrSessionIDOwnerMismatch = shared.NewAuthorizationError("SESSION_ID_OWNER_MISMATCH", "Session ID does not belong to the calling operator")
)

// SessionID is a parsed session identifier
type SessionID struct {
	Raw        string
	OperatorID string
	IssuedAt   time.Time
	Suffix     string
}

// String returns the raw identifier
func (s SessionID) String() string {
	return s.Raw
}

// ParseSessionID splits raw into its three parts. The operator part is
// everything before the last two underscores.
func ParseSessionID(raw string) (SessionID, error) {
	if raw == "" || len(raw) > MaxSessionIDLength {
		return SessionID{}, ErrInvalidSessionIDFormat
	}

	last := strings.LastIndexByte(raw, '_')
	if last <= 0 {
		return SessionID{}, ErrInvalidSessionIDFormat
	}
	mid := strings.LastIndexByte(raw[:last], '_')
	if mid <= 0 {
		return SessionID{}, ErrInvalidSessionIDFormat
	}

	operatorID, tsPart, suffix := raw[:mid], raw[mid+1:last], raw[last+1:]
	if len(suffix) != SessionIDSuffixLength || !isAlnum(suffix) {
		return SessionID{}, ErrInvalidSessionIDFormat
	}
	if tsPart == "" || !isDigits(tsPart) {
		return SessionID{}, ErrInvalidSessionIDFormat
	}
	ms, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil || ms <= 0 {
		return SessionID{}, ErrInvalidSessionIDFormat
	}

	return SessionID{
		Raw:        raw,
		OperatorID: operatorID,
		IssuedAt:   time.UnixMilli(ms).UTC(),
		Suffix:     suffix,
	}, nil
}

// ValidateSessionID parses raw and checks it was minted by callerID within
// skew of now. Checks run format, then ownership, then freshness.
func ValidateSessionID(raw, callerID string, now time.Time, skew time.Duration) (SessionID, error) {
	sid, err := ParseSessionID(raw)
	if err != nil {
		return SessionID{}, err
	}
	if sid.OperatorID != callerID {
		return SessionID{}, ErrSessionIDOwnerMismatch
	}
	if skew <= 0 {
		skew = DefaultSessionSkew
	}
	drift := now.Sub(sid.IssuedAt)
	if drift > skew || drift < -skew {
		return SessionID{}, ErrSessionIDExpired.WithDetails(map[string]any{
			"issued_at":   sid.IssuedAt.Format(time.RFC3339Nano),
			"server_time": now.UTC().Format(time.RFC3339Nano),
		})
	}
	return sid, nil
}

// GenerateSessionID mints a fresh identifier for operatorID
func GenerateSessionID(operatorID string, now time.Time) (string, error) {
	suffix := make([]byte, SessionIDSuffixLength)
	alphabetSize := big.NewInt(int64(len(suffixAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}
		suffix[i] = suffixAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s_%d_%s", operatorID, now.UnixMilli(), suffix), nil
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
