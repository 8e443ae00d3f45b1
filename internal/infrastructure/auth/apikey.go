package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
)

const (
	apiKeySeparator   = "."
	apiKeySecretBytes = 24
	// DefaultBcryptCost is the cost used when hashing API key secrets
	DefaultBcryptCost = bcrypt.DefaultCost
)

// API key errors. Callers outside this package only ever see
// operator.ErrInvalidAPIKey; these exist for logging.
var (
	ErrMalformedAPIKey   = errors.New("api key must be <operator_id>.<secret>")
	ErrMissingTimestamp  = errors.New("missing request timestamp")
	ErrInvalidTimestamp  = errors.New("request timestamp is not a unix time")
	ErrTimestampSkew     = errors.New("request timestamp outside the allowed window")
	ErrAPIKeyMismatch    = errors.New("api key does not match")
	ErrNoAPIKeyOnAccount = errors.New("operator has no api key")
)

// SplitAPIKey splits "<operator_id>.<secret>" on the first separator.
// Operator ids never contain '.', the secret may.
func SplitAPIKey(key string) (operatorID, secret string, err error) {
	operatorID, secret, ok := strings.Cut(strings.TrimSpace(key), apiKeySeparator)
	if !ok || operatorID == "" || secret == "" {
		return "", "", ErrMalformedAPIKey
	}
	return operatorID, secret, nil
}

// GenerateAPIKey creates a fresh key for operatorID. It returns the
// plaintext key, shown once to the operator, and the bcrypt hash to store.
func GenerateAPIKey(operatorID string) (key, hash string, err error) {
	if !operator.ValidOperatorID(operatorID) {
		return "", "", operator.ErrInvalidOperatorID
	}
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	hash, err = HashAPIKeySecret(secret)
	if err != nil {
		return "", "", err
	}
	return operatorID + apiKeySeparator + secret, hash, nil
}

// HashAPIKeySecret hashes the secret half of an API key
func HashAPIKeySecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash api key secret: %w", err)
	}
	return string(h), nil
}

// AccountReader is the subset of the account repository the verifier needs
type AccountReader interface {
	FindByID(ctx context.Context, id string) (*operator.Account, error)
}

// APIKeyVerifier checks X-API-Key credentials against the stored bcrypt hash
// and requires an X-Timestamp within the configured window.
type APIKeyVerifier struct {
	accounts AccountReader
	window   time.Duration
	now      func() time.Time
}

// NewAPIKeyVerifier creates an API key verifier
func NewAPIKeyVerifier(accounts AccountReader, window time.Duration) *APIKeyVerifier {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &APIKeyVerifier{accounts: accounts, window: window, now: time.Now}
}

// VerifyAPIKey returns the operator id the key belongs to
func (v *APIKeyVerifier) VerifyAPIKey(ctx context.Context, key, timestamp string) (string, error) {
	if err := v.checkTimestamp(timestamp); err != nil {
		return "", err
	}
	operatorID, secret, err := SplitAPIKey(key)
	if err != nil {
		return "", err
	}

	account, err := v.accounts.FindByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", ErrAPIKeyMismatch
		}
		return "", err
	}
	if account.APIKeyHash == "" {
		return "", ErrNoAPIKeyOnAccount
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.APIKeyHash), []byte(secret)); err != nil {
		return "", ErrAPIKeyMismatch
	}
	return account.ID, nil
}

func (v *APIKeyVerifier) checkTimestamp(timestamp string) error {
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" {
		return ErrMissingTimestamp
	}
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	skew := v.now().Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return ErrTimestampSkew
	}
	return nil
}
