package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcade/backend/internal/domain/shared"
)

// RevocationStore invalidates operator JWTs before they expire. A single
// token is revoked by its jti; revoking an operator cuts off every token
// issued to it up to that instant, e.g. after a headset kit is stolen.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	RevokeOperator(ctx context.Context, operatorID string, at time.Time, ttl time.Duration) error
	// IsRevoked reports whether the token is revoked by either rule.
	IsRevoked(ctx context.Context, jti, operatorID string, issuedAt time.Time) (bool, error)
}

const revocationPrefix = "arcade:revoked:"

// RedisRevocationStore keeps revocations in Redis so every replica sees them.
// Keys expire with the tokens they cover.
type RedisRevocationStore struct {
	client redis.UniversalClient
	clock  shared.Clock
}

func NewRedisRevocationStore(client redis.UniversalClient, clock shared.Clock) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, clock: clock}
}

func tokenKey(jti string) string           { return revocationPrefix + "jti:" + jti }
func operatorKey(operatorID string) string { return revocationPrefix + "op:" + operatorID }

func (s *RedisRevocationStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, tokenKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) RevokeOperator(ctx context.Context, operatorID string, at time.Time, ttl time.Duration) error {
	if err := s.client.Set(ctx, operatorKey(operatorID), at.UnixNano(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke operator tokens: %w", err)
	}
	return nil
}

// IsRevoked checks both keys in one round trip.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti, operatorID string, issuedAt time.Time) (bool, error) {
	var (
		byToken    *redis.IntCmd
		byOperator *redis.StringCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		byToken = p.Exists(ctx, tokenKey(jti))
		byOperator = p.Get(ctx, operatorKey(operatorID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	if byToken.Val() > 0 {
		return true, nil
	}

	raw, err := byOperator.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check operator revocation: %w", err)
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("operator revocation %q: %w", raw, err)
	}
	return issuedAt.UnixNano() <= cutoff, nil
}

// MemoryRevocationStore serves single-instance deployments without Redis.
type MemoryRevocationStore struct {
	mu        sync.Mutex
	clock     shared.Clock
	tokens    map[string]time.Time // jti -> token expiry
	operators map[string]revokedOperator
}

type revokedOperator struct {
	cutoff  time.Time
	expires time.Time
}

func NewMemoryRevocationStore(clock shared.Clock) *MemoryRevocationStore {
	return &MemoryRevocationStore{
		clock:     clock,
		tokens:    make(map[string]time.Time),
		operators: make(map[string]revokedOperator),
	}
}

func (s *MemoryRevocationStore) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[jti] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) RevokeOperator(_ context.Context, operatorID string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operators[operatorID] = revokedOperator{cutoff: at, expires: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti, operatorID string, issuedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	if exp, ok := s.tokens[jti]; ok {
		if now.Before(exp) {
			return true, nil
		}
		delete(s.tokens, jti)
	}
	if op, ok := s.operators[operatorID]; ok {
		if now.Before(op.expires) {
			return !issuedAt.After(op.cutoff), nil
		}
		delete(s.operators, operatorID)
	}
	return false, nil
}

var (
	_ RevocationStore = (*RedisRevocationStore)(nil)
	_ RevocationStore = (*MemoryRevocationStore)(nil)
)
