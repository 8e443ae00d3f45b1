// Package notification delivers alerts raised by billing and reconciliation.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arcade/backend/internal/domain/notification"
)

// DefaultStream is the Redis stream alerts are appended to
const DefaultStream = "arcade:notifications"

// DefaultStreamMaxLen caps the stream length (approximate trim)
const DefaultStreamMaxLen int64 = 10000

// streamAdder is the subset of the Redis client used here
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamNotifier appends alerts to a Redis stream. Downstream
// consumers (SMS, email, dashboards) read the stream with consumer groups.
type RedisStreamNotifier struct {
	client streamAdder
	stream string
	maxLen int64
	logger *zap.Logger
}

// RedisStreamOption configures a RedisStreamNotifier
type RedisStreamOption func(*RedisStreamNotifier)

// WithStream overrides the stream key
func WithStream(stream string) RedisStreamOption {
	return func(n *RedisStreamNotifier) {
		if stream != "" {
			n.stream = stream
		}
	}
}

// WithMaxLen overrides the approximate stream cap. Zero or less keeps the default.
func WithMaxLen(maxLen int64) RedisStreamOption {
	return func(n *RedisStreamNotifier) {
		if maxLen > 0 {
			n.maxLen = maxLen
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RedisStreamOption {
	return func(n *RedisStreamNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewRedisStreamNotifier creates a notifier writing to client
func NewRedisStreamNotifier(client redis.UniversalClient, opts ...RedisStreamOption) *RedisStreamNotifier {
	return newRedisStreamNotifier(client, opts...)
}

func newRedisStreamNotifier(client streamAdder, opts ...RedisStreamOption) *RedisStreamNotifier {
	n := &RedisStreamNotifier{
		client: client,
		stream: DefaultStream,
		maxLen: DefaultStreamMaxLen,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify appends n to the stream
func (s *RedisStreamNotifier) Notify(ctx context.Context, n notification.Notification) error {
	values, err := streamValues(n)
	if err != nil {
		return err
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("append notification to %s: %w", s.stream, err)
	}

	s.logger.Debug("Notification queued",
		zap.String("stream", s.stream),
		zap.String("entry_id", id),
		zap.String("kind", string(n.Kind)),
		zap.String("operator_id", n.OperatorID))
	return nil
}

// streamValues flattens n into stream fields. Attributes travel as one JSON
// field so consumers do not need to know every key.
func streamValues(n notification.Notification) (map[string]any, error) {
	occurred := n.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	values := map[string]any{
		"kind":        string(n.Kind),
		"severity":    string(n.Severity),
		"operator_id": n.OperatorID,
		"subject":     n.Subject,
		"occurred_at": occurred.UTC().Format(time.RFC3339Nano),
	}
	if len(n.Attributes) > 0 {
		attrs, err := json.Marshal(n.Attributes)
		if err != nil {
			return nil, fmt.Errorf("encode notification attributes: %w", err)
		}
		values["attributes"] = string(attrs)
	}
	return values, nil
}

var _ notification.Notifier = (*RedisStreamNotifier)(nil)
