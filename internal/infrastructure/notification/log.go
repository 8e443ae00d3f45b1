package notification

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arcade/backend/internal/domain/notification"
)

// LogNotifier writes alerts to the log. It is the fallback when no queue is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notification")}
}

// Notify logs n at a level matching its severity
func (l *LogNotifier) Notify(_ context.Context, n notification.Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("operator_id", n.OperatorID),
		zap.Time("occurred_at", n.OccurredAt),
	}
	for k, v := range n.Attributes {
		fields = append(fields, zap.String(k, v))
	}
	l.logger.Log(levelFor(n.Severity), n.Subject, fields...)
	return nil
}

func levelFor(s notification.Severity) zapcore.Level {
	switch s {
	case notification.SeverityCritical:
		return zapcore.ErrorLevel
	case notification.SeverityWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// Fanout delivers to every notifier and joins their errors
type Fanout []notification.Notifier

// Notify calls each notifier in order, continuing past failures
func (f Fanout) Notify(ctx context.Context, n notification.Notification) error {
	var errs []error
	for _, target := range f {
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ notification.Notifier = (*LogNotifier)(nil)
	_ notification.Notifier = Fanout(nil)
)
