package testutil

import (
	"context"
	"sync"

	"github.com/arcade/backend/internal/domain/notification"
)

// RecordingNotifier captures notifications for assertions
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
	err  error
}

// NewRecordingNotifier creates a RecordingNotifier
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Notify records n, or returns the configured error
func (r *RecordingNotifier) Notify(_ context.Context, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

// SetError makes subsequent Notify calls fail
func (r *RecordingNotifier) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Sent returns the recorded notifications
func (r *RecordingNotifier) Sent() []notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Count returns how many notifications of kind were recorded
func (r *RecordingNotifier) Count(kind notification.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

var _ notification.Notifier = (*RecordingNotifier)(nil)
