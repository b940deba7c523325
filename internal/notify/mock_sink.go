package notify

import "sync"

// RecordingSink keeps every notification in memory. Used in tests.
type RecordingSink struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *RecordingSink) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *RecordingSink) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *RecordingSink) CountLevel(level Level) int {
	count := 0
	for _, n := range r.Sent() {
		if n.Level == level {
			count++
		}
	}
	return count
}
