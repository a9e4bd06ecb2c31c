package lesson

import (
	"strings"
	"sync"

	"dialogue-lesson-service/internal/domain"
)

// IsCompletionMessage reports whether msg carries the completion sentinel.
func IsCompletionMessage(msg domain.ChatMessage) bool {
	return msg.Role == domain.RoleModel && strings.Contains(msg.Text, CompletionSentinel)
}

// CompletionDetector scans message batches for the completion sentinel and fires once per session.
type CompletionDetector struct {
	mu    sync.Mutex
	fired bool
}

// Observe returns true the first time any of msgs completes the lesson and false afterwards.
func (d *CompletionDetector) Observe(msgs []domain.ChatMessage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired {
		return false
	}
	for _, m := range msgs {
		if IsCompletionMessage(m) {
			d.fired = true
			return true
		}
	}
	return false
}

// Fired reports whether completion was already recorded.
func (d *CompletionDetector) Fired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}
