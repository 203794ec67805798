package testutil

import (
	"sync"

	"github.com/codr1/Kickabout/internal/notify"
)

// RecordingNotifier collects enqueued messages instead of sending them.
type RecordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *RecordingNotifier) Enqueue(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Take returns the messages recorded so far and forgets them.
func (r *RecordingNotifier) Take() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}
