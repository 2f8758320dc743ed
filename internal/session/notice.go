package session

import (
	"sync"
	"time"

	"github.com/Yicong-Lin-213/AilyCart/internal/pipeline"
)

// Notice is a user-facing failure message
type Notice struct {
	Kind       pipeline.Kind `json:"kind"`
	Message    string        `json:"message"`
	Persistent bool          `json:"persistent"`
	At         time.Time     `json:"at"`
}

// Notifier receives one notice per failure
type Notifier interface {
	Notify(n Notice)
}

// NoticeLog is a Notifier that queues notices until they are drained
type NoticeLog struct {
	mu      sync.Mutex
	pending []Notice
}

// NewNoticeLog creates an empty NoticeLog
func NewNoticeLog() *NoticeLog {
	return &NoticeLog{}
}

func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, n)
}

// Pending returns the number of queued notices
func (l *NoticeLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Drain returns the queued notices and empties the queue
func (l *NoticeLog) Drain() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}
