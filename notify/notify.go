// Package notify carries user-facing feedback out of the data layer:
// toast-style notifications for the UI and escalation mail for
// critical failures.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type classifies a notification for presentation.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is one piece of user-facing feedback.
type Notification struct {
	Title    string
	Message  string
	Type     Type
	Duration time.Duration
}

// Sink receives notifications. Implementations decide presentation: a
// toast queue, a log, a test buffer.
type Sink interface {
	Notify(n Notification)
}

// LogSink writes notifications to a logger, for headless runs.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Notify(n Notification) {
	var ev *zerolog.Event
	switch n.Type {
	case TypeError:
		ev = s.Log.Error()
	case TypeWarning:
		ev = s.Log.Warn()
	default:
		ev = s.Log.Info()
	}
	ev.Str("title", n.Title).Str("type", string(n.Type)).Msg(n.Message)
}

// CollectSink buffers notifications for inspection in tests.
type CollectSink struct {
	mu   sync.Mutex
	seen []Notification
}

func (s *CollectSink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, n)
}

// All returns the notifications received so far.
func (s *CollectSink) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.seen...)
}
