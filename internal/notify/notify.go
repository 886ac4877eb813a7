// Package notify decouples the three engines from any specific alerting
// channel. The core only ever depends on the Transport interface; the
// default implementation logs through zerolog, matching the teacher's own
// fallback-to-log behavior when no external notifier is configured.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Severity classifies a Message for routing and log-level selection.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message is a single notification, emitted by escalation (Self-Healing),
// milestone crossings (Trust Gate), or synapse_relay (Real-Time Learning).
type Message struct {
	Severity Severity
	Source   string // "trust_gate", "self_healing", "real_time_learning"
	Title    string
	Detail   string
	Fields   map[string]any
}

// Transport delivers a Message. Implementations must be safe for concurrent
// use; Send should not block longer than the caller's context allows.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport is the default Transport: it writes every message through a
// zerolog.Logger, at a level derived from Severity. No external dependency
// is required to run the core with this transport.
type LogTransport struct {
	logger zerolog.Logger
}

// NewLogTransport builds a LogTransport over logger.
func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send writes msg to the underlying logger. It never returns an error: a
// logging sink cannot itself fail in a way the caller should retry on.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	var ev *zerolog.Event
	switch msg.Severity {
	case SeverityCritical:
		ev = t.logger.Error()
	case SeverityWarning:
		ev = t.logger.Warn()
	default:
		ev = t.logger.Info()
	}
	ev = ev.Str("source", msg.Source).Str("title", msg.Title)
	for k, v := range msg.Fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg.Detail)
	return nil
}

// MultiTransport fans a message out to every transport it wraps, returning
// the first error encountered (but still attempting every transport).
type MultiTransport struct {
	transports []Transport
}

// NewMultiTransport wraps transports for fan-out delivery.
func NewMultiTransport(transports ...Transport) *MultiTransport {
	return &MultiTransport{transports: transports}
}

// Send delivers msg to every wrapped transport, accumulating the first error.
func (t *MultiTransport) Send(ctx context.Context, msg Message) error {
	var firstErr error
	for _, tr := range t.transports {
		if err := tr.Send(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
