package core

import (
	"context"
	"time"
)

// Logger is the structured logger used by the services.
// All methods take alternating key-value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MetricsCollector receives service-level measurements.
type MetricsCollector interface {
	// RecordLedgerOperation counts one ledger movement by kind and outcome
	// (ErrorKind of the result).
	RecordLedgerOperation(kind MovementKind, outcome string)
	// RecordTransition counts one workflow status change.
	RecordTransition(workflow, from, to string)
	// RecordAlerts publishes the current number of low-stock alerts per tier.
	RecordAlerts(counts AlertCounts)
}

// Event is a status change signalled to the notification collaborator.
type Event struct {
	Type       string    `json:"type"` // "<entity>.<action>", e.g. "material_request.rejected"
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Code       string    `json:"code"`
	Status     string    `json:"status"`
	ActorID    string    `json:"actor_id"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers status change events. Delivery failures never fail the
// business operation; services log them and move on.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Options carries the ambient collaborators shared by all services.
// Nil fields fall back to no-op implementations.
type Options struct {
	Logger   Logger
	Metrics  MetricsCollector
	Notifier Notifier
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) RecordLedgerOperation(MovementKind, string) {}
func (nopMetrics) RecordTransition(string, string, string)    {}
func (nopMetrics) RecordAlerts(AlertCounts)                   {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }
