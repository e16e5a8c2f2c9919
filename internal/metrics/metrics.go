// Package metrics provides core.MetricsCollector implementations.
package metrics

import (
	"time"

	"fieldstock/internal/core"
)

// HTTPObserver records served HTTP requests. The web adapter uses it when the
// collector supports it.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// Nop discards every measurement.
type Nop struct{}

var (
	_ core.MetricsCollector = Nop{}
	_ HTTPObserver          = Nop{}
)

func NewNop() Nop { return Nop{} }

func (Nop) RecordLedgerOperation(core.MovementKind, string) {}
func (Nop) RecordTransition(string, string, string)         {}
func (Nop) RecordAlerts(core.AlertCounts)                   {}
func (Nop) ObserveHTTP(string, string, int, time.Duration)  {}
