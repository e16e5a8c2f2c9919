// Package notify delivers workflow status change events.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"fieldstock/internal/core"
)

// LogNotifier writes each event to a logger.
type LogNotifier struct {
	logger core.Logger
}

var _ core.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger core.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e core.Event) error {
	n.logger.Info("event",
		"type", e.Type, "entity_id", e.EntityID, "code", e.Code,
		"status", e.Status, "actor", e.ActorID, "reason", e.Reason)
	return nil
}

// NATSNotifier publishes events as JSON on "<prefix>.<entity>.<event>",
// e.g. "fieldstock.stock_transfer.in_transit".
type NATSNotifier struct {
	nc     *nats.Conn
	prefix string
}

var _ core.Notifier = (*NATSNotifier)(nil)

func NewNATSNotifier(nc *nats.Conn, prefix string) *NATSNotifier {
	return &NATSNotifier{nc: nc, prefix: strings.Trim(prefix, ".")}
}

// Subject returns the subject an event is published on.
func (n *NATSNotifier) Subject(e core.Event) string {
	if n.prefix == "" {
		return e.Type
	}
	return n.prefix + "." + e.Type
}

func (n *NATSNotifier) Notify(ctx context.Context, e core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.nc.Publish(n.Subject(e), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []core.Notifier

var _ core.Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, e core.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
