// Package flow threads an 8-character correlation id through every
// step of a signal's processing. The tracker is stateless beyond the
// id derivation; markers are structured log lines.
package flow

import (
	"go.uber.org/zap"

	"multisig-trader/internal/idhash"
)

// Tracker tags component-boundary markers with a signal's correlation
// id.
type Tracker struct {
	log *zap.SugaredLogger
}

// NewTracker wraps a logger into a flow tracker.
func NewTracker(log *zap.SugaredLogger) *Tracker {
	return &Tracker{log: log}
}

// Logger returns the base logger bound to the signal's correlation id.
// Components hold this for all their log lines inside the flow.
func (t *Tracker) Logger(signalID string) *zap.SugaredLogger {
	return t.log.With("flow", idhash.CorrelationID(signalID))
}

// Start marks entry into a component for the given signal.
func (t *Tracker) Start(signalID, service, operation string) {
	t.Logger(signalID).Infow("flow start", "service", service, "operation", operation)
}

// Step marks an intermediate step inside a component.
func (t *Tracker) Step(signalID, service, step string, kv ...interface{}) {
	args := append([]interface{}{"service", service, "step", step}, kv...)
	t.Logger(signalID).Infow("flow step", args...)
}

// Complete marks successful completion of a component.
func (t *Tracker) Complete(signalID, service, operation string) {
	t.Logger(signalID).Infow("flow complete", "service", service, "operation", operation)
}

// Fail marks a failure at a component boundary.
func (t *Tracker) Fail(signalID, service, operation string, err error) {
	t.Logger(signalID).Warnw("flow fail", "service", service, "operation", operation, "error", err)
}
