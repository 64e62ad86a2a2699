package alert

import (
	"time"

	"github.com/google/uuid"
)

// Class selects how an alert is rendered downstream.
type Class string

const (
	ClassFailover  Class = "failover"
	ClassErrorRate Class = "error_rate"
	ClassInfo      Class = "info"
)

// Kind identifies the condition that produced an alert.
type Kind string

const (
	KindFailover            Kind = "failover"
	KindPrimaryRestored     Kind = "primary_restored"
	KindErrorRateHigh       Kind = "error_rate_high"
	KindErrorRateRecovered  Kind = "error_rate_recovered"
	KindMaintenanceEnabled  Kind = "maintenance_enabled"
	KindMaintenanceDisabled Kind = "maintenance_disabled"
	KindManual              Kind = "manual"
	KindHeartbeat           Kind = "heartbeat"
)

// Alert is the structured message handed to the dispatcher.
// Pool and ErrorRate are optional; ErrorRate is nil when not applicable.
type Alert struct {
	ID        string
	Class     Class
	Kind      Kind
	Text      string
	Pool      string
	Release   string
	ErrorRate *float64
	Window    int
	At        time.Time
}

// New builds an alert stamped with a fresh ID.
func New(class Class, kind Kind, text string, at time.Time) Alert {
	return Alert{
		ID:    uuid.NewString(),
		Class: class,
		Kind:  kind,
		Text:  text,
		At:    at,
	}
}

// WithPool returns a copy of a with Pool set.
func (a Alert) WithPool(pool string) Alert {
	a.Pool = pool
	return a
}

// WithErrorRate returns a copy of a carrying the error rate and the window it was measured over.
func (a Alert) WithErrorRate(rate float64, window int) Alert {
	a.ErrorRate = &rate
	a.Window = window
	return a
}
