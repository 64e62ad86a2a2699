package notify

import (
	"context"
	"slices"
	"sync"

	"github.com/sznuper/poolwatch/internal/alert"
)

// Recorder is a sender that keeps alerts in memory instead of sending them.
// It backs dry runs, log replays and the dashboard.
type Recorder struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *Recorder) Send(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

// Alerts returns a copy of everything recorded so far.
func (r *Recorder) Alerts() []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.alerts)
}
