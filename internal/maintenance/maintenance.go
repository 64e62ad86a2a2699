// Package maintenance exposes the externally toggled maintenance switch: a
// marker file whose presence silences all outbound alerts.
package maintenance

import (
	"os"
	"time"

	"github.com/sznuper/poolwatch/internal/alert"
)

// Marker probes the marker file. A zero-value or empty path is never active.
type Marker struct {
	path string
}

// NewMarker returns a marker probing path.
func NewMarker(path string) Marker {
	return Marker{path: path}
}

// Active reports whether the marker file exists right now.
func (m Marker) Active() bool {
	if m.path == "" {
		return false
	}
	_, err := os.Stat(m.path)
	return err == nil
}

// Path returns the marker path.
func (m Marker) Path() string { return m.path }

// Toggle remembers the marker state between polls to detect edges.
// It starts from "inactive", so a marker present at startup is reported as
// an enable edge on the first poll.
type Toggle struct {
	marker Marker
	prev   bool
}

// NewToggle returns a toggle over marker in the inactive state.
func NewToggle(marker Marker) *Toggle {
	return &Toggle{marker: marker}
}

// Poll probes the marker and returns a notice when its state changed since
// the previous poll.
func (t *Toggle) Poll(now time.Time) (alert.Alert, bool) {
	cur := t.marker.Active()
	if cur == t.prev {
		return alert.Alert{}, false
	}
	t.prev = cur

	if cur {
		return alert.New(alert.ClassInfo, alert.KindMaintenanceEnabled,
			"🛠️ *Maintenance mode ENABLED*, alerts suppressed", now), true
	}
	return alert.New(alert.ClassInfo, alert.KindMaintenanceDisabled,
		"✅ *Maintenance mode DISABLED*, alerts resumed", now), true
}

// Active returns the state seen by the last poll.
func (t *Toggle) Active() bool { return t.prev }
