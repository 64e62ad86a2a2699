package watcher

import (
	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/detect"
	"github.com/sznuper/poolwatch/internal/extract"
	"github.com/sznuper/poolwatch/internal/gate"
)

// Delivery is one alert attempt and what the gate did with it.
type Delivery struct {
	Alert   alert.Alert
	Outcome gate.Outcome
}

// Result captures what processing a single line did. Dispatch failures are
// recorded in Deliveries rather than returned, so the caller always has
// something to display.
type Result struct {
	Line        string
	Matched     bool
	Observation extract.Observation // zero unless Matched
	Deliveries  []Delivery          // toggle notice first, then detection alerts
	Maintenance bool
	Snapshot    detect.Snapshot
}

// Summary aggregates the results of a Run.
type Summary struct {
	Lines     int
	Matched   int
	Attempted int
	Outcomes  map[gate.Outcome]int
}

func (s *Summary) add(r Result) {
	s.Lines++
	if r.Matched {
		s.Matched++
	}
	for _, d := range r.Deliveries {
		s.Attempted++
		s.Outcomes[d.Outcome]++
	}
}
