package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/detect"
	"github.com/sznuper/poolwatch/internal/extract"
	"github.com/sznuper/poolwatch/internal/gate"
	"github.com/sznuper/poolwatch/internal/maintenance"
	"github.com/sznuper/poolwatch/internal/metrics"
	"github.com/sznuper/poolwatch/internal/notify"
)

var t0 = time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)

type fixture struct {
	watcher  *Watcher
	recorder *notify.Recorder
	marker   string
	now      time.Time
}

func newFixture(t *testing.T, cfg detect.Config, m *metrics.Metrics) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ext, err := extract.NewRegex("")
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		recorder: &notify.Recorder{},
		marker:   filepath.Join(t.TempDir(), "maintenance_mode"),
		now:      t0,
	}
	marker := maintenance.NewMarker(f.marker)
	f.watcher = New(Deps{
		Detector:  detect.New(cfg),
		Extractor: ext,
		Toggle:    maintenance.NewToggle(marker),
		Gate:      gate.New(marker, f.recorder, time.Second, logger, m),
		Metrics:   m,
		Now:       func() time.Time { return f.now },
	}, logger)
	return f
}

func (f *fixture) line(ctx context.Context, pool string, status int) Result {
	return f.watcher.Process(ctx, fmt.Sprintf("pool:%s release:%s-v1 upstream_status:%d", pool, pool, status))
}

func (f *fixture) setMaintenance(t *testing.T, on bool) {
	t.Helper()
	if on {
		if err := os.WriteFile(f.marker, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		return
	}
	if err := os.Remove(f.marker); err != nil {
		t.Fatal(err)
	}
}

func sentKinds(r *notify.Recorder) []alert.Kind {
	var out []alert.Kind
	for _, a := range r.Alerts() {
		out = append(out, a.Kind)
	}
	return out
}

func defaultConfig() detect.Config {
	return detect.Config{ActivePool: "blue", Threshold: 2, WindowSize: 200, Cooldown: 5 * time.Minute}
}

func TestProcess_Failover(t *testing.T) {
	f := newFixture(t, defaultConfig(), nil)
	ctx := context.Background()

	if r := f.line(ctx, "blue", 200); len(r.Deliveries) != 0 {
		t.Fatalf("deliveries = %v, want none on the active pool", r.Deliveries)
	}

	r := f.line(ctx, "green", 200)
	if len(r.Deliveries) != 1 || r.Deliveries[0].Outcome != gate.Dispatched {
		t.Fatalf("deliveries = %+v, want one dispatched failover", r.Deliveries)
	}

	sent := f.recorder.Alerts()
	if len(sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sent))
	}
	if sent[0].Class != alert.ClassFailover || sent[0].Pool != "green" || sent[0].Release != "green-v1" {
		t.Errorf("alert = %+v, want failover to green carrying its release", sent[0])
	}
	if !r.Snapshot.FailedOver || r.Snapshot.CurrentPool != "green" {
		t.Errorf("snapshot = %+v, want failed over to green", r.Snapshot)
	}
}

func TestProcess_DottedReleaseReachesDetector(t *testing.T) {
	f := newFixture(t, detect.Config{ActivePool: "blue", Threshold: 50, WindowSize: 2, Cooldown: time.Minute}, nil)
	ctx := context.Background()

	for range 2 {
		r := f.watcher.Process(ctx, "pool:green release:green-v1.2 upstream_status:502")
		if !r.Matched {
			t.Fatal("line with a dotted release should match")
		}
	}

	want := []alert.Kind{alert.KindFailover, alert.KindErrorRateHigh}
	if got := sentKinds(f.recorder); !slices.Equal(got, want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
	if rel := f.recorder.Alerts()[0].Release; rel != "green-v1.2" {
		t.Errorf("release = %q, want %q", rel, "green-v1.2")
	}
}

func TestProcess_UnmatchedLineSkipped(t *testing.T) {
	f := newFixture(t, defaultConfig(), nil)

	r := f.watcher.Process(context.Background(), `127.0.0.1 - - "GET / HTTP/1.1" 200`)
	if r.Matched {
		t.Error("line should not match")
	}
	if r.Snapshot.WindowLen != 0 {
		t.Errorf("window len = %d, want 0", r.Snapshot.WindowLen)
	}
	if len(f.recorder.Alerts()) != 0 {
		t.Error("unmatched line must not produce alerts")
	}
}

func TestProcess_MaintenanceSuppressesAndConsumesCooldown(t *testing.T) {
	f := newFixture(t, defaultConfig(), nil)
	ctx := context.Background()

	f.setMaintenance(t, true)
	r := f.line(ctx, "green", 200)

	// Enable notice and failover are both attempted and both suppressed.
	var outcomes []gate.Outcome
	for _, d := range r.Deliveries {
		outcomes = append(outcomes, d.Outcome)
	}
	if !slices.Equal(outcomes, []gate.Outcome{gate.Suppressed, gate.Suppressed}) {
		t.Fatalf("outcomes = %v, want [suppressed suppressed]", outcomes)
	}
	if r.Deliveries[0].Alert.Kind != alert.KindMaintenanceEnabled {
		t.Errorf("first delivery = %s, want maintenance_enabled", r.Deliveries[0].Alert.Kind)
	}
	if !r.Maintenance {
		t.Error("result should report maintenance active")
	}

	f.now = f.now.Add(time.Minute)
	f.setMaintenance(t, false)
	r = f.line(ctx, "blue", 200)

	// The disable notice goes through; the pool change back to blue is
	// still inside the failover cooldown started while suppressed.
	if !slices.Equal(sentKinds(f.recorder), []alert.Kind{alert.KindMaintenanceDisabled}) {
		t.Fatalf("sent = %v, want [maintenance_disabled]", sentKinds(f.recorder))
	}
	if r.Snapshot.CurrentPool != "blue" {
		t.Errorf("current pool = %q, want tracker to follow while suppressed", r.Snapshot.CurrentPool)
	}

	f.now = f.now.Add(5 * time.Minute)
	f.line(ctx, "green", 200)
	if got := sentKinds(f.recorder); !slices.Equal(got, []alert.Kind{alert.KindMaintenanceDisabled, alert.KindFailover}) {
		t.Errorf("sent = %v, want failover after the cooldown", got)
	}
}

func TestRun_ErrorRateBreachAndRecovery(t *testing.T) {
	f := newFixture(t, detect.Config{ActivePool: "blue", Threshold: 50, WindowSize: 4, Cooldown: time.Minute}, nil)

	var lines []string
	for _, code := range []int{500, 500, 500, 200} {
		lines = append(lines, fmt.Sprintf("pool:blue release:r1 upstream_status:%d", code))
	}
	lines = append(lines, "noise")

	var seen int
	f.watcher.deps.OnResult = func(Result) { seen++ }

	summary := f.watcher.Run(context.Background(), slices.Values(lines))
	if summary.Lines != 5 || summary.Matched != 4 || seen != 5 {
		t.Errorf("summary = %+v, seen = %d", summary, seen)
	}
	if summary.Outcomes[gate.Dispatched] != 1 {
		t.Errorf("dispatched = %d, want 1", summary.Outcomes[gate.Dispatched])
	}

	sent := f.recorder.Alerts()
	if len(sent) != 1 || sent[0].Kind != alert.KindErrorRateHigh {
		t.Fatalf("sent = %v, want one error_rate_high", sentKinds(f.recorder))
	}
	if sent[0].ErrorRate == nil || *sent[0].ErrorRate != 75 || sent[0].Pool != "blue" {
		t.Errorf("alert = %+v, want 75%% on blue", sent[0])
	}

	f.now = f.now.Add(time.Minute)
	healthy := slices.Repeat([]string{"pool:blue release:r1 upstream_status:200"}, 4)
	f.watcher.Run(context.Background(), slices.Values(healthy))

	if got := sentKinds(f.recorder); !slices.Equal(got, []alert.Kind{alert.KindErrorRateHigh, alert.KindErrorRateRecovered}) {
		t.Errorf("sent = %v, want breach then recovery", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, defaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := func(yield func(string) bool) {
		for range 10 {
			if !yield("pool:blue release:r1 upstream_status:200") {
				return
			}
		}
	}
	f.watcher.deps.OnResult = func(r Result) {
		if r.Snapshot.WindowLen == 3 {
			cancel()
		}
	}

	if summary := f.watcher.Run(ctx, lines); summary.Lines != 3 {
		t.Errorf("lines = %d, want 3", summary.Lines)
	}
}

func TestProcess_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, defaultConfig(), m)
	ctx := context.Background()

	f.line(ctx, "blue", 200)
	f.line(ctx, "green", 502)
	f.watcher.Process(ctx, "garbage")

	expected := `
# HELP poolwatch_lines_total Log lines read, partitioned by whether they matched the extraction pattern.
# TYPE poolwatch_lines_total counter
poolwatch_lines_total{result="matched"} 2
poolwatch_lines_total{result="unmatched"} 1
# HELP poolwatch_alerts_total Alerts attempted, partitioned by kind and gate outcome.
# TYPE poolwatch_alerts_total counter
poolwatch_alerts_total{kind="failover",outcome="dispatched"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"poolwatch_lines_total", "poolwatch_alerts_total"); err != nil {
		t.Error(err)
	}
}
