// Package extract turns raw access-log lines into observations.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
)

// DefaultPattern matches the upstream log_format of the blue/green proxy.
const DefaultPattern = `pool:(?P<pool>\w+)\s+release:(?P<release>[\w.\-]+)\s+upstream_status:(?P<upstream_status>\d+)`

// Observation is the part of a log line the detector cares about.
type Observation struct {
	Pool    string
	Status  int
	Release string
}

// Extractor maps one line to an observation. ok is false for lines that do
// not have the expected shape; those lines are skipped without side effects.
type Extractor interface {
	Extract(line string) (obs Observation, ok bool)
}

// Regex extracts fields through named capture groups.
type Regex struct {
	re      *regexp.Regexp
	pool    int
	status  int
	release int
}

// NewRegex compiles pattern. It must define the groups "pool" and
// "upstream_status"; "release" is optional.
func NewRegex(pattern string) (*Regex, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}

	r := &Regex{
		re:      re,
		pool:    re.SubexpIndex("pool"),
		status:  re.SubexpIndex("upstream_status"),
		release: re.SubexpIndex("release"),
	}
	if r.pool < 0 {
		return nil, fmt.Errorf("pattern has no (?P<pool>...) group")
	}
	if r.status < 0 {
		return nil, fmt.Errorf("pattern has no (?P<upstream_status>...) group")
	}
	return r, nil
}

func (r *Regex) Extract(line string) (Observation, bool) {
	m := r.re.FindStringSubmatch(line)
	if m == nil {
		return Observation{}, false
	}

	status, ok := leadingStatus(m[r.status])
	if !ok || m[r.pool] == "" {
		return Observation{}, false
	}

	obs := Observation{Pool: m[r.pool], Status: status}
	if r.release >= 0 {
		obs.Release = m[r.release]
	}
	return obs, true
}

// leadingStatus parses the first run of digits in s. nginx reports
// "502, 200" when it retried against a second upstream; the first code is
// what the client-facing pool answered.
func leadingStatus(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
