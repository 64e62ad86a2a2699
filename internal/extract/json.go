package extract

import (
	"strings"

	"github.com/tidwall/gjson"
)

// JSONFields names the gjson paths holding each field.
type JSONFields struct {
	Pool    string
	Status  string
	Release string
}

// DefaultJSONFields matches an nginx `escape=json` log_format using the same
// variable names as the text format.
var DefaultJSONFields = JSONFields{
	Pool:    "pool",
	Status:  "upstream_status",
	Release: "release",
}

// JSON extracts fields from JSON-encoded access log lines.
type JSON struct {
	fields JSONFields
}

// NewJSON returns a JSON extractor. Empty paths fall back to DefaultJSONFields.
func NewJSON(fields JSONFields) *JSON {
	if fields.Pool == "" {
		fields.Pool = DefaultJSONFields.Pool
	}
	if fields.Status == "" {
		fields.Status = DefaultJSONFields.Status
	}
	if fields.Release == "" {
		fields.Release = DefaultJSONFields.Release
	}
	return &JSON{fields: fields}
}

func (j *JSON) Extract(line string) (Observation, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' || !gjson.Valid(line) {
		return Observation{}, false
	}

	res := gjson.GetMany(line, j.fields.Pool, j.fields.Status, j.fields.Release)
	pool, status, release := res[0], res[1], res[2]

	if pool.Type != gjson.String || pool.Str == "" {
		return Observation{}, false
	}

	var code int
	switch status.Type {
	case gjson.Number:
		code = int(status.Int())
	case gjson.String:
		n, ok := leadingStatus(strings.TrimSpace(status.Str))
		if !ok {
			return Observation{}, false
		}
		code = n
	default:
		return Observation{}, false
	}
	if code <= 0 {
		return Observation{}, false
	}

	return Observation{Pool: pool.Str, Status: code, Release: release.String()}, true
}
