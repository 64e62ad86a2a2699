package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// envBinding maps an environment variable onto a config key.
type envBinding struct {
	Key    string
	EnvVar string
}

// envBindings keeps the variable names of the original container setup.
var envBindings = []envBinding{
	{"log.level", "LOG_LEVEL"},
	{"source.path", "LOG_PATH"},
	{"detection.active_pool", "ACTIVE_POOL"},
	{"detection.error_rate_threshold", "ERROR_RATE_THRESHOLD"},
	{"detection.window_size", "WINDOW_SIZE"},
	{"detection.cooldown", "ALERT_COOLDOWN_SEC"},
	{"maintenance.file", "MAINTENANCE_FILE"},
	{"notify.urls", "NOTIFY_URL"},
	{"notify.slack_webhook_url", "SLACK_WEBHOOK_URL"},
	{"nats.url", "NATS_URL"},
	{"control.listen", "CONTROL_LISTEN"},
	{"heartbeat.schedule", "HEARTBEAT_SCHEDULE"},
}

// ApplyEnv overlays every bound environment variable that is set and
// non-empty. All invalid values are reported together.
func (c *Config) ApplyEnv() error {
	var problems []string
	for _, b := range envBindings {
		val := os.Getenv(b.EnvVar)
		if val == "" {
			continue
		}
		if err := c.Set(b.Key, val); err != nil {
			problems = append(problems, fmt.Sprintf("%s=%q: %v", b.EnvVar, val, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Keys lists every dotted key accepted by Set, in declaration order.
// Maps are not settable by key and are skipped.
func Keys() []string {
	return collectKeys(reflect.TypeFor[Config](), "")
}

var (
	durationType = reflect.TypeFor[Duration]()
	urlListType  = reflect.TypeFor[URLList]()
)

func collectKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := range t.NumField() {
		f := t.Field(i)
		name := yamlName(f)
		if name == "" {
			continue
		}
		key := prefix + name
		switch {
		case f.Type == durationType:
			keys = append(keys, key)
		case f.Type.Kind() == reflect.Struct:
			keys = append(keys, collectKeys(f.Type, key+".")...)
		case f.Type.Kind() == reflect.Map:
		default:
			keys = append(keys, key)
		}
	}
	return keys
}

// Set assigns value to the field named by a dotted yaml key such as
// "detection.window_size".
func (c *Config) Set(key, value string) error {
	v := reflect.ValueOf(c).Elem()
	for part := range strings.SplitSeq(key, ".") {
		if v.Kind() != reflect.Struct || v.Type() == durationType {
			return fmt.Errorf("unknown config key %q", key)
		}
		f, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		v = f
	}
	if err := setValue(v, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := range t.NumField() {
		if yamlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func setValue(v reflect.Value, s string) error {
	switch v.Type() {
	case durationType:
		d, err := parseDuration(s)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(Duration{d}))
		return nil
	case urlListType:
		v.Set(reflect.ValueOf(splitURLs(s)))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%q is not an integer", s)
		}
		v.SetInt(int64(n))
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", s)
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%q is not a boolean", s)
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("cannot be set from a string")
	}
	return nil
}
