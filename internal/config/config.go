package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/a8m/envsubst"
	"github.com/goccy/go-yaml"
)

// Example is the annotated configuration written by `poolwatch init`.
//
//go:embed example.yaml
var Example []byte

// ErrNoDestination is returned when no notification URL is configured.
var ErrNoDestination = errors.New("no alert destination configured: set notify.urls, NOTIFY_URL or SLACK_WEBHOOK_URL")

type Config struct {
	Log         Log            `yaml:"log"`
	Source      Source         `yaml:"source"`
	Detection   Detection      `yaml:"detection"`
	Maintenance Maintenance    `yaml:"maintenance"`
	Notify      Notify         `yaml:"notify"`
	NATS        NATS           `yaml:"nats"`
	Control     Control        `yaml:"control"`
	Heartbeat   Heartbeat      `yaml:"heartbeat"`
	Globals     map[string]any `yaml:"globals"`
}

type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type Source struct {
	Path       string     `yaml:"path" validate:"required"`
	Format     string     `yaml:"format" validate:"oneof=regex json"`
	Pattern    string     `yaml:"pattern"`
	JSONFields JSONFields `yaml:"json_fields"`
	FromStart  bool       `yaml:"from_start"`
	Poll       Duration   `yaml:"poll" validate:"gte=0s"`
}

type JSONFields struct {
	Pool    string `yaml:"pool"`
	Status  string `yaml:"status"`
	Release string `yaml:"release"`
}

type Detection struct {
	ActivePool         string   `yaml:"active_pool" validate:"required"`
	ErrorRateThreshold float64  `yaml:"error_rate_threshold" validate:"gte=0,lte=100"`
	WindowSize         int      `yaml:"window_size" validate:"gte=1"`
	Cooldown           Duration `yaml:"cooldown" validate:"gte=0s"`
}

type Maintenance struct {
	File string `yaml:"file"`
}

type Notify struct {
	URLs            URLList             `yaml:"urls"`
	SlackWebhookURL string              `yaml:"slack_webhook_url"`
	Params          map[string]string   `yaml:"params"`
	Timeout         Duration            `yaml:"timeout" validate:"gte=0s"`
	Templates       map[string]Template `yaml:"templates" validate:"dive,keys,oneof=failover error_rate info,endkeys"`
}

// Template overrides the title and body for one alert class.
type Template struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Control struct {
	Listen          string   `yaml:"listen"`
	TriggerCooldown Duration `yaml:"trigger_cooldown" validate:"gte=0s"`
}

type Heartbeat struct {
	Schedule string `yaml:"schedule"`
}

// Duration handles a Go duration string ("5m") or a whole number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var secs int64
	if err := unmarshal(&secs); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}

	var str string
	if err := unmarshal(&str); err != nil {
		return fmt.Errorf("duration: must be a duration string or whole seconds")
	}
	parsed, err := parseDuration(str)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration: %q is neither a duration nor whole seconds", s)
	}
	return d, nil
}

// URLList handles a single URL string or a list of URLs.
type URLList []string

func (u *URLList) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err == nil {
		*u = splitURLs(str)
		return nil
	}

	var list []string
	if err := unmarshal(&list); err != nil {
		return fmt.Errorf("urls: must be a url string or a list of urls")
	}
	*u = list
	return nil
}

func splitURLs(s string) URLList {
	var out URLList
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: Log{Level: "info"},
		Source: Source{
			Path:   "/var/log/nginx/access.log",
			Format: "regex",
			Poll:   Duration{250 * time.Millisecond},
		},
		Detection: Detection{
			ActivePool:         "blue",
			ErrorRateThreshold: 2,
			WindowSize:         200,
			Cooldown:           Duration{300 * time.Second},
		},
		Maintenance: Maintenance{File: "/watcher/data/maintenance_mode"},
		Notify:      Notify{Timeout: Duration{5 * time.Second}},
		NATS:        NATS{Subject: "poolwatch.alerts"},
		Control:     Control{Listen: ":3000", TriggerCooldown: Duration{10 * time.Second}},
	}
}

// Load reads a YAML file over the defaults, expanding ${VAR} references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	data, err := envsubst.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("expanding env vars: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// NotifyURLs returns every configured destination, the Slack webhook last.
func (c *Config) NotifyURLs() []string {
	urls := append([]string(nil), c.Notify.URLs...)
	if c.Notify.SlackWebhookURL != "" {
		urls = append(urls, c.Notify.SlackWebhookURL)
	}
	return urls
}

// CheckDestination returns ErrNoDestination when alerts have nowhere to go.
func (c *Config) CheckDestination() error {
	if len(c.NotifyURLs()) == 0 {
		return ErrNoDestination
	}
	return nil
}
