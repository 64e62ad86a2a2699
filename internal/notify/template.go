package notify

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/sznuper/poolwatch/internal/alert"
)

// Default templates reproduce the Slack layout of the original watcher.
const (
	DefaultTitle = `{{ alert.emoji }} {{ alert.title }}`
	DefaultBody  = `{{ alert.text }}
{{- if alert.pool }}
*Active Pool:* ` + "`{{ alert.pool }}`" + `
{{- end }}
{{- if alert.error_rate }}
*Error Rate:* ` + "`{{ alert.error_rate }}%`" + ` {{ alert.bar }}
{{- end }}
🕒 *Timestamp:* {{ alert.timestamp }}`
)

// TemplateData holds all data available to notification templates.
type TemplateData struct {
	Globals map[string]any
	Alert   map[string]string
}

type classStyle struct {
	title string
	emoji string
	color string
}

var styles = map[alert.Class]classStyle{
	alert.ClassFailover:  {"Failover Detected!", "🚨", "#FF0000"},
	alert.ClassErrorRate: {"High Error Rate Detected!", "⚠️", "#FFA500"},
	alert.ClassInfo:      {"Alert Notification", "💡", "#36C5F0"},
}

func styleFor(c alert.Class) classStyle {
	if s, ok := styles[c]; ok {
		return s
	}
	return styles[alert.ClassInfo]
}

// BuildTemplateData flattens an alert into string fields for templates.
// Optional fields are empty strings when unset so `if` and `default` work.
func BuildTemplateData(globals map[string]any, a alert.Alert) TemplateData {
	style := styleFor(a.Class)
	fields := map[string]string{
		"id":        a.ID,
		"class":     string(a.Class),
		"kind":      string(a.Kind),
		"text":      a.Text,
		"pool":      a.Pool,
		"release":   a.Release,
		"title":     style.title,
		"emoji":     style.emoji,
		"color":     style.color,
		"timestamp": a.At.UTC().Format("2006-01-02 15:04:05 UTC"),
	}
	if a.ErrorRate != nil {
		fields["error_rate"] = strconv.FormatFloat(*a.ErrorRate, 'f', 2, 64)
		fields["bar"] = errorBar(*a.ErrorRate)
		fields["window"] = strconv.Itoa(a.Window)
	}
	if globals == nil {
		globals = map[string]any{}
	}
	return TemplateData{Globals: globals, Alert: fields}
}

// errorBar draws rate as 20 cells of 5% each.
func errorBar(rate float64) string {
	filled := int(rate / 5)
	filled = max(0, min(filled, 20))
	return strings.Repeat("█", filled) + strings.Repeat("░", 20-filled)
}

// Render executes a Go text/template string with Sprig functions and the
// accessor functions alert and globals, so {{alert.pool}} works.
func Render(tmplStr string, data TemplateData) (string, error) {
	funcMap := sprig.TxtFuncMap()
	funcMap["alert"] = func() map[string]string { return data.Alert }
	funcMap["globals"] = func() map[string]any { return data.Globals }

	t, err := template.New("notify").Funcs(funcMap).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}
