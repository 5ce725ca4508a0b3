// Package badge renders the "next update" countdown badge.
package badge

import (
	"bytes"
	"fmt"
	"html"
	"text/template"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule refreshes the stats every eight hours.
const DefaultSchedule = "0 */8 * * *"

// Countdown computes the time left until the next scheduled refresh.
// Schedules are always evaluated in UTC.
type Countdown struct {
	schedule cron.Schedule
}

// NewCountdown parses a standard five field cron spec.
func NewCountdown(spec string) (*Countdown, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Countdown{schedule: schedule}, nil
}

// NextRun returns the first scheduled run strictly after now, in UTC.
func (c *Countdown) NextRun(now time.Time) time.Time {
	return c.schedule.Next(now.UTC())
}

// ETA returns the time left until the next run as HH:MM:SS.
func (c *Countdown) ETA(now time.Time) string {
	return FormatETA(c.NextRun(now).Sub(now))
}

// FormatETA formats d as HH:MM:SS, truncating to whole seconds. Negative durations are 00:00:00.
func FormatETA(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

const (
	// Label is the left hand text of the countdown badge.
	Label = "⏱️ Next Update"

	width      = 180
	height     = 20
	labelWidth = 120
)

var svgTemplate = template.Must(template.New("badge").Funcs(template.FuncMap{
	"esc": html.EscapeString,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="{{.Width}}" height="{{.Height}}" role="img" aria-label="{{esc .Label}}: {{esc .Value}}">
  <title>{{esc .Label}}: {{esc .Value}}</title>
  <linearGradient id="s" x2="0" y2="100%">
    <stop offset="0" stop-color="#bbb"/>
    <stop offset="1" stop-color="#999"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="{{.Width}}" height="{{.Height}}" rx="3" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="{{.LabelWidth}}" height="{{.Height}}" fill="#555"/>
    <rect x="{{.LabelWidth}}" width="{{.ValueWidth}}" height="{{.Height}}" fill="#1cb841"/>
    <rect width="{{.Width}}" height="{{.Height}}" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" text-rendering="geometricPrecision" font-size="11">
    <text aria-hidden="true" x="{{.LabelX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)" textLength="{{.LabelLength}}">{{esc .Label}}</text>
    <text x="{{.LabelX}}" y="140" transform="scale(.1)" fill="#fff" textLength="{{.LabelLength}}">{{esc .Label}}</text>
    <text aria-hidden="true" x="{{.ValueX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)" textLength="{{.ValueLength}}">{{esc .Value}}</text>
    <text x="{{.ValueX}}" y="140" transform="scale(.1)" fill="#fff" textLength="{{.ValueLength}}">{{esc .Value}}</text>
  </g>
</svg>
`))

type svgData struct {
	Label, Value                             string
	Width, Height, LabelWidth, ValueWidth    int
	LabelX, ValueX, LabelLength, ValueLength int
}

// SVG renders a 180x20 two part badge. Coordinates of the text use the
// usual shields.io 10x scale.
func SVG(label, value string) []byte {
	valueWidth := width - labelWidth
	data := svgData{
		Label:       label,
		Value:       value,
		Width:       width,
		Height:      height,
		LabelWidth:  labelWidth,
		ValueWidth:  valueWidth,
		LabelX:      labelWidth*10/2 + 10,
		ValueX:      labelWidth*10 + valueWidth*10/2 - 15,
		LabelLength: (labelWidth - 10) * 10,
		ValueLength: (valueWidth - 10) * 10,
	}

	var buf bytes.Buffer
	// Writes to a bytes.Buffer never fail.
	_ = svgTemplate.Execute(&buf, data)
	return buf.Bytes()
}
