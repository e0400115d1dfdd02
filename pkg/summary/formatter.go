// Package summary renders canonical records into the text delivered to
// destinations.
package summary

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kart-io/relayhub/pkg/attachment"
	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/submission"
)

// Absence markers
const (
	NotCaptured = "not captured"
	Unknown     = "unknown"
)

// DefaultMaxFieldRunes bounds every rendered field value
const DefaultMaxFieldRunes = 300

// DefaultMaxRunes bounds the whole summary. It stays below the 4096
// characters a chat message may carry.
const DefaultMaxRunes = 4000

// minFieldRunes is the shortest a shortened field value gets
const minFieldRunes = 16

// MapLinkBase is the prefix of rendered map links
const MapLinkBase = "https://maps.google.com/?q="

// Options configures a Formatter
type Options struct {
	Title         string
	CountryCode   string
	ParseMode     string
	TimeZone      *time.Location
	MaxFieldRunes int
	MaxRunes      int
}

// OptionsFromConfig derives formatter options from the service config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Title:       cfg.Title,
		CountryCode: cfg.CountryCode,
		ParseMode:   cfg.ParseMode,
		TimeZone:    cfg.TimeZone,
	}
}

// Formatter renders records. Rendering is deterministic and never fails:
// a field that cannot be rendered falls back to its absence marker.
type Formatter struct {
	opts   Options
	logger logger.Logger
}

// NewFormatter creates a formatter
func NewFormatter(opts Options, l logger.Logger) *Formatter {
	if opts.TimeZone == nil {
		opts.TimeZone = time.UTC
	}
	if opts.MaxFieldRunes <= 0 {
		opts.MaxFieldRunes = DefaultMaxFieldRunes
	}
	if opts.MaxRunes <= 0 {
		opts.MaxRunes = DefaultMaxRunes
	}
	if opts.ParseMode == "" {
		opts.ParseMode = config.ParseModeMarkdown
	}
	if l == nil {
		l = logger.Discard
	}
	return &Formatter{opts: opts, logger: l}
}

// Render builds the summary text for rec. The Location, Attachment and Time
// sections are always rendered in full; when the whole text would exceed
// MaxRunes the identity, origin and device values are shortened instead.
func (f *Formatter) Render(rec *submission.Record) string {
	if rec == nil {
		rec = &submission.Record{}
	}

	tail := f.renderTail(rec)
	budget := f.opts.MaxRunes - utf8.RuneCountInString(tail) - 1

	floor := min(minFieldRunes, f.opts.MaxFieldRunes)
	limit := f.opts.MaxFieldRunes
	var head string
	for {
		head = f.renderHead(rec, limit)
		if utf8.RuneCountInString(head) <= budget || limit <= floor {
			break
		}
		limit = max(limit/2, floor)
	}

	return strings.TrimRight(head+"\n"+tail, "\n")
}

func (f *Formatter) renderHead(rec *submission.Record, limit int) string {
	w := f.writer(limit)
	if f.opts.Title != "" {
		w.b.WriteString(f.bold(f.escape(truncate(f.opts.Title, limit))))
		w.b.WriteString("\n")
	}

	w.section("Identity")
	w.line("Mobile", NotCaptured, func() string { return f.mobile(rec.Mobile) })
	w.line("Operator", NotCaptured, func() string { return rec.Operator })
	w.line("Submission", Unknown, func() string { return rec.ID })

	w.section("Network origin")
	w.line("IP address", Unknown, func() string { return rec.Origin.IP })
	w.line("ISP", Unknown, func() string { return rec.Origin.Org })
	w.line("City", Unknown, func() string { return rec.Origin.City })
	w.line("Region", Unknown, func() string { return rec.Origin.Region })
	w.line("Country", Unknown, func() string { return rec.Origin.Country })

	w.section("Device")
	if rec.Device == nil {
		w.b.WriteString(NotCaptured + "\n")
	} else {
		w.line("Charging", Unknown, func() string { return charging(rec.Device) })
		w.line("Battery level", Unknown, func() string { return batteryLevel(rec.Device) })
		w.line("Network type", Unknown, func() string { return leaf(rec.Device, "connection", "effectiveType") })
		w.line("Time zone", Unknown, func() string { return leaf(rec.Device, "timezone") })
		w.line("Platform", Unknown, func() string { return leaf(rec.Device, "platform") })
		w.line("User agent", Unknown, func() string { return leaf(rec.Device, "userAgent") })
		w.line("Page", Unknown, func() string { return leaf(rec.Device, "url") })
		if _, ok := rec.Device["raw"]; ok && len(rec.Device) == 1 {
			w.line("Raw", Unknown, func() string { return leaf(rec.Device, "raw") })
		}
	}
	return w.b.String()
}

func (f *Formatter) renderTail(rec *submission.Record) string {
	w := f.writer(f.opts.MaxFieldRunes)

	w.section("Location")
	f.location(w, rec.Location)

	w.section("Attachment")
	w.line("Photo", Unknown, func() string { return describeAttachment(rec.Attachment) })

	w.section("Time")
	w.line("Event", Unknown, func() string { return f.eventTime(rec) })
	return w.b.String()
}

func (f *Formatter) location(w *fieldWriter, loc submission.Location) {
	switch loc.Kind {
	case submission.LocationCoordinates:
		lat := strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
		lon := strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		w.line("Latitude", Unknown, func() string { return lat })
		w.line("Longitude", Unknown, func() string { return lon })
		w.line("Accuracy", Unknown, func() string {
			if loc.Accuracy == nil {
				return ""
			}
			return fmt.Sprintf("%.0fm", math.Round(*loc.Accuracy))
		})
		// The link is emitted raw; escaping would alter the URL.
		w.b.WriteString("Map: " + MapLinkBase + lat + "," + lon + "\n")
	case submission.LocationUnrecognized:
		w.line("Unrecognized", Unknown, func() string { return string(loc.Raw) })
	default:
		w.line("Status", NotCaptured, func() string { return loc.Reason })
	}
}

// fieldWriter accumulates "label: value" lines, each value cut to limit
// runes before escaping so a cut never splits an escape sequence.
type fieldWriter struct {
	f     *Formatter
	b     strings.Builder
	limit int
}

func (f *Formatter) writer(limit int) *fieldWriter {
	return &fieldWriter{f: f, limit: limit}
}

// line writes "label: value". A value that is empty or panics while being
// computed renders as fallback.
func (w *fieldWriter) line(label, fallback string, value func() string) {
	v := w.f.guard(label, value)
	if v == "" {
		v = fallback
	} else {
		v = w.f.escape(truncate(v, w.limit))
	}
	w.b.WriteString(label + ": " + v + "\n")
}

func (f *Formatter) guard(label string, value func() string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("Summary field render failed", "field", label, "panic", fmt.Sprint(r))
			out = ""
		}
	}()
	return strings.TrimSpace(value())
}

func (w *fieldWriter) section(name string) {
	if w.b.Len() > 0 {
		w.b.WriteString("\n")
	}
	w.b.WriteString(w.f.bold(name + ":"))
	w.b.WriteString("\n")
}

func (f *Formatter) bold(s string) string {
	if f.opts.ParseMode == config.ParseModeMarkdown {
		return "*" + s + "*"
	}
	return s
}

func (f *Formatter) escape(s string) string {
	if f.opts.ParseMode == config.ParseModeMarkdown {
		return legacyMarkdown.Replace(s)
	}
	return s
}

func (f *Formatter) mobile(m string) string {
	if m == "" || f.opts.CountryCode == "" || strings.HasPrefix(m, "+") {
		return m
	}
	return "+" + strings.TrimPrefix(f.opts.CountryCode, "+") + m
}

func (f *Formatter) eventTime(rec *submission.Record) string {
	if rec.EventTime.IsZero() {
		return ""
	}
	s := rec.EventTime.In(f.opts.TimeZone).Format("02 Jan 2006, 15:04:05 MST")
	if !rec.EventTimeProvided {
		s += " (received)"
	}
	return s
}

func describeAttachment(a attachment.Attachment) string {
	switch a.State {
	case attachment.Absent:
		return NotCaptured
	case attachment.Denied:
		return "denied (" + a.Reason + ")"
	case attachment.Undecodable:
		return "undecodable (" + a.Reason + ")"
	}

	size := attachment.HumanSize(a.SizeBytes)
	switch a.Deliverability {
	case attachment.TooSmall:
		return fmt.Sprintf("captured, %s %s, below minimum size", size, a.MimeType)
	case attachment.TooLarge:
		return fmt.Sprintf("captured, %s %s, too large to upload", size, a.MimeType)
	default:
		return fmt.Sprintf("captured, %s %s", size, a.MimeType)
	}
}

func leaf(m map[string]any, path ...string) string {
	v, ok := lookup(m, path...)
	if !ok {
		return ""
	}
	s, _ := scalar(v)
	return s
}

func charging(device map[string]any) string {
	v, ok := lookup(device, "battery", "charging")
	if !ok {
		return ""
	}
	if b, ok := v.(bool); ok {
		if b {
			return "yes"
		}
		return "no"
	}
	s, _ := scalar(v)
	return s
}

// batteryLevel accepts a 0..1 fraction or a percentage.
func batteryLevel(device map[string]any) string {
	v, ok := lookup(device, "battery", "level")
	if !ok {
		return ""
	}
	level, ok := number(v)
	if !ok || level < 0 {
		s, _ := scalar(v)
		return s
	}
	if level <= 1 {
		level *= 100
	}
	return fmt.Sprintf("%.0f%%", math.Round(level))
}
