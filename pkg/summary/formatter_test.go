package summary

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/relayhub/pkg/attachment"
	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/enrichment"
	"github.com/kart-io/relayhub/pkg/submission"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

func newFormatter() *Formatter {
	return NewFormatter(Options{Title: "New submission received", CountryCode: "+91", TimeZone: ist}, nil)
}

func fullRecord() *submission.Record {
	acc := 18.4
	return &submission.Record{
		ID:       "sub-1",
		Mobile:   "9876543210",
		Operator: "Airtel",
		Location: submission.Location{Kind: submission.LocationCoordinates, Latitude: 12.9, Longitude: 77.6, Accuracy: &acc},
		Attachment: attachment.Attachment{
			State: attachment.Decoded, MimeType: "image/png", SizeBytes: 48 * 1024, Deliverability: attachment.Deliverable,
		},
		Device: map[string]any{
			"battery":    map[string]any{"charging": true, "level": json.Number("0.42")},
			"connection": map[string]any{"effectiveType": "4g"},
			"timezone":   "Asia/Kolkata",
			"userAgent":  "Mozilla/5.0 (Linux; Android 14)",
			"url":        "https://example.com/offer_page",
		},
		Origin:            enrichment.Origin{IP: "49.36.10.1", Org: "AS55836 Reliance Jio", City: "Bengaluru", Region: "Karnataka", Country: "IN", Resolved: true},
		EventTime:         time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC),
		EventTimeProvided: true,
	}
}

func TestRender_Full(t *testing.T) {
	out := newFormatter().Render(fullRecord())

	for _, want := range []string{
		"*New submission received*",
		"Mobile: +919876543210",
		"Operator: Airtel",
		"IP address: 49.36.10.1",
		"City: Bengaluru",
		"Charging: yes",
		"Battery level: 42%",
		"Network type: 4g",
		"Latitude: 12.9",
		"Longitude: 77.6",
		"Accuracy: 18m",
		"Map: https://maps.google.com/?q=12.9,77.6",
		"Photo: captured, 48.0 KB image/png",
		"Event: 10 Jun 2024, 15:00:00 IST",
	} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, `offer\_page`, "user text is escaped")
}

func TestRender_EverySectionPresent(t *testing.T) {
	out := newFormatter().Render(&submission.Record{
		Location: submission.Location{Kind: submission.LocationDenied, Reason: submission.NotCaptured},
	})

	for _, section := range []string{"*Identity:*", "*Network origin:*", "*Device:*", "*Location:*", "*Attachment:*", "*Time:*"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "Mobile: not captured")
	assert.Contains(t, out, "IP address: unknown")
	assert.Contains(t, out, "Status: not captured")
	assert.Contains(t, out, "Photo: not captured")
	assert.Contains(t, out, "Event: unknown")
	assert.NotContains(t, out, MapLinkBase)
}

func TestRender_LocationVariants(t *testing.T) {
	f := newFormatter()

	denied := f.Render(&submission.Record{Location: submission.Location{Kind: submission.LocationDenied, Reason: "User denied Geolocation"}})
	assert.Contains(t, denied, "Status: User denied Geolocation")

	unrecognized := f.Render(&submission.Record{Location: submission.Location{Kind: submission.LocationUnrecognized, Raw: json.RawMessage(`{"city":"Pune"}`)}})
	assert.Contains(t, unrecognized, `Unrecognized: {"city":"Pune"}`)

	negative := f.Render(&submission.Record{Location: submission.Location{Kind: submission.LocationCoordinates, Latitude: -33.8688, Longitude: 151.2093}})
	assert.Contains(t, negative, "Map: https://maps.google.com/?q=-33.8688,151.2093")
	assert.Contains(t, negative, "Accuracy: unknown")
}

func TestRender_Deterministic(t *testing.T) {
	f := newFormatter()
	rec := fullRecord()
	assert.Equal(t, f.Render(rec), f.Render(rec))
}

func TestRender_TruncatesAndEscapes(t *testing.T) {
	f := NewFormatter(Options{MaxFieldRunes: 10}, nil)
	out := f.Render(&submission.Record{Operator: "*bold* and [link]"})
	assert.Contains(t, out, `Operator: \*bold\* an…`)

	plain := NewFormatter(Options{ParseMode: config.ParseModeNone}, nil)
	out = plain.Render(&submission.Record{Operator: "*bold*"})
	assert.Contains(t, out, "Operator: *bold*")
	assert.Contains(t, out, "Identity:")
	assert.NotContains(t, out, "*Identity:*")
}

func TestRender_StaysWithinMessageLimit(t *testing.T) {
	long := strings.Repeat("_", 300)
	rec := fullRecord()
	rec.Mobile = long
	rec.Operator = long
	rec.Origin = enrichment.Origin{IP: long, Org: long, City: long, Region: long, Country: long}
	rec.Device = map[string]any{
		"battery":    map[string]any{"charging": long, "level": long},
		"connection": map[string]any{"effectiveType": long},
		"timezone":   long,
		"platform":   long,
		"userAgent":  long,
		"url":        long,
	}

	out := newFormatter().Render(rec)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 4096)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), DefaultMaxRunes)
	assert.Contains(t, out, "Map: https://maps.google.com/?q=12.9,77.6")
	assert.Contains(t, out, "*Attachment:*")
	assert.Contains(t, out, "Photo: captured, 48.0 KB image/png")
	assert.Contains(t, out, "Event: 10 Jun 2024, 15:00:00 IST")
	// Shortened values never end inside an escape.
	assert.NotContains(t, out, `\…`)
	assert.Contains(t, out, `Operator: \_`)
}

func TestRender_ShortRecordKeepsFullFields(t *testing.T) {
	rec := fullRecord()
	rec.Operator = strings.Repeat("a", 250)
	out := newFormatter().Render(rec)
	assert.Contains(t, out, "Operator: "+strings.Repeat("a", 250)+"\n")
}

func TestRender_DeviceEdgeCases(t *testing.T) {
	f := newFormatter()

	out := f.Render(&submission.Record{Device: map[string]any{"battery": map[string]any{"level": json.Number("87")}}})
	assert.Contains(t, out, "Battery level: 87%")
	assert.Contains(t, out, "Charging: unknown")

	out = f.Render(&submission.Record{Device: map[string]any{"raw": "Pixel 7"}})
	assert.Contains(t, out, "Raw: Pixel 7")

	out = f.Render(&submission.Record{})
	assert.Contains(t, out, "*Device:*\nnot captured")
}

func TestRender_AttachmentStates(t *testing.T) {
	f := newFormatter()
	tests := []struct {
		att  attachment.Attachment
		want string
	}{
		{attachment.Attachment{State: attachment.Denied, Reason: "NotAllowedError"}, "Photo: denied (NotAllowedError)"},
		{attachment.Attachment{State: attachment.Undecodable, Reason: attachment.CauseUnrecognizedShape}, "Photo: undecodable (unrecognized shape)"},
		{attachment.Attachment{State: attachment.Decoded, MimeType: "image/jpeg", SizeBytes: 8 * 1024, Deliverability: attachment.TooSmall}, "Photo: captured, 8.0 KB image/jpeg, below minimum size"},
		{attachment.Attachment{State: attachment.Decoded, MimeType: "image/jpeg", SizeBytes: 12 * 1024 * 1024, Deliverability: attachment.TooLarge}, "Photo: captured, 12.0 MB image/jpeg, too large to upload"},
	}
	for _, tt := range tests {
		assert.Contains(t, f.Render(&submission.Record{Attachment: tt.att}), tt.want)
	}
}

func TestNotices(t *testing.T) {
	f := newFormatter()
	rec := fullRecord()

	assert.Equal(t, "Photo for +919876543210", f.Caption(rec))
	assert.Equal(t, "submission-sub-1.png", f.Filename(rec))

	rec.Attachment = attachment.Attachment{State: attachment.Denied, Reason: "Permission Denied"}
	assert.Equal(t, "Camera permission denied for +919876543210: Permission Denied", f.DeniedNotice(rec))

	rec.Attachment = attachment.Attachment{State: attachment.Decoded, SizeBytes: 48 * 1024}
	notice := f.UndeliverableNotice(rec, errors.New("sendDocument failed (400): Bad Request: file_too_big"))
	assert.True(t, strings.HasPrefix(notice, "Photo captured for +919876543210 (48.0 KB) but upload failed: "))
	assert.Contains(t, notice, `file\_too\_big`)

	rec.Attachment.SizeBytes = 12 * 1024 * 1024
	assert.Equal(t, "Photo captured for +919876543210 (12.0 MB) but too large to upload", f.OutOfBoundsNotice(rec))

	assert.Equal(t, "Photo for unknown", f.Caption(&submission.Record{}))
}
