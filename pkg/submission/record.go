package submission

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/relayhub/internal/shape"
	"github.com/kart-io/relayhub/pkg/attachment"
	"github.com/kart-io/relayhub/pkg/enrichment"
)

// Record is the canonical form of one submission. It lives for a single
// pipeline invocation.
type Record struct {
	ID                  string
	Mobile              string
	Operator            string
	DestinationOverride string
	Location            Location
	Attachment          attachment.Attachment
	Device              map[string]any
	Origin              enrichment.Origin

	// EventTime is the client supplied time, or ReceivedAt when the client
	// sent none or an unparseable one.
	EventTime         time.Time
	EventTimeProvided bool
	ReceivedAt        time.Time
}

// Submission renders the record back into input form. Normalizing the
// result yields an equivalent record.
func (r *Record) Submission() *Submission {
	sub := &Submission{
		Mobile:              rawString(r.Mobile),
		Operator:            rawString(r.Operator),
		DestinationOverride: rawString(r.DestinationOverride),
		Location:            r.Location.raw(),
		Photo:               attachmentRaw(r.Attachment),
	}
	if r.EventTimeProvided {
		sub.EventTime = rawString(r.EventTime.Format(time.RFC3339Nano))
	}
	if r.Device != nil {
		sub.DeviceInfo, _ = json.Marshal(r.Device)
	}
	return sub
}

func rawString(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	b, _ := json.Marshal(s)
	return b
}

func attachmentRaw(a attachment.Attachment) json.RawMessage {
	switch a.State {
	case attachment.Denied:
		b, _ := json.Marshal(map[string]string{"status": a.Reason})
		return b
	case attachment.Undecodable:
		return a.Raw
	case attachment.Decoded:
		return rawString(a.DataURL())
	default:
		return nil
	}
}

// parseEventTime accepts epoch milliseconds as a number or numeric string,
// or an RFC 3339 timestamp.
func parseEventTime(raw json.RawMessage) (time.Time, bool) {
	v, ok := shape.Decode(raw)
	if !ok || v == nil {
		return time.Time{}, false
	}

	switch t := v.(type) {
	case json.Number:
		return fromEpochMillis(t.String())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if ts, ok := fromEpochMillis(s); ok {
			return ts, true
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	}
	return time.Time{}, false
}

func fromEpochMillis(s string) (time.Time, bool) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), ms > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(f)).UTC(), true
}

// parseDevice keeps an object as is and wraps any other value under "raw".
func parseDevice(raw json.RawMessage) map[string]any {
	v, ok := shape.Decode(raw)
	if !ok || v == nil {
		return nil
	}
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"raw": v}
}
