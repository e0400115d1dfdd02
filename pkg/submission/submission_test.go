package submission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/relayhub/pkg/attachment"
	relayerrors "github.com/kart-io/relayhub/pkg/errors"
)

var fixedNow = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	classifier := attachment.NewClassifier(attachment.Limits{MinBytes: 10 * 1024, MaxBytes: 10 * 1024 * 1024})
	return NewNormalizer(classifier,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "sub-1" }),
	)
}

func normalize(t *testing.T, body string) *Record {
	t.Helper()
	sub, err := Decode([]byte(body))
	require.NoError(t, err)
	return newTestNormalizer().Normalize(context.Background(), sub, "127.0.0.1")
}

func TestDecode_Malformed(t *testing.T) {
	for _, body := range []string{"", "   ", "not json", "[1,2]", "null", `"text"`, `{"mobile":`} {
		_, err := Decode([]byte(body))
		assert.True(t, relayerrors.IsCode(err, relayerrors.ErrMalformedInput), "body %q", body)
	}
}

func TestDecode_Aliases(t *testing.T) {
	sub, err := Decode([]byte(`{"destinationOverride":"D2","eventTime":"2024-06-10T09:00:00Z"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"D2"`, string(sub.DestinationOverride))
	assert.JSONEq(t, `"2024-06-10T09:00:00Z"`, string(sub.EventTime))

	sub, err = Decode([]byte(`{"userChatId":"D3","destinationOverride":"D2"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"D3"`, string(sub.DestinationOverride), "primary key wins")
}

func TestNormalize_EmptyObject(t *testing.T) {
	rec := normalize(t, `{}`)
	assert.Equal(t, "sub-1", rec.ID)
	assert.Empty(t, rec.Mobile)
	assert.Equal(t, LocationDenied, rec.Location.Kind)
	assert.Equal(t, NotCaptured, rec.Location.Reason)
	assert.Equal(t, attachment.Absent, rec.Attachment.State)
	assert.Nil(t, rec.Device)
	assert.Equal(t, fixedNow, rec.EventTime)
	assert.False(t, rec.EventTimeProvided)
	assert.Equal(t, "127.0.0.1", rec.Origin.IP)
}

func TestParseLocation(t *testing.T) {
	acc := 15.5
	tests := []struct {
		name   string
		raw    string
		expect Location
	}{
		{"coordinates", `{"latitude":12.9,"longitude":77.6}`, Location{Kind: LocationCoordinates, Latitude: 12.9, Longitude: 77.6}},
		{"with accuracy", `{"latitude":12.9,"longitude":77.6,"accuracy":15.5}`, Location{Kind: LocationCoordinates, Latitude: 12.9, Longitude: 77.6, Accuracy: &acc}},
		{"negative accuracy dropped", `{"latitude":12.9,"longitude":77.6,"accuracy":-1}`, Location{Kind: LocationCoordinates, Latitude: 12.9, Longitude: 77.6}},
		{"absent", ``, Location{Kind: LocationDenied, Reason: NotCaptured}},
		{"null", `null`, Location{Kind: LocationDenied, Reason: NotCaptured}},
		{"denial object", `{"status":"Permission denied"}`, Location{Kind: LocationDenied, Reason: "Permission denied"}},
		{"denial flag", `{"denied":true}`, Location{Kind: LocationDenied, Reason: "permission denied"}},
		{"refusal text", `"User denied Geolocation"`, Location{Kind: LocationDenied, Reason: "User denied Geolocation"}},
		{"string coordinates", `{"latitude":"12.9","longitude":"77.6"}`, Location{Kind: LocationUnrecognized, Raw: json.RawMessage(`{"latitude":"12.9","longitude":"77.6"}`)}},
		{"free text", `"Bengaluru"`, Location{Kind: LocationUnrecognized, Raw: json.RawMessage(`"Bengaluru"`)}},
		{"array", `[12.9, 77.6]`, Location{Kind: LocationUnrecognized, Raw: json.RawMessage(`[12.9,77.6]`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ParseLocation(json.RawMessage(tt.raw)))
		})
	}
}

func TestNormalize_OpaqueFields(t *testing.T) {
	rec := normalize(t, `{"mobile":9876543210,"operator":" Airtel ","userChatId":12345,"deviceInfo":"Pixel 7"}`)
	assert.Equal(t, "9876543210", rec.Mobile)
	assert.Equal(t, "Airtel", rec.Operator)
	assert.Equal(t, "12345", rec.DestinationOverride)
	assert.Equal(t, map[string]any{"raw": "Pixel 7"}, rec.Device)
}

func TestNormalize_EventTime(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expect   time.Time
		provided bool
	}{
		{"epoch millis", `1718011800000`, time.UnixMilli(1718011800000).UTC(), true},
		{"numeric string", `"1718011800000"`, time.UnixMilli(1718011800000).UTC(), true},
		{"rfc3339", `"2024-06-10T15:00:00+05:30"`, time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC), true},
		{"garbage", `"yesterday"`, fixedNow, false},
		{"object", `{}`, fixedNow, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := normalize(t, `{"timestamp":`+tt.raw+`}`)
			assert.True(t, tt.expect.Equal(rec.EventTime), "got %s", rec.EventTime)
			assert.Equal(t, tt.provided, rec.EventTimeProvided)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	photo := "data:image/png;base64," + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 12*1024))
	bodies := []string{
		`{}`,
		`{"mobile":"9876543210","operator":"Airtel","location":{"latitude":12.9,"longitude":77.6,"accuracy":20},"photo":null}`,
		`{"mobile":98765,"location":"User denied Geolocation","photo":{"status":"NotAllowedError"},"deviceInfo":{"battery":0.42,"charging":true}}`,
		`{"location":{"city":"Pune"},"photo":"data:image/png;base64,@@@","timestamp":1718011800000}`,
		`{"location":{"denied":true},"photo":"` + photo + `","userChatId":"D2","deviceInfo":[1,2]}`,
		`{"photo":42,"timestamp":"2024-06-10T15:00:00.123+05:30"}`,
	}

	for _, body := range bodies {
		first := normalize(t, body)

		rendered, err := json.Marshal(first.Submission())
		require.NoError(t, err)
		second := normalize(t, string(rendered))

		assert.Equal(t, first.Mobile, second.Mobile, body)
		assert.Equal(t, first.Operator, second.Operator, body)
		assert.Equal(t, first.DestinationOverride, second.DestinationOverride, body)
		assert.Equal(t, first.Location, second.Location, body)
		assert.Equal(t, first.Attachment, second.Attachment, body)
		assert.Equal(t, first.Device, second.Device, body)
		assert.True(t, first.EventTime.Equal(second.EventTime), body)
		assert.Equal(t, first.EventTimeProvided, second.EventTimeProvided, body)
	}
}
