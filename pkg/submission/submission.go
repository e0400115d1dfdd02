// Package submission decodes inbound submissions and normalizes them into
// canonical records.
package submission

import (
	"bytes"
	"encoding/json"

	"github.com/kart-io/relayhub/internal/shape"
	relayerrors "github.com/kart-io/relayhub/pkg/errors"
)

// Submission is the inbound record as sent by a capture client. Every field
// is optional and kept raw until normalization.
type Submission struct {
	Mobile              json.RawMessage `json:"mobile,omitempty"`
	Operator            json.RawMessage `json:"operator,omitempty"`
	DestinationOverride json.RawMessage `json:"userChatId,omitempty"`
	Location            json.RawMessage `json:"location,omitempty"`
	Photo               json.RawMessage `json:"photo,omitempty"`
	DeviceInfo          json.RawMessage `json:"deviceInfo,omitempty"`
	EventTime           json.RawMessage `json:"timestamp,omitempty"`
}

// Wire key aliases accepted next to the primary keys.
var aliases = map[string]string{
	"destinationOverride": "userChatId",
	"eventTime":           "timestamp",
}

// Decode parses body. It fails with ErrMalformedInput only when body is not
// a JSON object; missing or oddly typed fields are left for normalization.
func Decode(body []byte) (*Submission, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, relayerrors.New(relayerrors.ErrMalformedInput, "malformed submission").
			WithDetails("empty body")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, relayerrors.Wrap(err, relayerrors.ErrMalformedInput, "malformed submission")
	}
	if fields == nil {
		return nil, relayerrors.New(relayerrors.ErrMalformedInput, "malformed submission").
			WithDetails("body is not an object")
	}

	for alias, key := range aliases {
		if v, ok := fields[alias]; ok && shape.IsAbsent(fields[key]) {
			fields[key] = v
		}
	}

	return &Submission{
		Mobile:              fields["mobile"],
		Operator:            fields["operator"],
		DestinationOverride: fields["userChatId"],
		Location:            fields["location"],
		Photo:               fields["photo"],
		DeviceInfo:          fields["deviceInfo"],
		EventTime:           fields["timestamp"],
	}, nil
}
