package submission

import (
	"encoding/json"
	"strings"

	"github.com/kart-io/relayhub/internal/shape"
)

// NotCaptured is the denial reason used when no location was sent
const NotCaptured = "not captured"

// LocationKind discriminates Location variants
type LocationKind int

// Location variants
const (
	LocationDenied LocationKind = iota
	LocationCoordinates
	LocationUnrecognized
)

// String returns the wire name of the kind
func (k LocationKind) String() string {
	switch k {
	case LocationCoordinates:
		return "coordinates"
	case LocationUnrecognized:
		return "unrecognized"
	default:
		return "denied"
	}
}

// Location is the resolved location of a submission. Latitude, Longitude
// and Accuracy are set for LocationCoordinates, Reason for LocationDenied and
// Raw for LocationUnrecognized.
type Location struct {
	Kind      LocationKind
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Reason    string
	Raw       json.RawMessage
}

// Status returns a short status for acknowledgements
func (l Location) Status() string {
	if l.Kind == LocationDenied && l.Reason == NotCaptured {
		return "not_captured"
	}
	return l.Kind.String()
}

// ParseLocation resolves the raw location field. It never fails.
func ParseLocation(raw json.RawMessage) Location {
	if shape.IsAbsent(raw) {
		return Location{Kind: LocationDenied, Reason: NotCaptured}
	}
	v, ok := shape.Decode(raw)
	if !ok {
		return Location{Kind: LocationUnrecognized, Raw: shape.Compact(raw)}
	}

	switch t := v.(type) {
	case map[string]any:
		lat, latOK := shape.Number(t["latitude"])
		lon, lonOK := shape.Number(t["longitude"])
		if latOK && lonOK {
			loc := Location{Kind: LocationCoordinates, Latitude: lat, Longitude: lon}
			if acc, ok := shape.Number(t["accuracy"]); ok && acc >= 0 {
				loc.Accuracy = &acc
			}
			return loc
		}
		if reason, ok := shape.DenialReason(t); ok {
			return Location{Kind: LocationDenied, Reason: reason}
		}
	case string:
		if s := strings.TrimSpace(t); shape.IsRefusalText(s) {
			return Location{Kind: LocationDenied, Reason: s}
		}
	}

	return Location{Kind: LocationUnrecognized, Raw: shape.Compact(raw)}
}

// raw renders the location back into input form. A location that was not
// captured renders as nil.
func (l Location) raw() json.RawMessage {
	switch l.Kind {
	case LocationCoordinates:
		obj := map[string]float64{"latitude": l.Latitude, "longitude": l.Longitude}
		if l.Accuracy != nil {
			obj["accuracy"] = *l.Accuracy
		}
		b, _ := json.Marshal(obj)
		return b
	case LocationUnrecognized:
		return l.Raw
	default:
		if l.Reason == NotCaptured {
			return nil
		}
		b, _ := json.Marshal(map[string]string{"status": l.Reason})
		return b
	}
}
