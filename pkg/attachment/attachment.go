// Package attachment classifies the image a capture client embeds in a
// submission and decides whether it may be transmitted.
package attachment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	relayerrors "github.com/kart-io/relayhub/pkg/errors"
)

// State is the terminal classification of the photo field
type State int

// Attachment states
const (
	Absent State = iota
	Denied
	Undecodable
	Decoded
)

// String returns the wire name of the state
func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Denied:
		return "denied"
	case Undecodable:
		return "undecodable"
	case Decoded:
		return "decoded"
	default:
		return "unknown"
	}
}

// Deliverability tags a Decoded attachment against the configured size window
type Deliverability int

// Deliverability values. Unclassified applies to every state but Decoded.
const (
	Unclassified Deliverability = iota
	TooSmall
	TooLarge
	Deliverable
)

// String returns the wire name of the deliverability
func (d Deliverability) String() string {
	switch d {
	case TooSmall:
		return "too_small"
	case TooLarge:
		return "too_large"
	case Deliverable:
		return "deliverable"
	default:
		return "unclassified"
	}
}

// Attachment is the resolved photo of a submission
type Attachment struct {
	State          State
	Reason         string // denial reason or decode failure cause
	Data           []byte
	MimeType       string
	SizeBytes      int
	Deliverability Deliverability

	// Raw keeps the original value of an Undecodable photo so it can be
	// rendered back into input form.
	Raw json.RawMessage
}

// IsDeliverable reports whether the bytes may be sent as a binary payload
func (a Attachment) IsDeliverable() bool {
	return a.State == Decoded && a.Deliverability == Deliverable
}

// Status returns a short machine-readable status for acknowledgements
func (a Attachment) Status() string {
	if a.State == Decoded {
		return a.Deliverability.String()
	}
	return a.State.String()
}

// Extension returns a file extension matching the MIME type
func (a Attachment) Extension() string {
	return ExtensionFor(a.MimeType)
}

// ExtensionFor maps an image MIME type to a file extension. An empty or
// JPEG type yields "jpg"; structured suffixes such as "+xml" are dropped.
func ExtensionFor(mimeType string) string {
	sub := mimeType
	if i := strings.LastIndexByte(sub, '/'); i >= 0 {
		sub = sub[i+1:]
	}
	switch sub {
	case "", "jpeg", "pjpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	}
	if i := strings.IndexAny(sub, "+."); i > 0 {
		sub = sub[:i]
	}
	return sub
}

// DataURL renders decoded bytes back into the inline form clients send
func (a Attachment) DataURL() string {
	if a.State != Decoded {
		return ""
	}
	return "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Err describes a non-fatal attachment problem, or returns nil.
func (a Attachment) Err() error {
	switch {
	case a.State == Undecodable:
		return relayerrors.New(relayerrors.ErrAttachmentUndecodable, "attachment could not be decoded").
			WithDetails(a.Reason)
	case a.State == Decoded && a.Deliverability == TooSmall:
		return relayerrors.New(relayerrors.ErrAttachmentOutOfBounds, "attachment below minimum size").
			WithDetails(HumanSize(a.SizeBytes))
	case a.State == Decoded && a.Deliverability == TooLarge:
		return relayerrors.New(relayerrors.ErrAttachmentOutOfBounds, "attachment above maximum size").
			WithDetails(HumanSize(a.SizeBytes))
	}
	return nil
}

// HumanSize renders a byte count the way the summaries show it
func HumanSize(n int) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
