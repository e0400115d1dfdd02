package attachment

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/kart-io/relayhub/internal/shape"
)

// Limits is the deliverable size window, inclusive on both ends
type Limits struct {
	MinBytes int
	MaxBytes int
}

// DefaultMimeType is assumed when a data URL declares no image subtype
const DefaultMimeType = "image/jpeg"

const dataURLPrefix = "data:image"

// Decode failure causes
const (
	CauseUnrecognizedShape = "unrecognized shape"
	CauseMissingSeparator  = "data URL has no payload separator"
	CauseNotBase64         = "data URL is not base64 encoded"
	CauseEmptyPayload      = "empty payload"
	CauseBadAlphabet       = "payload contains characters outside the base64 alphabet"
	CauseMalformedBase64   = "malformed base64 payload"
	CauseZeroBytes         = "payload decodes to zero bytes"
)

// Classifier turns the raw photo field into an Attachment. It never panics
// and always returns a terminal state.
type Classifier struct {
	limits Limits
}

// NewClassifier creates a classifier with the given size window
func NewClassifier(limits Limits) *Classifier {
	return &Classifier{limits: limits}
}

// Limits returns the configured size window
func (c *Classifier) Limits() Limits {
	return c.limits
}

// Classify resolves the raw photo field
func (c *Classifier) Classify(raw json.RawMessage) Attachment {
	if shape.IsAbsent(raw) {
		return Attachment{State: Absent}
	}

	v, ok := shape.Decode(raw)
	if !ok {
		return c.undecodable(raw, CauseUnrecognizedShape)
	}

	switch t := v.(type) {
	case map[string]any:
		if reason, ok := shape.DenialReason(t); ok {
			return Attachment{State: Denied, Reason: reason}
		}
	case string:
		s := strings.TrimSpace(t)
		if hasPrefixFold(s, dataURLPrefix) {
			return c.decodeDataURL(raw, s)
		}
		if shape.IsRefusalText(s) {
			return Attachment{State: Denied, Reason: s}
		}
	}

	return c.undecodable(raw, CauseUnrecognizedShape)
}

// Deliverability classifies a decoded size against the limits
func (c *Classifier) Deliverability(size int) Deliverability {
	switch {
	case size < c.limits.MinBytes:
		return TooSmall
	case c.limits.MaxBytes > 0 && size > c.limits.MaxBytes:
		return TooLarge
	default:
		return Deliverable
	}
}

func (c *Classifier) decodeDataURL(raw json.RawMessage, s string) Attachment {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return c.undecodable(raw, CauseMissingSeparator)
	}

	// "image/png;base64" or "image;base64"
	header := s[len("data:"):comma]
	params := strings.Split(header, ";")
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return c.undecodable(raw, CauseNotBase64)
	}

	payload := s[comma+1:]
	if payload == "" {
		return c.undecodable(raw, CauseEmptyPayload)
	}
	if !isBase64Alphabet(payload) {
		return c.undecodable(raw, CauseBadAlphabet)
	}

	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return c.undecodable(raw, CauseMalformedBase64)
	}
	if len(data) == 0 {
		return c.undecodable(raw, CauseZeroBytes)
	}

	return Attachment{
		State:          Decoded,
		Data:           data,
		MimeType:       mimeType(params[0]),
		SizeBytes:      len(data),
		Deliverability: c.Deliverability(len(data)),
	}
}

func (c *Classifier) undecodable(raw json.RawMessage, cause string) Attachment {
	return Attachment{State: Undecodable, Reason: cause, Raw: shape.Compact(raw)}
}

// mimeType maps a declared media type to an image MIME type.
func mimeType(mediaType string) string {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	sub, ok := strings.CutPrefix(mediaType, "image/")
	if !ok || sub == "" {
		return DefaultMimeType
	}
	for _, r := range sub {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return DefaultMimeType
		}
	}
	if sub == "jpg" {
		return DefaultMimeType
	}
	return "image/" + sub
}

// isBase64Alphabet accepts the standard alphabet with at most two trailing
// padding characters.
func isBase64Alphabet(s string) bool {
	body := strings.TrimRight(s, "=")
	if len(s)-len(body) > 2 {
		return false
	}
	for i := 0; i < len(body); i++ {
		b := body[i]
		if !(b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '+' || b == '/') {
			return false
		}
	}
	return true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
