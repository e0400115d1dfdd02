// Package platform defines the messaging transport interface consumed by the
// delivery pipeline.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// Transport represents a messaging platform able to deliver text, photos and
// documents to a destination. Implementations bound every call with their own
// timeout and report rejections as *SendError.
type Transport interface {
	// Name returns the unique name of the platform
	Name() string

	// SendText delivers a text message
	SendText(ctx context.Context, destination, text string) error

	// SendPhoto delivers image bytes as a native photo
	SendPhoto(ctx context.Context, destination string, data []byte, mimeType, caption string) error

	// SendDocument delivers bytes as a generic file
	SendDocument(ctx context.Context, destination string, data []byte, filename, caption string) error
}

// SendError is a structured transport failure. StatusCode is zero when the
// request never produced a response (network error, timeout).
type SendError struct {
	Method      string `json:"method"`
	StatusCode  int    `json:"status_code,omitempty"`
	Description string `json:"description"`
	Cause       error  `json:"-"`
}

// Error implements the error interface
func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Method, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("%s failed: %s", e.Method, e.Description)
}

// Unwrap returns the underlying cause error
func (e *SendError) Unwrap() error {
	return e.Cause
}

// StatusCodeOf returns the transport status carried by err, or zero.
func StatusCodeOf(err error) int {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.StatusCode
	}
	return 0
}
