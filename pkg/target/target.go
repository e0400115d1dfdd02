// Package target provides destination management functionality for relayhub
package target

import "fmt"

// Origin constants describe where a destination came from
const (
	OriginPrimary  = "primary"  // configured on the server
	OriginOverride = "override" // supplied with the submission
)

// Destination represents an addressable notification target, such as a
// chat or channel identifier. The value is opaque to the pipeline.
type Destination struct {
	ID     string `json:"id"`
	Origin string `json:"origin"`
}

// NewDestination creates a new destination with the given id and origin
func NewDestination(id, origin string) Destination {
	return Destination{ID: id, Origin: origin}
}

// String returns a string representation of the destination
func (d Destination) String() string {
	return fmt.Sprintf("%s(%s)", d.ID, d.Origin)
}

// IsPrimary reports whether the destination is the configured one
func (d Destination) IsPrimary() bool {
	return d.Origin == OriginPrimary
}
