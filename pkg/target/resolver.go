// Package target provides destination resolution functionality for relayhub
package target

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxDestinationLength bounds the size of an identifier accepted from input.
const MaxDestinationLength = 128

// Resolver deduplicates and orders destinations.
type Resolver struct {
	maxLength int
}

// NewResolver creates a new destination resolver
func NewResolver() *Resolver {
	return &Resolver{maxLength: MaxDestinationLength}
}

// DefaultResolver is the default destination resolver instance
var DefaultResolver = NewResolver()

// Resolve returns the ordered unique destination list for a submission
func Resolve(primary, override string) []Destination {
	return DefaultResolver.Resolve(primary, override)
}

// Resolve returns the primary destination first, then the override when it
// is valid and distinct. Invalid entries are dropped, so the result may be
// empty when neither value is usable.
func (r *Resolver) Resolve(primary, override string) []Destination {
	destinations := make([]Destination, 0, 2)
	seen := make(map[string]struct{}, 2)

	add := func(value, origin string) {
		id := strings.TrimSpace(value)
		if err := r.Validate(id); err != nil {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		destinations = append(destinations, NewDestination(id, origin))
	}

	add(primary, OriginPrimary)
	add(override, OriginOverride)

	return destinations
}

// Validate checks that an identifier is usable as a destination
func (r *Resolver) Validate(id string) error {
	if id == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	if len(id) > r.maxLength {
		return fmt.Errorf("destination exceeds %d bytes", r.maxLength)
	}
	for _, c := range id {
		if unicode.IsSpace(c) || unicode.IsControl(c) {
			return fmt.Errorf("destination contains whitespace or control characters")
		}
	}
	return nil
}
