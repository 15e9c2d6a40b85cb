// Package prefixedid generates opaque identifiers of the form "prefix-uuid".
package prefixedid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a UUID tagged with a kind prefix.
type ID struct {
	Prefix string
	UUID   uuid.UUID
}

// New returns a random ID with the given prefix. The prefix must not contain "-".
func New(prefix string) ID {
	return ID{Prefix: prefix, UUID: uuid.New()}
}

// Parse splits "prefix-uuid" at the first "-".
func Parse(s string) (ID, error) {
	prefix, rest, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return ID{}, fmt.Errorf("invalid prefixed id: %q", s)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return ID{}, fmt.Errorf("invalid prefixed id %q: %w", s, err)
	}
	return ID{Prefix: prefix, UUID: id}, nil
}

// HasPrefix reports whether s parses as an ID with the given prefix.
func HasPrefix(s, prefix string) bool {
	id, err := Parse(s)
	return err == nil && id.Prefix == prefix
}

func (p ID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

// IsZero reports whether p is the zero value.
func (p ID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}
