package types

import "strings"

// ContentID is the opaque handle returned by the external content store. The
// core only stores and compares it, never interprets it.
type ContentID string

// NormalizeContentID trims surrounding whitespace.
func NormalizeContentID(id string) ContentID {
	return ContentID(strings.TrimSpace(id))
}

// IsZero reports whether the handle is empty.
func (c ContentID) IsZero() bool { return strings.TrimSpace(string(c)) == "" }

func (c ContentID) String() string { return string(c) }
