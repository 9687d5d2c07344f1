// Package idgen centralizes opaque ID generation so every layer that
// needs a new item, dependency, or note ID goes through one place
// instead of calling uuid.NewString() ad hoc.
package idgen

import "github.com/google/uuid"

// New returns a new opaque, globally-unique ID.
func New() string {
	return uuid.NewString()
}
