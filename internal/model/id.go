package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string. It is used for artifact tokens, not
// job ids, which are sequential integers.
func NewID() string {
	return ulid.Make().String()
}
