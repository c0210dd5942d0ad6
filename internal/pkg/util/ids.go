package util

import "github.com/google/uuid"

// NewID returns a prefixed random id such as "rnd_3f0c...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
