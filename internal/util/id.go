package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random hex identifier, prefixed with "prefix_" when given.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
