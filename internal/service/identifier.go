package service

import (
	"regexp"

	"github.com/google/uuid"
)

var identifierPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// AllocateIdentifier returns a fresh random (version 4) UUID in canonical
// lowercase form.
func AllocateIdentifier() string {
	return uuid.NewString()
}

// IsValidIdentifier checks the format of an externally supplied id. It does
// not check existence.
func IsValidIdentifier(text string) bool {
	return identifierPattern.MatchString(text)
}
