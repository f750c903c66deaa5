package service

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
)

// ContactNormalizer turns uploader phone numbers into E.164 form.
type ContactNormalizer struct {
	required      bool
	defaultRegion string
}

// NewContactNormalizer constructs a normalizer. Numbers without a country
// prefix are parsed in defaultRegion.
func NewContactNormalizer(required bool, defaultRegion string) *ContactNormalizer {
	if defaultRegion == "" {
		defaultRegion = "RU"
	}
	return &ContactNormalizer{required: required, defaultRegion: strings.ToUpper(defaultRegion)}
}

// Normalize validates raw and returns its canonical international form. An
// empty contact is accepted unless one is required.
func (n *ContactNormalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if n.required {
			return "", appErrors.Clone(appErrors.ErrValidation, "contact phone number is required")
		}
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, n.defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", appErrors.Clone(appErrors.ErrValidation, "contact phone number is invalid")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
