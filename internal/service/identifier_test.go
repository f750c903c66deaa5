package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateIdentifierIsValidAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := AllocateIdentifier()
		assert.True(t, IsValidIdentifier(id), id)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestIsValidIdentifierRejectsCraftedIDs(t *testing.T) {
	cases := []string{
		"",
		"../../etc/passwd",
		"3F1C2A9E-6B7D-4C1E-9A2B-0123456789AB",
		"3f1c2a9e-6b7d-1c1e-9a2b-0123456789ab",
		"3f1c2a9e-6b7d-4c1e-7a2b-0123456789ab",
		"3f1c2a9e6b7d4c1e9a2b0123456789ab",
		"3f1c2a9e-6b7d-4c1e-9a2b-0123456789ab/..",
		"3f1c2a9e-6b7d-4c1e-9a2b-0123456789ab\n",
	}
	for _, tc := range cases {
		assert.False(t, IsValidIdentifier(tc), "%q", tc)
	}
	assert.True(t, IsValidIdentifier("3f1c2a9e-6b7d-4c1e-9a2b-0123456789ab"))
}
