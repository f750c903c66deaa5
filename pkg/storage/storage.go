package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotFound is returned when no artifact exists under the requested id.
var ErrNotFound = errors.New("artifact not found")

// ErrInvalidKey is returned for ids that cannot safely name a stored object.
var ErrInvalidKey = errors.New("invalid artifact key")

// Metadata is persisted next to the artifact bytes.
type Metadata struct {
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoredAt    time.Time `json:"stored_at"`
}

// SniffContentType derives the media type from the bytes themselves so that
// response headers never depend on a client supplied extension.
func SniffContentType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

func validKey(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

func newMetadata(data []byte, contentType string) Metadata {
	sniffed := SniffContentType(data)
	if sniffed == "" || sniffed == "application/octet-stream" {
		sniffed = contentType
	}
	return Metadata{
		ContentType: sniffed,
		SizeBytes:   int64(len(data)),
		StoredAt:    time.Now().UTC(),
	}
}
