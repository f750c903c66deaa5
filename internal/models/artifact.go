package models

import "time"

// Artifact is one stored image.
type Artifact struct {
	ID           string    `json:"id"`
	GroupID      string    `json:"groupId,omitempty"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"sizeBytes"`
	OriginalName string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ArtifactContent carries raw bytes for delivery.
type ArtifactContent struct {
	ID          string
	ContentType string
	Data        []byte
}
