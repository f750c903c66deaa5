package models

import "time"

// UploadFile is one file of an ingestion batch.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ResizeSpec asks the transformer for an exact output size and format.
type ResizeSpec struct {
	Width  int    `validate:"min=400,max=3000"`
	Height int    `validate:"min=400,max=3000"`
	Format string `validate:"omitempty,oneof=jpg jpeg png webp"`
}

// UploadDirectives are the policy options chosen by the uploader.
type UploadDirectives struct {
	GroupAsOnePost bool
	Description    string      `validate:"max=1000"`
	Password       string      `validate:"omitempty,min=6,max=72"`
	ViewLimit      int         `validate:"omitempty,min=1,max=100"`
	Resize         *ResizeSpec `validate:"omitempty"`
}

// IngestRequest is a full upload batch.
type IngestRequest struct {
	Files      []UploadFile
	Directives UploadDirectives
	Origin     string
	BotToken   string
	Contact    string
}

// FileFailure reports a file that was skipped during ingestion.
type FileFailure struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// IngestResult is returned for a batch with at least one surviving file.
type IngestResult struct {
	ShareID     string        `json:"shareId"`
	IsGroup     bool          `json:"isGroup"`
	ArtifactIDs []string      `json:"artifactIds"`
	Failures    []FileFailure `json:"failures,omitempty"`
}

// Access holds the credentials a viewer presents.
type Access struct {
	Password    string
	UnlockToken string
}

// ResolvedArtifact is one visible artifact with a short-lived raw link.
type ResolvedArtifact struct {
	ID            string    `json:"id"`
	ContentType   string    `json:"contentType"`
	URL           string    `json:"url"`
	LinkExpiresAt time.Time `json:"linkExpiresAt"`
}

// ResolveResult is what a viewer sees for a shareable id.
type ResolveResult struct {
	ShareID        string             `json:"shareId"`
	IsGroup        bool               `json:"isGroup"`
	Description    string             `json:"description"`
	Artifacts      []ResolvedArtifact `json:"artifacts"`
	RemainingViews *int               `json:"remainingViews,omitempty"`
}

// UploadRecord is the durable row for one shareable id.
type UploadRecord struct {
	ID           string    `db:"id"`
	Contact      *string   `db:"contact"`
	Origin       string    `db:"origin"`
	Description  string    `db:"description"`
	PasswordHash *string   `db:"password_hash"`
	IsGroup      bool      `db:"is_group"`
	CreatedAt    time.Time `db:"created_at"`
}

// UploadArtifactRecord is the durable row for one artifact of an upload.
type UploadArtifactRecord struct {
	ID           string    `db:"id"`
	UploadID     string    `db:"upload_id"`
	Position     int       `db:"position"`
	ContentType  string    `db:"content_type"`
	SizeBytes    int64     `db:"size_bytes"`
	ViewLimit    *int      `db:"view_limit"`
	ViewConsumed int       `db:"view_consumed"`
	CreatedAt    time.Time `db:"created_at"`
}
