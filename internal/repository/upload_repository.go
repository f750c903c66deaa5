package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/imgdrop/internal/models"
)

// UploadRepository persists durable upload records.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository constructs the repository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts an upload and its artifacts in one transaction.
func (r *UploadRepository) Create(ctx context.Context, upload *models.UploadRecord, artifacts []models.UploadArtifactRecord) error {
	now := time.Now().UTC()
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = now
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upload tx: %w", err)
	}
	const uploadQuery = `INSERT INTO uploads (id, contact, origin, description, password_hash, is_group, created_at)
VALUES (:id, :contact, :origin, :description, :password_hash, :is_group, :created_at)`
	if _, err := tx.NamedExecContext(ctx, uploadQuery, upload); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert upload: %w", err)
	}
	const artifactQuery = `INSERT INTO upload_artifacts (id, upload_id, position, content_type, size_bytes, view_limit, view_consumed, created_at)
VALUES (:id, :upload_id, :position, :content_type, :size_bytes, :view_limit, :view_consumed, :created_at)`
	for i := range artifacts {
		artifacts[i].UploadID = upload.ID
		if artifacts[i].CreatedAt.IsZero() {
			artifacts[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, artifactQuery, artifacts[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert upload artifact: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upload tx: %w", err)
	}
	return nil
}

// UpdateViewConsumed mirrors the ledger counter of a metered artifact. The
// stored count never decreases.
func (r *UploadRepository) UpdateViewConsumed(ctx context.Context, artifactID string, consumed int) error {
	const query = `UPDATE upload_artifacts SET view_consumed = GREATEST(view_consumed, $2) WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, artifactID, consumed); err != nil {
		return fmt.Errorf("update view consumed: %w", err)
	}
	return nil
}

// Delete removes an upload; its artifact rows cascade.
func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM uploads WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}
