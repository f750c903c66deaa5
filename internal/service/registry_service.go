package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/imgdrop/internal/models"
	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
	"github.com/noah-isme/imgdrop/pkg/storage"
)

// Ingest file outcomes reported to metrics.
const (
	fileStored          = "stored"
	fileRejected        = "rejected"
	fileTransformFailed = "transform_failed"
	fileStoreFailed     = "store_failed"
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/bmp":  {},
	"image/webp": {},
}

type artifactStore interface {
	Put(ctx context.Context, id string, data []byte, contentType string) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	ContentTypeOf(ctx context.Context, id string) (string, error)
}

type ingestAdmitter interface {
	Admit(ctx context.Context, origin string) (bool, error)
}

type uploadRecorder interface {
	Create(ctx context.Context, upload *models.UploadRecord, artifacts []models.UploadArtifactRecord) error
	UpdateViewConsumed(ctx context.Context, artifactID string, consumed int) error
	Delete(ctx context.Context, id string) error
}

type imageTransformer interface {
	Transform(ctx context.Context, data []byte, width, height int, format string) ([]byte, string, error)
}

type botVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type contactNormalizer interface {
	Normalize(raw string) (string, error)
}

type rawLinkSigner interface {
	Generate(artifactID string) (string, time.Time, error)
	Verify(artifactID, token string) error
}

type unlockTokenService interface {
	Issue(sid, passwordHash string) (string, time.Time, error)
	Verify(token, sid, passwordHash string) bool
}

type orphanCollector interface {
	ScheduleDelete(id string)
}

// RegistryConfig tunes batch limits and link generation.
type RegistryConfig struct {
	MaxFiles      int
	MaxFileSize   int64
	PublicBaseURL string
}

// RegistryDeps are the collaborators of the registry. Records and Janitor are
// optional.
type RegistryDeps struct {
	Ledger      *PolicyLedger
	Limiter     ingestAdmitter
	Store       artifactStore
	Records     uploadRecorder
	Transformer imageTransformer
	Bots        botVerifier
	Contacts    contactNormalizer
	Links       rawLinkSigner
	Unlock      unlockTokenService
	Janitor     orphanCollector
	Validator   *validator.Validate
	Logger      *zap.Logger
	Metrics     *MetricsService
}

// RegistryService ingests uploads and resolves shareable ids, applying
// password gates and self-destruct budgets.
type RegistryService struct {
	ledger      *PolicyLedger
	limiter     ingestAdmitter
	store       artifactStore
	records     uploadRecorder
	transformer imageTransformer
	bots        botVerifier
	contacts    contactNormalizer
	links       rawLinkSigner
	unlock      unlockTokenService
	janitor     orphanCollector
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	config      RegistryConfig
	newID       func() string
}

// NewRegistryService wires the registry.
func NewRegistryService(deps RegistryDeps, cfg RegistryConfig) *RegistryService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 20
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	return &RegistryService{
		ledger:      deps.Ledger,
		limiter:     deps.Limiter,
		store:       deps.Store,
		records:     deps.Records,
		transformer: deps.Transformer,
		bots:        deps.Bots,
		contacts:    deps.Contacts,
		links:       deps.Links,
		unlock:      deps.Unlock,
		janitor:     deps.Janitor,
		validator:   deps.Validator,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		config:      cfg,
		newID:       AllocateIdentifier,
	}
}

// Ingest stores a batch of uploaded files and registers their access policy.
// Files that cannot be processed are skipped and reported; the batch fails
// only when nothing survives or the ledger cannot be written, in which case
// every byte already stored is removed again.
func (s *RegistryService) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	admitted, err := s.limiter.Admit(ctx, req.Origin)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, appErrors.ErrRateLimited
	}

	if err := s.validateBatch(req); err != nil {
		return nil, err
	}
	if s.bots != nil {
		human, err := s.bots.Verify(ctx, req.BotToken, req.Origin)
		if err != nil {
			s.logger.Warn("bot verification unavailable", zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrBotCheckFailed.Code, appErrors.ErrBotCheckFailed.Status, appErrors.ErrBotCheckFailed.Message)
		}
		if !human {
			return nil, appErrors.ErrBotCheckFailed
		}
	}
	contact := ""
	if s.contacts != nil {
		if contact, err = s.contacts.Normalize(req.Contact); err != nil {
			return nil, err
		}
	}

	directives := req.Directives
	passwordHash := ""
	if directives.Password != "" {
		if passwordHash, err = s.ledger.HashPassword(directives.Password); err != nil {
			return nil, err
		}
	}

	var (
		stored    []models.Artifact
		failures  []models.FileFailure
		policies  []string
		committed bool
	)
	defer func() {
		if !committed {
			s.rollback(ctx, stored, policies)
		}
	}()

	for i, file := range req.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		artifact, reason := s.storeFile(ctx, file, directives.Resize)
		if reason != "" {
			failures = append(failures, models.FileFailure{Index: i, Name: file.Name, Reason: reason})
			continue
		}
		stored = append(stored, artifact)
	}

	if len(stored) == 0 {
		s.logger.Info("upload batch produced no files", zap.String("origin", req.Origin), zap.Int("files", len(req.Files)))
		return nil, appErrors.ErrNoFilesSurvived
	}

	result := &models.IngestResult{Failures: failures}
	if directives.GroupAsOnePost && len(stored) > 1 {
		groupID := s.newID()
		members := make([]string, len(stored))
		for i := range stored {
			members[i] = stored[i].ID
			stored[i].GroupID = groupID
		}
		if _, err := s.ledger.Register(ctx, groupID, models.PolicySpec{
			PasswordHash: passwordHash,
			Description:  directives.Description,
			Members:      members,
		}); err != nil {
			return nil, err
		}
		policies = append(policies, groupID)
		for _, id := range members {
			if err := s.ledger.LinkToGroup(ctx, id, groupID); err != nil {
				return nil, err
			}
		}
		result.ShareID = groupID
		result.IsGroup = true
	} else {
		for _, artifact := range stored {
			if _, err := s.ledger.Register(ctx, artifact.ID, models.PolicySpec{
				PasswordHash: passwordHash,
				ViewLimit:    directives.ViewLimit,
				Description:  directives.Description,
			}); err != nil {
				return nil, err
			}
			policies = append(policies, artifact.ID)
		}
		result.ShareID = stored[0].ID
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	committed = true

	for _, artifact := range stored {
		result.ArtifactIDs = append(result.ArtifactIDs, artifact.ID)
	}
	s.recordUpload(ctx, req, contact, passwordHash, result, stored)

	if len(failures) > 0 {
		s.logger.Warn("upload batch partially failed",
			zap.String("share_id", result.ShareID),
			zap.Int("stored", len(stored)),
			zap.Int("failed", len(failures)),
		)
	}
	return result, nil
}

// Resolve applies the password gate and view budget of sid and returns what
// the viewer may see. A group id lists its artifacts in upload order and is
// never metered; a single artifact consumes one view.
func (s *RegistryService) Resolve(ctx context.Context, sid string, access models.Access) (*models.ResolveResult, error) {
	owner, policy, err := s.authorize(ctx, sid, access)
	if err != nil {
		return nil, err
	}

	switch {
	case policy.IsGroup() && owner == sid:
		return s.resolveGroup(ctx, policy)
	case owner != sid:
		return s.resolveMember(ctx, sid, policy)
	default:
		return s.resolveSingle(ctx, sid, policy)
	}
}

// Unlock verifies a password without consuming a view and returns a token
// that stands in for the password until it expires.
func (s *RegistryService) Unlock(ctx context.Context, sid, password string) (string, time.Time, error) {
	owner, policy, err := s.authorize(ctx, sid, models.Access{Password: password})
	if err != nil {
		return "", time.Time{}, err
	}
	token, expiresAt, err := s.unlock.Issue(owner, policy.PasswordHash)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue unlock token")
	}
	return token, expiresAt, nil
}

// Open returns the raw bytes behind a signed link.
func (s *RegistryService) Open(ctx context.Context, id, token string) (*models.ArtifactContent, error) {
	if !IsValidIdentifier(id) {
		return nil, appErrors.ErrNotFound
	}
	if err := s.links.Verify(id, token); err != nil {
		return nil, appErrors.ErrNotFound
	}
	start := time.Now()
	data, err := s.store.Get(ctx, id)
	s.metrics.ObserveStoreOp("get", time.Since(start))
	if err != nil {
		return nil, mapArtifactError(err)
	}
	contentType, err := s.store.ContentTypeOf(ctx, id)
	if err != nil {
		return nil, mapArtifactError(err)
	}
	return &models.ArtifactContent{ID: id, ContentType: contentType, Data: data}, nil
}

func (s *RegistryService) authorize(ctx context.Context, sid string, access models.Access) (string, *models.AccessPolicy, error) {
	if !IsValidIdentifier(sid) {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "invalid identifier")
	}
	owner := sid
	groupID, err := s.ledger.GroupOf(ctx, sid)
	if err != nil {
		return "", nil, err
	}
	if groupID != "" {
		owner = groupID
	}

	policy, err := s.ledger.Lookup(ctx, owner)
	if err != nil {
		if !appErrors.Is(err, appErrors.ErrNotFound) {
			return "", nil, err
		}
		if access.Password != "" {
			// Same cost and answer as a wrong password.
			_, _ = s.ledger.CheckPassword(ctx, owner, access.Password)
			return "", nil, appErrors.ErrPasswordRequired
		}
		s.metrics.RecordView("not_found")
		return "", nil, appErrors.ErrNotFound
	}

	if !policy.HasPassword() {
		return owner, policy, nil
	}
	if access.UnlockToken != "" && s.unlock != nil && s.unlock.Verify(access.UnlockToken, owner, policy.PasswordHash) {
		return owner, policy, nil
	}
	if !s.ledger.VerifyPassword(policy, access.Password) {
		s.metrics.RecordView("password_required")
		return "", nil, appErrors.ErrPasswordRequired
	}
	return owner, policy, nil
}

func (s *RegistryService) resolveGroup(ctx context.Context, policy *models.AccessPolicy) (*models.ResolveResult, error) {
	result := &models.ResolveResult{
		ShareID:     policy.ShareID,
		IsGroup:     true,
		Description: policy.Description,
	}
	for _, id := range policy.Members {
		artifact, err := s.describe(ctx, id)
		if err != nil {
			if appErrors.Is(err, appErrors.ErrNotFound) {
				s.logger.Warn("group member missing from store", zap.String("group_id", policy.ShareID), zap.String("artifact_id", id))
				continue
			}
			return nil, err
		}
		result.Artifacts = append(result.Artifacts, *artifact)
	}
	if len(result.Artifacts) == 0 {
		return nil, appErrors.ErrNotFound
	}
	s.metrics.RecordView(models.ViewNotMetered.String())
	return result, nil
}

func (s *RegistryService) resolveMember(ctx context.Context, sid string, group *models.AccessPolicy) (*models.ResolveResult, error) {
	artifact, err := s.describe(ctx, sid)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordView(models.ViewNotMetered.String())
	return &models.ResolveResult{
		ShareID:     sid,
		Description: group.Description,
		Artifacts:   []models.ResolvedArtifact{*artifact},
	}, nil
}

func (s *RegistryService) resolveSingle(ctx context.Context, sid string, policy *models.AccessPolicy) (*models.ResolveResult, error) {
	// Describe before consuming: once a view is counted the exhausting caller
	// may delete the bytes at any moment.
	artifact, err := s.describe(ctx, sid)
	if err != nil {
		return nil, err
	}

	outcome, err := s.ledger.RecordView(ctx, sid)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordView(outcome.Kind.String())

	result := &models.ResolveResult{
		ShareID:     sid,
		Description: policy.Description,
		Artifacts:   []models.ResolvedArtifact{*artifact},
	}
	switch outcome.Kind {
	case models.ViewExhausted:
		s.destroy(ctx, sid)
		return nil, appErrors.ErrGone
	case models.ViewRemaining:
		remaining := outcome.Remaining
		result.RemainingViews = &remaining
		if s.records != nil && policy.ViewBudget != nil {
			consumed := policy.ViewBudget.Limit - remaining
			if err := s.records.UpdateViewConsumed(ctx, sid, consumed); err != nil {
				s.logger.Warn("failed to mirror view count", zap.String("sid", sid), zap.Error(err))
			}
		}
	}
	return result, nil
}

// destroy removes the bytes and durable record of an exhausted artifact. The
// ledger entry is already gone.
func (s *RegistryService) destroy(ctx context.Context, sid string) {
	cleanupCtx := context.WithoutCancel(ctx)
	start := time.Now()
	err := s.store.Delete(cleanupCtx, sid)
	s.metrics.ObserveStoreOp("delete", time.Since(start))
	if err != nil {
		s.logger.Error("failed to delete exhausted artifact", zap.String("artifact_id", sid), zap.Error(err))
		s.scheduleOrphan(sid)
	}
	if s.records != nil {
		if err := s.records.Delete(cleanupCtx, sid); err != nil {
			s.logger.Warn("failed to delete upload record", zap.String("artifact_id", sid), zap.Error(err))
		}
	}
	s.metrics.RecordSelfDestruct()
	s.logger.Info("artifact self-destructed", zap.String("artifact_id", sid))
}

func (s *RegistryService) describe(ctx context.Context, id string) (*models.ResolvedArtifact, error) {
	start := time.Now()
	contentType, err := s.store.ContentTypeOf(ctx, id)
	s.metrics.ObserveStoreOp("content_type", time.Since(start))
	if err != nil {
		return nil, mapArtifactError(err)
	}
	token, expiresAt, err := s.links.Generate(id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign link")
	}
	return &models.ResolvedArtifact{
		ID:            id,
		ContentType:   contentType,
		URL:           fmt.Sprintf("%s/raw/%s?token=%s", s.config.PublicBaseURL, id, url.QueryEscape(token)),
		LinkExpiresAt: expiresAt,
	}, nil
}

func (s *RegistryService) validateBatch(req models.IngestRequest) error {
	if len(req.Files) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no files selected")
	}
	if len(req.Files) > s.config.MaxFiles {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files per upload", s.config.MaxFiles))
	}
	for _, file := range req.Files {
		if int64(len(file.Data)) > s.config.MaxFileSize {
			return appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("%s exceeds %d bytes", file.Name, s.config.MaxFileSize))
		}
	}
	if err := s.validator.Struct(req.Directives); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload options")
	}
	return nil
}

// storeFile sniffs, optionally transforms and persists one file. A non-empty
// reason means the file was skipped.
func (s *RegistryService) storeFile(ctx context.Context, file models.UploadFile, resize *models.ResizeSpec) (models.Artifact, string) {
	contentType := storage.SniffContentType(file.Data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		s.metrics.RecordIngestFile(fileRejected)
		s.logger.Info("skipping non-image upload", zap.String("name", file.Name), zap.String("sniffed", contentType))
		return models.Artifact{}, "unsupported file type"
	}

	data := file.Data
	if resize != nil && s.transformer != nil {
		out, outType, err := s.transformer.Transform(ctx, data, resize.Width, resize.Height, resize.Format)
		if err != nil {
			s.metrics.RecordIngestFile(fileTransformFailed)
			s.logger.Warn("skipping file after transform failure", zap.String("name", file.Name), zap.Error(err))
			if errors.Is(err, ErrUnsupportedFormat) {
				return models.Artifact{}, "output format not supported"
			}
			return models.Artifact{}, "image could not be resized"
		}
		data, contentType = out, outType
	}

	id := s.newID()
	start := time.Now()
	err := s.store.Put(ctx, id, data, contentType)
	s.metrics.ObserveStoreOp("put", time.Since(start))
	if err != nil {
		s.metrics.RecordIngestFile(fileStoreFailed)
		s.logger.Error("skipping file after store failure", zap.String("name", file.Name), zap.Error(err))
		return models.Artifact{}, "storage unavailable"
	}
	s.metrics.RecordIngestFile(fileStored)
	return models.Artifact{
		ID:           id,
		ContentType:  contentType,
		SizeBytes:    int64(len(data)),
		OriginalName: file.Name,
		CreatedAt:    time.Now().UTC(),
	}, ""
}

// rollback undoes a batch that will not be returned to the client. It runs
// on a context that survives cancellation of the request.
func (s *RegistryService) rollback(ctx context.Context, stored []models.Artifact, policies []string) {
	if len(stored) == 0 && len(policies) == 0 {
		return
	}
	cleanupCtx := context.WithoutCancel(ctx)
	for _, sid := range policies {
		if err := s.ledger.Remove(cleanupCtx, sid); err != nil {
			s.logger.Error("failed to remove policy during rollback", zap.String("sid", sid), zap.Error(err))
		}
	}
	for _, artifact := range stored {
		if err := s.store.Delete(cleanupCtx, artifact.ID); err != nil {
			s.logger.Error("failed to delete artifact during rollback", zap.String("artifact_id", artifact.ID), zap.Error(err))
			s.scheduleOrphan(artifact.ID)
		}
	}
	s.logger.Info("upload batch rolled back", zap.Int("artifacts", len(stored)), zap.Int("policies", len(policies)))
}

func (s *RegistryService) recordUpload(ctx context.Context, req models.IngestRequest, contact, passwordHash string, result *models.IngestResult, stored []models.Artifact) {
	if s.records == nil {
		return
	}
	var contactPtr, hashPtr *string
	if contact != "" {
		contactPtr = &contact
	}
	if passwordHash != "" {
		hashPtr = &passwordHash
	}
	newUpload := func(id string, isGroup bool) *models.UploadRecord {
		return &models.UploadRecord{
			ID:           id,
			Contact:      contactPtr,
			Origin:       req.Origin,
			Description:  req.Directives.Description,
			PasswordHash: hashPtr,
			IsGroup:      isGroup,
		}
	}
	newArtifact := func(position int, artifact models.Artifact, metered bool) models.UploadArtifactRecord {
		row := models.UploadArtifactRecord{
			ID:          artifact.ID,
			Position:    position,
			ContentType: artifact.ContentType,
			SizeBytes:   artifact.SizeBytes,
		}
		if metered && req.Directives.ViewLimit > 0 {
			limit := req.Directives.ViewLimit
			row.ViewLimit = &limit
		}
		return row
	}

	if result.IsGroup {
		rows := make([]models.UploadArtifactRecord, len(stored))
		for i, artifact := range stored {
			rows[i] = newArtifact(i, artifact, false)
		}
		if err := s.records.Create(ctx, newUpload(result.ShareID, true), rows); err != nil {
			s.logger.Warn("failed to write upload record", zap.String("share_id", result.ShareID), zap.Error(err))
		}
		return
	}
	for _, artifact := range stored {
		rows := []models.UploadArtifactRecord{newArtifact(0, artifact, true)}
		if err := s.records.Create(ctx, newUpload(artifact.ID, false), rows); err != nil {
			s.logger.Warn("failed to write upload record", zap.String("share_id", artifact.ID), zap.Error(err))
		}
	}
}

func (s *RegistryService) scheduleOrphan(id string) {
	if s.janitor == nil {
		s.logger.Error("no janitor configured, artifact orphaned", zap.String("artifact_id", id))
		return
	}
	s.janitor.ScheduleDelete(id)
}

func mapArtifactError(err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, appErrors.ErrNotFound.Message)
	}
	return storeUnavailable(err)
}
