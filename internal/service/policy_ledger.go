package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/imgdrop/internal/models"
	"github.com/noah-isme/imgdrop/internal/repository"
	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
)

const (
	minPasswordLength    = 6
	maxPasswordBytes     = 72
	minViewLimit         = 1
	maxViewLimit         = 100
	maxDescriptionLength = 1000
)

type policyStore interface {
	Create(ctx context.Context, policy *models.AccessPolicy) error
	Get(ctx context.Context, sid string) (*models.AccessPolicy, error)
	SetPasswordHash(ctx context.Context, sid, hash string) error
	SetViewBudget(ctx context.Context, sid string, limit int) error
	RecordView(ctx context.Context, sid string) (models.ViewOutcome, error)
	Link(ctx context.Context, artifactID, groupID string) error
	GroupOf(ctx context.Context, artifactID string) (string, error)
	Delete(ctx context.Context, sid string) error
	Close() error
}

// PolicyLedgerConfig tunes password hashing.
type PolicyLedgerConfig struct {
	BcryptCost int
}

// PolicyLedger owns passwords, view budgets and group links for shareable ids.
type PolicyLedger struct {
	store     policyStore
	logger    *zap.Logger
	cost      int
	dummyHash []byte
}

// NewPolicyLedger constructs the ledger over a backend.
func NewPolicyLedger(store policyStore, logger *zap.Logger, cfg PolicyLedgerConfig) (*PolicyLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("imgdrop-timing-equaliser"), cost)
	if err != nil {
		return nil, err
	}
	return &PolicyLedger{store: store, logger: logger, cost: cost, dummyHash: dummy}, nil
}

// Register creates the policy entry of a new shareable id. Every directive is
// validated before anything is written.
func (l *PolicyLedger) Register(ctx context.Context, sid string, spec models.PolicySpec) (*models.AccessPolicy, error) {
	if spec.Password != "" {
		if err := validatePassword(spec.Password); err != nil {
			return nil, err
		}
	}
	if spec.ViewLimit != 0 {
		if len(spec.Members) > 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grouped posts cannot self-destruct")
		}
		if err := validateViewLimit(spec.ViewLimit); err != nil {
			return nil, err
		}
	}
	if utf8.RuneCountInString(spec.Description) > maxDescriptionLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description is too long")
	}

	policy := &models.AccessPolicy{
		ShareID:      sid,
		PasswordHash: spec.PasswordHash,
		Description:  spec.Description,
		Members:      spec.Members,
		CreatedAt:    time.Now().UTC(),
	}
	if spec.Password != "" {
		hash, err := l.HashPassword(spec.Password)
		if err != nil {
			return nil, err
		}
		policy.PasswordHash = hash
	}
	if spec.ViewLimit != 0 {
		policy.ViewBudget = &models.ViewBudget{Limit: spec.ViewLimit}
	}
	if err := l.store.Create(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrPolicyExists) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "identifier collision")
		}
		return nil, storeUnavailable(err)
	}
	return policy, nil
}

// HashPassword validates and hashes a secret.
func (l *PolicyLedger) HashPassword(secret string) (string, error) {
	if err := validatePassword(secret); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), l.cost)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	return string(hash), nil
}

// SetPassword replaces the password of an existing id.
func (l *PolicyLedger) SetPassword(ctx context.Context, sid, secret string) error {
	hash, err := l.HashPassword(secret)
	if err != nil {
		return err
	}
	return l.mapStoreError(l.store.SetPasswordHash(ctx, sid, hash))
}

// CheckPassword compares attempt against the stored hash in constant time.
// Ids without a password, and unknown ids, pass through; for unknown ids a
// dummy comparison keeps the timing close to that of a real check.
func (l *PolicyLedger) CheckPassword(ctx context.Context, sid, attempt string) (bool, error) {
	policy, err := l.store.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, repository.ErrPolicyNotFound) {
			if attempt != "" {
				_ = bcrypt.CompareHashAndPassword(l.dummyHash, []byte(attempt))
			}
			return true, nil
		}
		return false, storeUnavailable(err)
	}
	return l.VerifyPassword(policy, attempt), nil
}

// SetViewBudget attaches a self-destruct budget. Groups are never metered.
func (l *PolicyLedger) SetViewBudget(ctx context.Context, sid string, limit int) error {
	if err := validateViewLimit(limit); err != nil {
		return err
	}
	policy, err := l.Lookup(ctx, sid)
	if err != nil {
		return err
	}
	if policy.IsGroup() {
		return appErrors.Clone(appErrors.ErrValidation, "grouped posts cannot self-destruct")
	}
	return l.mapStoreError(l.store.SetViewBudget(ctx, sid, limit))
}

// RecordView consumes one view of sid. Exhausted is returned to exactly one
// caller, after the policy entry and its links are gone.
func (l *PolicyLedger) RecordView(ctx context.Context, sid string) (models.ViewOutcome, error) {
	outcome, err := l.store.RecordView(ctx, sid)
	if err != nil {
		return models.ViewOutcome{}, l.mapStoreError(err)
	}
	if outcome.Kind == models.ViewExhausted {
		l.logger.Info("view budget exhausted", zap.String("sid", sid))
	}
	return outcome, nil
}

// LinkToGroup records artifactID as a member of groupID.
func (l *PolicyLedger) LinkToGroup(ctx context.Context, artifactID, groupID string) error {
	if err := l.store.Link(ctx, artifactID, groupID); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// GroupOf returns the group owning artifactID, or "" for single artifacts.
func (l *PolicyLedger) GroupOf(ctx context.Context, artifactID string) (string, error) {
	groupID, err := l.store.GroupOf(ctx, artifactID)
	if err != nil {
		return "", storeUnavailable(err)
	}
	return groupID, nil
}

// Lookup returns the policy of sid.
func (l *PolicyLedger) Lookup(ctx context.Context, sid string) (*models.AccessPolicy, error) {
	policy, err := l.store.Get(ctx, sid)
	if err != nil {
		return nil, l.mapStoreError(err)
	}
	return policy, nil
}

// Remove deletes the policy of sid and its group links.
func (l *PolicyLedger) Remove(ctx context.Context, sid string) error {
	if err := l.store.Delete(ctx, sid); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// Close releases the backend.
func (l *PolicyLedger) Close() error {
	return l.store.Close()
}

// VerifyPassword checks attempt against an already loaded policy.
func (l *PolicyLedger) VerifyPassword(policy *models.AccessPolicy, attempt string) bool {
	if !policy.HasPassword() {
		return true
	}
	if attempt == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(policy.PasswordHash), []byte(attempt)) == nil
}

func (l *PolicyLedger) mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrPolicyNotFound) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, appErrors.ErrNotFound.Message)
	}
	return storeUnavailable(err)
}

func validatePassword(secret string) error {
	if utf8.RuneCountInString(secret) < minPasswordLength {
		return appErrors.Clone(appErrors.ErrValidation, "password must be at least 6 characters")
	}
	if len(secret) > maxPasswordBytes {
		return appErrors.Clone(appErrors.ErrValidation, "password must be at most 72 bytes")
	}
	return nil
}

func validateViewLimit(limit int) error {
	if limit < minViewLimit || limit > maxViewLimit {
		return appErrors.Clone(appErrors.ErrValidation, "view limit must be between 1 and 100")
	}
	return nil
}

func storeUnavailable(err error) error {
	return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
}
