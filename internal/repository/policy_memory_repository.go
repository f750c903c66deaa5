package repository

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/imgdrop/internal/models"
)

type policyEntry struct {
	mu      sync.Mutex
	policy  *models.AccessPolicy
	deleted bool
}

// MemoryPolicyRepository keeps access policies in process memory. The map lock
// guards membership only; each entry serialises its own counter, so views on
// different ids never contend.
type MemoryPolicyRepository struct {
	mu      sync.RWMutex
	entries map[string]*policyEntry
	groupOf map[string]string
}

// NewMemoryPolicyRepository constructs an empty ledger backend.
func NewMemoryPolicyRepository() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{
		entries: make(map[string]*policyEntry),
		groupOf: make(map[string]string),
	}
}

// Create stores a new policy.
func (r *MemoryPolicyRepository) Create(ctx context.Context, policy *models.AccessPolicy) error {
	stored := policy.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[policy.ShareID]; ok {
		return ErrPolicyExists
	}
	r.entries[policy.ShareID] = &policyEntry{policy: stored}
	return nil
}

// Get returns a copy of the policy.
func (r *MemoryPolicyRepository) Get(ctx context.Context, sid string) (*models.AccessPolicy, error) {
	entry := r.lookup(sid)
	if entry == nil {
		return nil, ErrPolicyNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, ErrPolicyNotFound
	}
	return entry.policy.Clone(), nil
}

// SetPasswordHash replaces the stored hash.
func (r *MemoryPolicyRepository) SetPasswordHash(ctx context.Context, sid, hash string) error {
	return r.update(sid, func(p *models.AccessPolicy) {
		p.PasswordHash = hash
	})
}

// SetViewBudget attaches a fresh budget.
func (r *MemoryPolicyRepository) SetViewBudget(ctx context.Context, sid string, limit int) error {
	return r.update(sid, func(p *models.AccessPolicy) {
		p.ViewBudget = &models.ViewBudget{Limit: limit}
	})
}

// RecordView consumes one view. The view that overruns the budget marks the
// entry deleted under its lock and then unlinks it, so exactly one caller
// observes Exhausted.
func (r *MemoryPolicyRepository) RecordView(ctx context.Context, sid string) (models.ViewOutcome, error) {
	entry := r.lookup(sid)
	if entry == nil {
		return models.ViewOutcome{}, ErrPolicyNotFound
	}

	entry.mu.Lock()
	if entry.deleted {
		entry.mu.Unlock()
		return models.ViewOutcome{}, ErrPolicyNotFound
	}
	budget := entry.policy.ViewBudget
	if budget == nil {
		entry.mu.Unlock()
		return models.NotMetered(), nil
	}
	budget.Consumed++
	if budget.Consumed <= budget.Limit {
		remaining := budget.Limit - budget.Consumed
		entry.mu.Unlock()
		return models.Remaining(remaining), nil
	}
	entry.deleted = true
	members := entry.policy.Members
	entry.mu.Unlock()

	r.unlink(sid, entry, members)
	return models.Exhausted(), nil
}

// Link records artifactID as a member of groupID.
func (r *MemoryPolicyRepository) Link(ctx context.Context, artifactID, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groupOf[artifactID] = groupID
	return nil
}

// GroupOf returns the owning group or "" for single artifacts.
func (r *MemoryPolicyRepository) GroupOf(ctx context.Context, artifactID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groupOf[artifactID], nil
}

// Delete removes the policy and any member links. Missing ids are ignored.
func (r *MemoryPolicyRepository) Delete(ctx context.Context, sid string) error {
	entry := r.lookup(sid)
	if entry == nil {
		return nil
	}
	entry.mu.Lock()
	if entry.deleted {
		entry.mu.Unlock()
		return nil
	}
	entry.deleted = true
	members := entry.policy.Members
	entry.mu.Unlock()

	r.unlink(sid, entry, members)
	return nil
}

// Len reports how many live policies are held.
func (r *MemoryPolicyRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close releases nothing; memory is reclaimed with the process.
func (r *MemoryPolicyRepository) Close() error {
	return nil
}

func (r *MemoryPolicyRepository) lookup(sid string) *policyEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[sid]
}

func (r *MemoryPolicyRepository) update(sid string, fn func(*models.AccessPolicy)) error {
	entry := r.lookup(sid)
	if entry == nil {
		return ErrPolicyNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return ErrPolicyNotFound
	}
	fn(entry.policy)
	return nil
}

func (r *MemoryPolicyRepository) unlink(sid string, entry *policyEntry, members []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[sid] == entry {
		delete(r.entries, sid)
	}
	for _, member := range members {
		if r.groupOf[member] == sid {
			delete(r.groupOf, member)
		}
	}
}
