package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/imgdrop/internal/models"
)

const (
	policyKeyPrefix  = "imgdrop:policy:"
	groupOfKeyPrefix = "imgdrop:group-of:"
)

// Results of recordViewScript below zero.
const (
	viewScriptMissing    = -2
	viewScriptNotMetered = -1
	viewScriptExhausted  = -3
)

// RedisPolicyRepository stores each policy as a hash. Mutations that must be
// atomic run as Lua scripts so the server executes them as one step.
type RedisPolicyRepository struct {
	client *redis.Client
}

// NewRedisPolicyRepository wraps an existing client.
func NewRedisPolicyRepository(client *redis.Client) *RedisPolicyRepository {
	return &RedisPolicyRepository{client: client}
}

// Create stores a new policy hash.
func (r *RedisPolicyRepository) Create(ctx context.Context, policy *models.AccessPolicy) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("policy store unavailable")
	}
	createdAt := policy.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	args := []interface{}{
		"password_hash", policy.PasswordHash,
		"description", policy.Description,
		"members", strings.Join(policy.Members, ","),
		"created_at", createdAt.UnixMilli(),
	}
	if policy.ViewBudget != nil {
		args = append(args, "view_limit", policy.ViewBudget.Limit, "view_consumed", policy.ViewBudget.Consumed)
	}
	res, err := r.client.Eval(ctx, createPolicyScript, []string{policyKey(policy.ShareID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("redis create policy %s: %w", policy.ShareID, err)
	}
	if res == 0 {
		return ErrPolicyExists
	}
	return nil
}

// Get loads a policy.
func (r *RedisPolicyRepository) Get(ctx context.Context, sid string) (*models.AccessPolicy, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("policy store unavailable")
	}
	fields, err := r.client.HGetAll(ctx, policyKey(sid)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get policy %s: %w", sid, err)
	}
	if len(fields) == 0 {
		return nil, ErrPolicyNotFound
	}
	return decodePolicy(sid, fields)
}

// SetPasswordHash replaces the stored hash of an existing policy.
func (r *RedisPolicyRepository) SetPasswordHash(ctx context.Context, sid, hash string) error {
	return r.setFields(ctx, sid, "password_hash", hash)
}

// SetViewBudget attaches a fresh budget to an existing policy.
func (r *RedisPolicyRepository) SetViewBudget(ctx context.Context, sid string, limit int) error {
	return r.setFields(ctx, sid, "view_limit", limit, "view_consumed", 0)
}

// RecordView consumes one view and, on overrun, deletes the policy and its
// member links inside the same script.
func (r *RedisPolicyRepository) RecordView(ctx context.Context, sid string) (models.ViewOutcome, error) {
	if r == nil || r.client == nil {
		return models.ViewOutcome{}, fmt.Errorf("policy store unavailable")
	}
	res, err := r.client.Eval(ctx, recordViewScript, []string{policyKey(sid)}, groupOfKeyPrefix).Int64()
	if err != nil {
		return models.ViewOutcome{}, fmt.Errorf("redis record view %s: %w", sid, err)
	}
	switch {
	case res == viewScriptMissing:
		return models.ViewOutcome{}, ErrPolicyNotFound
	case res == viewScriptNotMetered:
		return models.NotMetered(), nil
	case res == viewScriptExhausted:
		return models.Exhausted(), nil
	case res >= 0:
		return models.Remaining(int(res)), nil
	default:
		return models.ViewOutcome{}, fmt.Errorf("redis record view %s: unexpected result %d", sid, res)
	}
}

// Link records artifactID as a member of groupID.
func (r *RedisPolicyRepository) Link(ctx context.Context, artifactID, groupID string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("policy store unavailable")
	}
	if err := r.client.Set(ctx, groupOfKey(artifactID), groupID, 0).Err(); err != nil {
		return fmt.Errorf("redis link %s: %w", artifactID, err)
	}
	return nil
}

// GroupOf returns the owning group or "" for single artifacts.
func (r *RedisPolicyRepository) GroupOf(ctx context.Context, artifactID string) (string, error) {
	if r == nil || r.client == nil {
		return "", fmt.Errorf("policy store unavailable")
	}
	groupID, err := r.client.Get(ctx, groupOfKey(artifactID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis group of %s: %w", artifactID, err)
	}
	return groupID, nil
}

// Delete removes the policy and member links.
func (r *RedisPolicyRepository) Delete(ctx context.Context, sid string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("policy store unavailable")
	}
	if err := r.client.Eval(ctx, deletePolicyScript, []string{policyKey(sid)}, groupOfKeyPrefix).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete policy %s: %w", sid, err)
	}
	return nil
}

// Close shuts down the Redis client.
func (r *RedisPolicyRepository) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisPolicyRepository) setFields(ctx context.Context, sid string, pairs ...interface{}) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("policy store unavailable")
	}
	res, err := r.client.Eval(ctx, setFieldsScript, []string{policyKey(sid)}, pairs...).Int64()
	if err != nil {
		return fmt.Errorf("redis update policy %s: %w", sid, err)
	}
	if res == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

func decodePolicy(sid string, fields map[string]string) (*models.AccessPolicy, error) {
	policy := &models.AccessPolicy{
		ShareID:      sid,
		PasswordHash: fields["password_hash"],
		Description:  fields["description"],
	}
	if members := fields["members"]; members != "" {
		policy.Members = strings.Split(members, ",")
	}
	if raw := fields["created_at"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode policy %s created_at: %w", sid, err)
		}
		policy.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if raw := fields["view_limit"]; raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("decode policy %s view_limit: %w", sid, err)
		}
		consumed, _ := strconv.Atoi(fields["view_consumed"])
		policy.ViewBudget = &models.ViewBudget{Limit: limit, Consumed: consumed}
	}
	return policy, nil
}

func policyKey(sid string) string {
	return policyKeyPrefix + sid
}

func groupOfKey(artifactID string) string {
	return groupOfKeyPrefix + artifactID
}

const createPolicyScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`

const setFieldsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`

const recordViewScript = `
local key = KEYS[1]
local linkPrefix = ARGV[1]
if redis.call("EXISTS", key) == 0 then
  return -2
end
local limit = redis.call("HGET", key, "view_limit")
if not limit or limit == "" then
  return -1
end
limit = tonumber(limit)
local consumed = redis.call("HINCRBY", key, "view_consumed", 1)
if consumed <= limit then
  return limit - consumed
end
local members = redis.call("HGET", key, "members")
redis.call("DEL", key)
if members and members ~= "" then
  for id in string.gmatch(members, "[^,]+") do
    redis.call("DEL", linkPrefix .. id)
  end
end
return -3
`

const deletePolicyScript = `
local key = KEYS[1]
local linkPrefix = ARGV[1]
local members = redis.call("HGET", key, "members")
redis.call("DEL", key)
if members and members ~= "" then
  for id in string.gmatch(members, "[^,]+") do
    redis.call("DEL", linkPrefix .. id)
  end
end
return 1
`
