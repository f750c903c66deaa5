package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "imgdrop:art:"

// RedisStore keeps artifact bytes and metadata in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores content and metadata in one transaction.
func (s *RedisStore) Put(ctx context.Context, id string, data []byte, contentType string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("artifact store unavailable")
	}
	if !validKey(id) {
		return ErrInvalidKey
	}
	payload, err := json.Marshal(newMetadata(data, contentType))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, artifactKey(id), data, 0)
	pipe.Set(ctx, artifactMetaKey(id), payload, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put artifact %s: %w", id, err)
	}
	return nil
}

// Get returns artifact content.
func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("artifact store unavailable")
	}
	if !validKey(id) {
		return nil, ErrNotFound
	}
	data, err := s.client.Get(ctx, artifactKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get artifact %s: %w", id, err)
	}
	return data, nil
}

// ContentTypeOf reads the metadata record, sniffing the bytes if it is gone.
func (s *RedisStore) ContentTypeOf(ctx context.Context, id string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("artifact store unavailable")
	}
	if !validKey(id) {
		return "", ErrNotFound
	}
	pipe := s.client.Pipeline()
	existsCmd := pipe.Exists(ctx, artifactKey(id))
	metaCmd := pipe.Get(ctx, artifactMetaKey(id))
	_, _ = pipe.Exec(ctx)

	exists, err := existsCmd.Result()
	if err != nil {
		return "", fmt.Errorf("redis exists artifact %s: %w", id, err)
	}
	if exists == 0 {
		return "", ErrNotFound
	}
	if raw, err := metaCmd.Bytes(); err == nil {
		var meta Metadata
		if json.Unmarshal(raw, &meta) == nil && meta.ContentType != "" {
			return meta.ContentType, nil
		}
	}
	data, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return SniffContentType(data), nil
}

// Delete removes both keys; missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("artifact store unavailable")
	}
	if !validKey(id) {
		return nil
	}
	if err := s.client.Del(ctx, artifactKey(id), artifactMetaKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete artifact %s: %w", id, err)
	}
	return nil
}

func artifactKey(id string) string {
	return redisKeyPrefix + id
}

func artifactMetaKey(id string) string {
	return redisKeyPrefix + "meta:" + id
}
