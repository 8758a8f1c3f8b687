package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

var _ store.AccessTokenStore = (*AccessTokenStore)(nil)

// AccessTokenStore keeps opaque access token bindings in Redis, relying on
// key TTLs for expiry.
type AccessTokenStore struct {
	client    *redis.Client
	namespace string
}

func NewAccessTokenStore(client *redis.Client, namespace string) *AccessTokenStore {
	return &AccessTokenStore{client: client, namespace: namespace}
}

func (s *AccessTokenStore) key(tokenHash string) string {
	return fmt.Sprintf("%s:at:%s", s.namespace, tokenHash)
}

func (s *AccessTokenStore) Save(ctx context.Context, tokenHash string, record store.AccessTokenRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal access token record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

func (s *AccessTokenStore) Get(ctx context.Context, tokenHash string) (*store.AccessTokenRecord, error) {
	payload, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load access token: %w", err)
	}
	var record store.AccessTokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode access token record: %w", err)
	}
	return &record, nil
}
