package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

type ceremonyKind uint8

const (
	ceremonyRegistration ceremonyKind = 1
	ceremonyLogin        ceremonyKind = 2
)

var (
	errCeremonyNotFound         = errors.New("ceremony record not found")
	errCeremonyKindMismatch     = errors.New("ceremony kind mismatch")
	errCeremonyRedisUnavailable = errors.New("ceremony redis unavailable")
)

// ceremonyRecord holds a pending WebAuthn ceremony between Begin and Finish.
// Email is empty for discoverable login ceremonies.
type ceremonyRecord struct {
	Kind      ceremonyKind         `json:"kind"`
	Email     string               `json:"email,omitempty"`
	Session   webauthn.SessionData `json:"session"`
	ExpiresAt int64                `json:"expires_at"`
}

// ceremonyStore keeps ceremony records in Redis with a TTL. Consume is
// single-use: the record is deleted inside the same transaction that reads
// it, so an authenticator response can never finish a ceremony twice.
type ceremonyStore struct {
	redis  *redis.Client
	prefix string
}

func newCeremonyStore(redisClient *redis.Client, prefix string) *ceremonyStore {
	return &ceremonyStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ceremonyStore) key(ceremonyID string) string {
	return s.prefix + ":" + ceremonyID
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *ceremonyStore) Save(ctx context.Context, ceremonyID string, record *ceremonyRecord, ttl time.Duration) error {
	record.ExpiresAt = time.Now().Add(ttl).Unix()
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(ceremonyID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errCeremonyRedisUnavailable, err)
	}

	return nil
}

// Consume describes the consume operation and its observable behavior.
//
// Consume may return an error when input validation, dependency calls, or security checks fail.
// Consume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *ceremonyStore) Consume(ctx context.Context, ceremonyID string, expectedKind ceremonyKind) (*ceremonyRecord, error) {
	const maxRetries = 4
	key := s.key(ceremonyID)

	for i := 0; i < maxRetries; i++ {
		var matched *ceremonyRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record := &ceremonyRecord{}
			if err := json.Unmarshal(data, record); err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				return errCeremonyNotFound
			}
			if record.Kind != expectedKind {
				return errCeremonyKindMismatch
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errCeremonyNotFound
			case errors.Is(err, errCeremonyNotFound), errors.Is(err, errCeremonyKindMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errCeremonyRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errCeremonyNotFound
}
