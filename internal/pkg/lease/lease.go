// internal/pkg/lease/lease.go
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Manager hands out short-lived single-holder leases backed by redis
// SET NX. Billing uses one lease per subscription id so two scheduler
// ticks (or two processes) can never charge the same subscription at the
// same time.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
}

func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Manager{client: client, ttl: ttl}
}

// Acquire tries to take the lease for key. It returns a release token when
// the lease was taken, or ok=false when another holder has it.
func (m *Manager) Acquire(ctx context.Context, key string) (token string, ok bool, err error) {
	token = ulid.Make().String()

	ok, err = m.client.SetNX(ctx, m.redisKey(key), token, m.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lease if it is still held with the given token. A
// lease lost to TTL expiry is not an error.
func (m *Manager) Release(ctx context.Context, key, token string) error {
	current, err := m.client.Get(ctx, m.redisKey(key)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lease %s: %w", key, err)
	}
	if current != token {
		// Expired and re-acquired by someone else, leave it alone.
		return nil
	}

	if err := m.client.Del(ctx, m.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

func (m *Manager) redisKey(key string) string {
	return "billing:lease:" + key
}
