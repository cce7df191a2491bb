package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired means another booking holds the slot right now.
var ErrLockNotAcquired = errors.New("slot lock not acquired")

const (
	keyPrefix      = "booking:slot:"
	releaseTimeout = time.Second
)

// Locker serialises the check-then-insert of one doctor slot across
// api-server replicas.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

// SlotLocker holds a token-owned Redis key for the lifetime of fn. The key
// expires after ttl so a crashed holder cannot block the slot for long.
type SlotLocker struct {
	client   redis.Cmdable
	ttl      time.Duration
	newToken func() string
}

func NewSlotLocker(client redis.Cmdable, ttl time.Duration) *SlotLocker {
	return &SlotLocker{
		client:   client,
		ttl:      ttl,
		newToken: uuid.NewString,
	}
}

func (l *SlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	key := keyPrefix + slotKey
	token := l.newToken()

	err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrLockNotAcquired
	case err != nil:
		return fmt.Errorf("acquire slot lock %s: %w", slotKey, err)
	}
	defer l.release(ctx, key, token)

	// fn must finish while the key is still ours.
	held, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(held)
}

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *SlotLocker) release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
