package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var (
	ErrLockNotAcquired = errors.New("practitioner day lock not acquired")
)

// Locker serialises writes that must re-check overlap for one practitioner-day.
type Locker interface {
	WithPractitionerDay(ctx context.Context, practitionerID uuid.UUID, date appointment.Date, fn func(ctx context.Context) error) error
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDayLocker creates a locker that uses a per practitioner-day Redis key
func NewRedisDayLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
	}
}

func LockKey(practitionerID uuid.UUID, date appointment.Date) string {
	return fmt.Sprintf("lock:practitioner:%s:%s", practitionerID, date)
}

func (l *redisDayLocker) WithPractitionerDay(ctx context.Context, practitionerID uuid.UUID, date appointment.Date, fn func(ctx context.Context) error) error {
	key := LockKey(practitionerID, date)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire practitioner day lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release practitioner day lock: %w", err)
	}
	return nil
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// LocalDayLocker serialises practitioner-day writes inside one process.
// It is the locker used when no Redis is configured.
type LocalDayLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

func NewLocalDayLocker() *LocalDayLocker {
	return &LocalDayLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalDayLocker) WithPractitionerDay(ctx context.Context, practitionerID uuid.UUID, date appointment.Date, fn func(ctx context.Context) error) error {
	key := LockKey(practitionerID, date)

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()
	defer l.drop(key, e)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquire practitioner day lock: %w", ctx.Err())
	}
	defer func() { <-e.sem }()

	return fn(ctx)
}

func (l *LocalDayLocker) drop(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// held reports how many keys currently have waiters or holders.
func (l *LocalDayLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
