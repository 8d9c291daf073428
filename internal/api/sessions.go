package api

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const defaultSessionIdleTTL = 30 * time.Minute

type sessionEntry[T any] struct {
	value   T
	removed atomic.Bool
}

// sessions keeps per-client interactive state (wizards, drags) between requests.
// An entry expires after idleTTL without access; onExpire then releases it.
type sessions[T any] struct {
	items *cache.Cache
}

func newSessions[T any](idleTTL, cleanup time.Duration, onExpire func(T)) *sessions[T] {
	if idleTTL <= 0 {
		idleTTL = defaultSessionIdleTTL
	}
	if cleanup <= 0 {
		cleanup = idleTTL / 2
	}
	c := cache.New(idleTTL, cleanup)
	c.OnEvicted(func(_ string, v interface{}) {
		e, ok := v.(*sessionEntry[T])
		if !ok || e.removed.Load() || onExpire == nil {
			return
		}
		onExpire(e.value)
	})
	return &sessions[T]{items: c}
}

func (s *sessions[T]) put(id uuid.UUID, v T) {
	s.items.Set(id.String(), &sessionEntry[T]{value: v}, cache.DefaultExpiration)
}

// get returns the session and pushes its expiry back by a full idle period.
func (s *sessions[T]) get(id uuid.UUID) (T, bool) {
	var zero T
	v, ok := s.items.Get(id.String())
	if !ok {
		return zero, false
	}
	e := v.(*sessionEntry[T])
	s.items.Set(id.String(), e, cache.DefaultExpiration)
	return e.value, true
}

func (s *sessions[T]) remove(id uuid.UUID) (T, bool) {
	var zero T
	v, ok := s.items.Get(id.String())
	if !ok {
		return zero, false
	}
	e := v.(*sessionEntry[T])
	e.removed.Store(true)
	s.items.Delete(id.String())
	return e.value, true
}

// len counts live entries, including expired ones the janitor has not swept yet.
func (s *sessions[T]) len() int {
	return s.items.ItemCount()
}
