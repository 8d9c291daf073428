package appointment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// CachedStore serves practitioner and procedure lookups from a TTL cache.
// Appointment reads and all writes pass through to the wrapped Store.
type CachedStore struct {
	Store
	cache *cache.Cache
}

func NewCachedStore(store Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: store,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (s *CachedStore) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	const key = "practitioners"
	if v, ok := s.cache.Get(key); ok {
		return v.([]Practitioner), nil
	}
	list, err := s.Store.ListPractitioners(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, list)
	return list, nil
}

func (s *CachedStore) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	key := "practitioner:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		p := v.(Practitioner)
		return &p, nil
	}
	p, err := s.Store.GetPractitioner(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, *p)
	return p, nil
}

func (s *CachedStore) ListProcedures(ctx context.Context, term string) ([]Procedure, error) {
	key := "procedures:" + strings.ToLower(strings.TrimSpace(term))
	if v, ok := s.cache.Get(key); ok {
		return v.([]Procedure), nil
	}
	list, err := s.Store.ListProcedures(ctx, term)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, list)
	return list, nil
}

func (s *CachedStore) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	key := "procedure:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		p := v.(Procedure)
		return &p, nil
	}
	p, err := s.Store.GetProcedure(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, *p)
	return p, nil
}

// Flush drops every cached lookup.
func (s *CachedStore) Flush() {
	s.cache.Flush()
}
