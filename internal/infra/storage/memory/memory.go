package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/relay/internal/core/domain"
)

// Store is an in-memory SampleRepository used when no database is
// configured, and in tests. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	samples map[string]*domain.Sample
}

func NewStore() *Store {
	return &Store{samples: make(map[string]*domain.Sample)}
}

func (s *Store) List(ctx context.Context) ([]*domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Sample, 0, len(s.samples))
	for _, sample := range s.samples {
		out = append(out, copySample(sample))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.samples[id]
	if !ok {
		return nil, domain.NotFoundf("sample %s not found", id)
	}
	return copySample(sample), nil
}

func (s *Store) Create(ctx context.Context, sample *domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.samples[sample.ID]; exists {
		return domain.Validationf("sample %s already exists", sample.ID)
	}
	s.samples[sample.ID] = copySample(sample)
	return nil
}

func (s *Store) Update(ctx context.Context, sample *domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.samples[sample.ID]; !exists {
		return domain.NotFoundf("sample %s not found", sample.ID)
	}
	s.samples[sample.ID] = copySample(sample)
	return nil
}

// Delete removes a sample; deleting an absent id is NOT_FOUND, matching Get
// and Update.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.samples[id]; !exists {
		return domain.NotFoundf("sample %s not found", id)
	}
	delete(s.samples, id)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples), nil
}

// copySample keeps stored state isolated from caller mutation.
func copySample(in *domain.Sample) *domain.Sample {
	out := *in
	if in.Tags != nil {
		out.Tags = append([]string(nil), in.Tags...)
	}
	return &out
}
