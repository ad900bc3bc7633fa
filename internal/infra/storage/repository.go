package storage

import (
	"context"

	"github.com/vietddude/relay/internal/core/domain"
)

// SampleRepository handles sample entity storage operations. Implementations
// return domain taxonomy errors for business conditions (NOT_FOUND for
// absent ids, including Delete) and plain wrapped errors for infrastructure
// failures.
type SampleRepository interface {
	// List retrieves all samples in creation order
	List(ctx context.Context) ([]*domain.Sample, error)

	// Get retrieves a sample by id
	Get(ctx context.Context, id string) (*domain.Sample, error)

	// Create stores a new sample
	Create(ctx context.Context, sample *domain.Sample) error

	// Update overwrites an existing sample
	Update(ctx context.Context, sample *domain.Sample) error

	// Delete removes a sample; deleting an absent id is NOT_FOUND
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored samples
	Count(ctx context.Context) (int, error)
}
