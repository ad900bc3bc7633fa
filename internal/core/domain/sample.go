package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sample is the business entity the relay serves. Kept deliberately small;
// the interesting part of the system is how calls reach it, not the entity
// itself.
type Sample struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Tags      []string  `json:"tags,omitempty" db:"tags"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// NewSample builds a sample with a fresh id and creation timestamps.
func NewSample(name, email string, tags []string) *Sample {
	now := time.Now().UTC()
	return &Sample{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

const maxSampleNameLen = 200

// Validate checks entity constraints. Violations are VALIDATION_ERROR.
func (s *Sample) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Validationf("name is required")
	}
	if len(s.Name) > maxSampleNameLen {
		return Validationf("name exceeds %d characters", maxSampleNameLen)
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		return Validationf("email %q is not a valid address", s.Email)
	}
	return nil
}
