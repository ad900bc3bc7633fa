// Package sample implements the built-in sample service: CRUD over the
// sample repository plus the queue and notification handlers, registered
// on the dispatch registry at startup.
package sample

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/dispatch"
	"github.com/vietddude/relay/internal/infra/storage"
)

// Service exposes sample actions to the dispatcher.
type Service struct {
	repo storage.SampleRepository
	log  *slog.Logger
}

// NewService creates the sample service on top of a repository.
func NewService(repo storage.SampleRepository) *Service {
	return &Service{
		repo: repo,
		log:  slog.Default().With("component", "sample"),
	}
}

// Register wires every sample action into the dispatch registry.
func (s *Service) Register(reg *dispatch.Registry) error {
	handlers := map[string]dispatch.Handler{
		"list":                s.List,
		"get":                 s.Get,
		"create":              s.Create,
		"update":              s.Update,
		"remove":              s.Remove,
		"processQueueMessage": s.ProcessQueueMessage,
		"processNotification": s.ProcessNotification,
	}
	for action, h := range handlers {
		if err := reg.Register(domain.NewActionKey("sample", action), h); err != nil {
			return err
		}
	}
	return nil
}

// List returns all stored samples.
func (s *Service) List(ctx context.Context, _ map[string]any, _ map[string]any) (any, error) {
	samples, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": samples, "count": len(samples)}, nil
}

// Get returns one sample by id.
func (s *Service) Get(ctx context.Context, params map[string]any, _ map[string]any) (any, error) {
	id := stringParam(params, "id")
	if id == "" {
		return nil, domain.Validationf("id is required")
	}
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new sample.
func (s *Service) Create(ctx context.Context, params map[string]any, _ map[string]any) (any, error) {
	sm := domain.NewSample(stringParam(params, "name"), stringParam(params, "email"), stringsParam(params, "tags"))
	if err := sm.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sm); err != nil {
		return nil, err
	}
	s.log.Info("Sample created", "id", sm.ID)
	return sm, nil
}

// Update applies the provided fields to an existing sample.
func (s *Service) Update(ctx context.Context, params map[string]any, _ map[string]any) (any, error) {
	id := stringParam(params, "id")
	if id == "" {
		return nil, domain.Validationf("id is required")
	}

	sm, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := params["name"]; ok {
		sm.Name = stringParam(params, "name")
	}
	if _, ok := params["email"]; ok {
		sm.Email = stringParam(params, "email")
	}
	if _, ok := params["tags"]; ok {
		sm.Tags = stringsParam(params, "tags")
	}
	if err := sm.Validate(); err != nil {
		return nil, err
	}
	sm.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, sm); err != nil {
		return nil, err
	}
	return sm, nil
}

// Remove deletes a sample by id.
func (s *Service) Remove(ctx context.Context, params map[string]any, _ map[string]any) (any, error) {
	id := stringParam(params, "id")
	if id == "" {
		return nil, domain.Validationf("id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.log.Info("Sample removed", "id", id)
	return map[string]any{"id": id, "deleted": true}, nil
}

// ProcessQueueMessage persists a sample carried in a queued payload. The
// payload uses the same fields as create; an existing id becomes an update.
func (s *Service) ProcessQueueMessage(ctx context.Context, params map[string]any, meta map[string]any) (any, error) {
	id := stringParam(params, "id")
	if id != "" {
		sm, err := s.repo.Get(ctx, id)
		if err == nil {
			if _, ok := params["name"]; ok {
				sm.Name = stringParam(params, "name")
			}
			if _, ok := params["email"]; ok {
				sm.Email = stringParam(params, "email")
			}
			if _, ok := params["tags"]; ok {
				sm.Tags = stringsParam(params, "tags")
			}
			if err := sm.Validate(); err != nil {
				return nil, err
			}
			sm.UpdatedAt = time.Now().UTC()
			if err := s.repo.Update(ctx, sm); err != nil {
				return nil, err
			}
			return map[string]any{"id": sm.ID, "updated": true}, nil
		}
		if !domain.IsKind(err, domain.KindNotFound) {
			return nil, err
		}
	}

	sm := domain.NewSample(stringParam(params, "name"), stringParam(params, "email"), stringsParam(params, "tags"))
	if id != "" {
		sm.ID = id
	}
	if err := sm.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sm); err != nil {
		return nil, err
	}
	s.log.Info("Queued sample persisted", "id", sm.ID, "transport", meta[domain.MetaTransport])
	return map[string]any{"id": sm.ID, "created": true}, nil
}

// ProcessNotification records a notification event. Notifications are not
// persisted, only acknowledged and logged with their subject.
func (s *Service) ProcessNotification(_ context.Context, params map[string]any, _ map[string]any) (any, error) {
	subject := stringParam(params, "subject")
	if subject == "" {
		subject = stringParam(params, "Subject")
	}
	s.log.Info("Notification received", "subject", subject)
	return map[string]any{"acknowledged": true, "subject": subject}, nil
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
