package events

import (
	"context"

	"github.com/eventix/eventix/internal/domain"
	"github.com/eventix/eventix/internal/repository"
)

type EventUseCase interface {
	List(ctx context.Context) ([]domain.Event, error)
	GetByID(ctx context.Context, id int64) (*domain.Event, error)
}

// Cache is the read-side cache the catalog sits behind. A miss or a cache
// error falls through to the repository.
type Cache interface {
	GetEvents(ctx context.Context) ([]domain.Event, error)
	SetEvents(ctx context.Context, events []domain.Event) error
}

type EventService struct {
	repo  repository.EventRepository
	cache Cache
}

func NewEventService(repo repository.EventRepository, cache Cache) *EventService {
	return &EventService{repo: repo, cache: cache}
}

func (s *EventService) List(ctx context.Context) ([]domain.Event, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetEvents(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	events, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetEvents(ctx, events)
	}
	return events, nil
}

func (s *EventService) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	return s.repo.GetByID(ctx, id)
}

var _ EventUseCase = (*EventService)(nil)
