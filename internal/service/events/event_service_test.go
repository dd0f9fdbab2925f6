package events

import (
	"context"
	"errors"
	"testing"

	"github.com/eventix/eventix/internal/domain"
	"github.com/eventix/eventix/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) List(ctx context.Context) ([]domain.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventRepository) ReserveCapacity(ctx context.Context, eventID int64, quantity int) error {
	args := m.Called(ctx, eventID, quantity)
	return args.Error(0)
}

func (m *MockEventRepository) ReleaseCapacity(ctx context.Context, eventID int64, quantity int) error {
	args := m.Called(ctx, eventID, quantity)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetEvents(ctx context.Context) ([]domain.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockCache) SetEvents(ctx context.Context, events []domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func TestEventService_List_CacheHit(t *testing.T) {
	repo := &MockEventRepository{}
	cache := &MockCache{}
	service := NewEventService(repo, cache)

	ctx := context.Background()
	cached := []domain.Event{{ID: 1, Title: "Concert"}}
	cache.On("GetEvents", ctx).Return(cached, nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, cached, result)
	repo.AssertNotCalled(t, "List")
}

func TestEventService_List_CacheMissFillsCache(t *testing.T) {
	repo := &MockEventRepository{}
	cache := &MockCache{}
	service := NewEventService(repo, cache)

	ctx := context.Background()
	fromDB := []domain.Event{{ID: 1, Title: "Concert"}, {ID: 2, Title: "Festival"}}
	cache.On("GetEvents", ctx).Return(nil, nil).Once()
	repo.On("List", ctx).Return(fromDB, nil).Once()
	cache.On("SetEvents", ctx, fromDB).Return(nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, fromDB, result)
	cache.AssertExpectations(t)
	repo.AssertExpectations(t)
}

// A broken cache must not break the listing.
func TestEventService_List_CacheErrorFallsThrough(t *testing.T) {
	repo := &MockEventRepository{}
	cache := &MockCache{}
	service := NewEventService(repo, cache)

	ctx := context.Background()
	fromDB := []domain.Event{{ID: 1}}
	cache.On("GetEvents", ctx).Return(nil, errors.New("redis down")).Once()
	repo.On("List", ctx).Return(fromDB, nil).Once()
	cache.On("SetEvents", ctx, fromDB).Return(errors.New("redis down")).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, fromDB, result)
}

func TestEventService_List_NoCache(t *testing.T) {
	repo := &MockEventRepository{}
	service := NewEventService(repo, nil)

	ctx := context.Background()
	fromDB := []domain.Event{{ID: 1}}
	repo.On("List", ctx).Return(fromDB, nil).Once()

	result, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, fromDB, result)
}

func TestEventService_GetByID(t *testing.T) {
	repo := &MockEventRepository{}
	service := NewEventService(repo, nil)

	ctx := context.Background()
	event := &domain.Event{ID: 7, Title: "Concert"}
	repo.On("GetByID", ctx, int64(7)).Return(event, nil).Once()

	result, err := service.GetByID(ctx, 7)

	assert.NoError(t, err)
	assert.Equal(t, event, result)
}

func TestEventService_GetByID_NotFound(t *testing.T) {
	repo := &MockEventRepository{}
	service := NewEventService(repo, nil)

	ctx := context.Background()
	repo.On("GetByID", ctx, int64(99)).Return(nil, repository.ErrEventNotFound).Once()

	result, err := service.GetByID(ctx, 99)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}
