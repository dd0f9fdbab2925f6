package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eventix/eventix/internal/domain"
	"github.com/eventix/eventix/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventUseCase struct {
	mock.Mock
}

func (m *MockEventUseCase) List(ctx context.Context) ([]domain.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventUseCase) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestEventHandler_list(t *testing.T) {
	mockService := &MockEventUseCase{}
	handler := NewEventHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/events", nil)

	events := []domain.Event{
		{ID: 1, Title: "Concert", PriceCents: 5000, TotalCapacity: 100, AvailableCapacity: 50},
	}
	mockService.On("List", c.Request.Context()).Return(events, nil)

	handler.list(c)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)

	mockService.AssertExpectations(t)
}

func TestEventHandler_get(t *testing.T) {
	mockService := &MockEventUseCase{}
	handler := NewEventHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Request = httptest.NewRequest("GET", "/api/events/1", nil)

	event := &domain.Event{ID: 1, Title: "Concert", PriceCents: 5000}
	mockService.On("GetByID", c.Request.Context(), int64(1)).Return(event, nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestEventHandler_get_InvalidID(t *testing.T) {
	mockService := &MockEventUseCase{}
	handler := NewEventHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	c.Request = httptest.NewRequest("GET", "/api/events/abc", nil)

	handler.get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "GetByID")
}

func TestEventHandler_get_NotFound(t *testing.T) {
	mockService := &MockEventUseCase{}
	handler := NewEventHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "99"}}
	c.Request = httptest.NewRequest("GET", "/api/events/99", nil)

	mockService.On("GetByID", c.Request.Context(), int64(99)).Return(nil, repository.ErrEventNotFound)

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
}
