package api

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondateapp/backend/internal/service"
)

type fakeShopping struct {
	mu       sync.Mutex
	states   map[uuid.UUID]*service.ShoppingRequestState
	ranCh    chan uuid.UUID
	queueErr error
}

func newFakeShopping() *fakeShopping {
	return &fakeShopping{
		states: make(map[uuid.UUID]*service.ShoppingRequestState),
		ranCh:  make(chan uuid.UUID, 8),
	}
}

func (s *fakeShopping) RequestRegenerate(_ context.Context, planID uuid.UUID) (uuid.UUID, error) {
	if s.queueErr != nil {
		return uuid.Nil, s.queueErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.states[id] = &service.ShoppingRequestState{ID: id, PlanID: planID, Status: "queued"}
	return id, nil
}

func (s *fakeShopping) Regenerate(_ context.Context, requestID, _, _ uuid.UUID) error {
	s.mu.Lock()
	if state, ok := s.states[requestID]; ok {
		state.Status = "completed"
		state.ItemCount = 4
	}
	s.mu.Unlock()
	s.ranCh <- requestID
	return nil
}

func (s *fakeShopping) GetRequest(_ context.Context, id uuid.UUID) (*service.ShoppingRequestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return nil, service.ErrShoppingRequestNotFound
	}
	return state, nil
}

func newShoppingRouter(shopping ShoppingRegenerator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/api/v1")
	NewShoppingHandler(shopping, nil, nil).RegisterRoutes(v1)
	return router
}

func TestRegenerateEndpoint(t *testing.T) {
	t.Run("queued and rebuild launched", func(t *testing.T) {
		shopping := newFakeShopping()
		router := newShoppingRouter(shopping)
		planID := uuid.New()

		w := doJSON(router, http.MethodPost, "/api/v1/shopping/lists/"+planID.String()+"/regenerate", uuid.New().String(), nil)
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), "queued")

		select {
		case <-shopping.ranCh:
		case <-time.After(time.Second):
			t.Fatal("rebuild was never launched")
		}
	})

	t.Run("missing identity rejected", func(t *testing.T) {
		router := newShoppingRouter(newFakeShopping())
		w := doJSON(router, http.MethodPost, "/api/v1/shopping/lists/"+uuid.New().String()+"/regenerate", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed plan id rejected", func(t *testing.T) {
		router := newShoppingRouter(newFakeShopping())
		w := doJSON(router, http.MethodPost, "/api/v1/shopping/lists/not-a-uuid/regenerate", uuid.New().String(), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("queue failure surfaces", func(t *testing.T) {
		shopping := newFakeShopping()
		shopping.queueErr = assert.AnError
		router := newShoppingRouter(shopping)
		w := doJSON(router, http.MethodPost, "/api/v1/shopping/lists/"+uuid.New().String()+"/regenerate", uuid.New().String(), nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestGetShoppingRequestEndpoint(t *testing.T) {
	shopping := newFakeShopping()
	router := newShoppingRouter(shopping)
	userID := uuid.New()

	id, err := shopping.RequestRegenerate(context.Background(), uuid.New())
	require.NoError(t, err)

	t.Run("existing request", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/v1/shopping/requests/"+id.String(), userID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "queued")
	})

	t.Run("unknown request", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/v1/shopping/requests/"+uuid.New().String(), userID.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
