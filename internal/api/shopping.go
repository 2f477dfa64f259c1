package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kondateapp/backend/internal/middleware"
	"github.com/kondateapp/backend/internal/service"
)

// ShoppingRegenerator is the shopping-list surface the handlers need.
type ShoppingRegenerator interface {
	RequestRegenerate(ctx context.Context, planID uuid.UUID) (uuid.UUID, error)
	Regenerate(ctx context.Context, requestID, userID, planID uuid.UUID) error
	GetRequest(ctx context.Context, id uuid.UUID) (*service.ShoppingRequestState, error)
}

// ShoppingHandler exposes shopping-list regeneration over HTTP. The
// rebuild runs in the background; clients poll the request state.
type ShoppingHandler struct {
	shopping    ShoppingRegenerator
	rateLimiter *middleware.RateLimiter
	logger      *zap.Logger
}

// NewShoppingHandler creates a new ShoppingHandler instance.
func NewShoppingHandler(shopping ShoppingRegenerator, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *ShoppingHandler {
	return &ShoppingHandler{shopping: shopping, rateLimiter: rateLimiter, logger: logger}
}

// RegisterRoutes registers the shopping routes.
func (h *ShoppingHandler) RegisterRoutes(router *gin.RouterGroup) {
	shopping := router.Group("/shopping")
	shopping.Use(middleware.RequireUser())
	{
		regenerate := shopping.Group("")
		if h.rateLimiter != nil {
			regenerate.Use(h.rateLimiter.RateLimitMiddleware())
		}
		regenerate.POST("/lists/:planID/regenerate", h.Regenerate)

		shopping.GET("/requests/:id", h.GetRequest)
	}
}

// Regenerate queues a rebuild of the plan's shopping list from its
// accepted meals.
func (h *ShoppingHandler) Regenerate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	planID, err := uuid.Parse(c.Param("planID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	requestID, err := h.shopping.RequestRegenerate(c.Request.Context(), planID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue regeneration"})
		return
	}

	go func() {
		if err := h.shopping.Regenerate(context.Background(), requestID, userID, planID); err != nil && h.logger != nil {
			h.logger.Error("shopping list regeneration failed",
				zap.String("request_id", requestID.String()),
				zap.String("plan_id", planID.String()),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"request_id": requestID,
		"status":     "queued",
	})
}

// GetRequest returns the pollable state of a regeneration request.
func (h *ShoppingHandler) GetRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	state, err := h.shopping.GetRequest(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrShoppingRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load request"})
		return
	}
	c.JSON(http.StatusOK, state)
}
