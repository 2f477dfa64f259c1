package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kondateapp/backend/internal/middleware"
)

// Handlers groups everything SetupAPI wires into the router.
type Handlers struct {
	Planner  MenuPlanner
	Shopping ShoppingRegenerator
	Redis    *redis.Client
	Logger   *zap.Logger
}

// HealthCheck returns the health status of the API, pinging Redis when
// a client is wired in.
func HealthCheck(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":  status,
			"message": "Kondate API is running",
			"version": "v1.0.0",
		})
	}
}

// SetupAPI registers all API routes.
func SetupAPI(router *gin.Engine, h Handlers) {
	health := HealthCheck(h.Redis)
	router.GET("/health", health)
	router.GET("/api/health", health)

	var jobLimiter, shoppingLimiter *middleware.RateLimiter
	if h.Redis != nil {
		jobLimiter = middleware.NewJobSubmissionRateLimiter(h.Redis)
		shoppingLimiter = middleware.NewShoppingRegenerateRateLimiter(h.Redis)
	}

	v1 := router.Group("/api/v1")
	{
		NewMenuJobHandler(h.Planner, jobLimiter, h.Logger).RegisterRoutes(v1)
		NewShoppingHandler(h.Shopping, shoppingLimiter, h.Logger).RegisterRoutes(v1)

		if jobLimiter != nil {
			RegisterRateLimitRoutes(v1, jobLimiter, shoppingLimiter)
		}
	}
}

// RegisterRateLimitRoutes registers endpoints for checking rate limit
// status, so clients can surface remaining quota before submitting.
func RegisterRateLimitRoutes(router *gin.RouterGroup, jobLimiter, shoppingLimiter *middleware.RateLimiter) {
	rateLimits := router.Group("/rate-limits")
	rateLimits.Use(middleware.RequireUser())
	{
		rateLimits.GET("/menu-jobs", rateLimitStatus(jobLimiter))
		rateLimits.GET("/shopping-regenerate", rateLimitStatus(shoppingLimiter))
	}
}

func rateLimitStatus(limiter *middleware.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		remaining, resetTime, err := limiter.GetRemainingRequests(c.Request.Context(), userID.String())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check rate limit"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"limit":      limiter.Limit(),
			"remaining":  remaining,
			"reset_time": resetTime.Unix(),
			"window":     limiter.Window().String(),
		})
	}
}
