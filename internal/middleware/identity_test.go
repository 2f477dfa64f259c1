package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newIdentityRouter() (*gin.Engine, *uuid.UUID) {
	gin.SetMode(gin.TestMode)
	seen := new(uuid.UUID)

	router := gin.New()
	router.GET("/whoami", RequireUser(), func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		*seen = id
		c.Status(http.StatusOK)
	})
	return router, seen
}

func TestRequireUser(t *testing.T) {
	t.Run("valid header passes through", func(t *testing.T) {
		router, seen := newIdentityRouter()
		userID := uuid.New()

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(UserIDHeader, userID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID, *seen)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		router, _ := newIdentityRouter()

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing user identity")
	})

	t.Run("malformed id rejected", func(t *testing.T) {
		router, _ := newIdentityRouter()

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(UserIDHeader, "not-a-uuid")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid user identity")
	})
}

func TestUserIDWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := UserID(c)
	assert.False(t, ok)
}
