package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sessions", RateLimit(NewRateLimiter(0.001, 3)), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	post := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, post("10.0.0.1:1234"))
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1:1234"))
	}

	// Other clients keep their own budget
	assert.Equal(t, http.StatusCreated, post("10.0.0.2:1234"))
}
