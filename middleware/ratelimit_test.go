package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerCaller(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, discardLogger)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote string, userID interface{}) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if userID != nil {
			req = req.WithContext(WithClaims(req.Context(), jwt.MapClaims{"user_id": userID}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", nil))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:2000", nil))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:3000", nil))

	// другой IP и аутентифицированный пользователь имеют свои лимиты
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000", nil))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:4000", float64(5)))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:4000", float64(5)))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.9:4000", float64(5)))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, discardLogger)
	rl.limiterFor("ip:1")
	rl.limiterFor("ip:2")

	assert.Zero(t, rl.Cleanup(time.Now()))
	assert.Equal(t, 2, rl.Cleanup(time.Now().Add(time.Hour)))
	assert.Empty(t, rl.limiters)
}
