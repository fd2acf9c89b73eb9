package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/constants"
	"ticketflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:          true,
		WindowDuration:   time.Minute,
		DefaultRequests:  60,
		PublicRequests:   120,
		HoldRequests:     2,
		PurchaseRequests: 10,
		CheckInRequests:  600,
		WhitelistedIPs:   []string{"10.0.0.1"},
	}
}

func expectWindow(mock redismock.ClientMock, ip string, limitType LimitType, limit int, seq int) *redismock.ExpectedCmd {
	return mock.ExpectEvalSha(slidingWindow.Hash(),
		[]string{constants.RateLimitKey(ip, string(limitType))},
		now.Add(-time.Minute).UnixMilli(),
		now.UnixMilli(),
		limit,
		time.Minute.Milliseconds(),
		fmt.Sprintf("%d-%d", now.UnixNano(), seq))
}

func TestIsAllowed_WithinBudget(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, testConfig(), clock.NewFake(now))

	expectWindow(mock, "203.0.113.9", LimitTypeHold, 2, 1).SetVal([]interface{}{int64(1), int64(1)})

	result, err := limiter.IsAllowed(context.Background(), "203.0.113.9", LimitTypeHold)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Limit)
	assert.Equal(t, 1, result.Remaining)
	assert.Equal(t, now.Add(time.Minute).Unix(), result.ResetTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAllowed_OverBudget(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, testConfig(), clock.NewFake(now))

	expectWindow(mock, "203.0.113.9", LimitTypeHold, 2, 1).SetVal([]interface{}{int64(0), int64(0)})

	result, err := limiter.IsAllowed(context.Background(), "203.0.113.9", LimitTypeHold)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAllowed_WhitelistAndDisabledSkipRedis(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, testConfig(), clock.NewFake(now))

	result, err := limiter.IsAllowed(context.Background(), "10.0.0.1", LimitTypePurchase)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 10, result.Remaining)

	cfg := testConfig()
	cfg.Enabled = false
	limiter = NewRateLimiter(client, cfg, clock.NewFake(now))
	result, err = limiter.IsAllowed(context.Background(), "203.0.113.9", LimitTypeCheckIn)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 600, result.Limit)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAllowed_RedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, testConfig(), clock.NewFake(now))

	expectWindow(mock, "203.0.113.9", LimitTypeDefault, 60, 1).SetErr(errors.New("connection refused"))

	_, err := limiter.IsAllowed(context.Background(), "203.0.113.9", LimitTypeDefault)
	assert.Error(t, err)
}

func TestLimitTypeFor(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   LimitType
	}{
		{http.MethodPost, "/api/v1/reservations", LimitTypeHold},
		{http.MethodDelete, "/api/v1/reservations/:id", LimitTypeDefault},
		{http.MethodPost, "/api/v1/purchases", LimitTypePurchase},
		{http.MethodPost, "/api/v1/tickets/:id/refund", LimitTypePurchase},
		{http.MethodPost, "/api/v1/check-ins", LimitTypeCheckIn},
		{http.MethodGet, "/api/v1/events/:id/seats", LimitTypePublic},
		{http.MethodGet, "/health", LimitTypePublic},
		{http.MethodPost, "/webhooks/stripe", LimitTypeDefault},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, limitTypeFor(tc.method, tc.path), tc.path)
	}
}

func TestMiddleware_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, testConfig(), clock.NewFake(now))

	r := gin.New()
	r.Use(Middleware(limiter, logger.NewNop()))
	r.POST("/api/v1/reservations", func(c *gin.Context) { c.Status(http.StatusCreated) })

	expectWindow(mock, "203.0.113.9", LimitTypeHold, 2, 1).SetVal([]interface{}{int64(1), int64(1)})
	expectWindow(mock, "203.0.113.9", LimitTypeHold, 2, 2).SetVal([]interface{}{int64(0), int64(0)})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.1.1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send()
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	second := send()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_FailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, testConfig(), clock.NewFake(now))

	r := gin.New()
	r.Use(Middleware(limiter, logger.NewNop()))
	r.POST("/api/v1/purchases", func(c *gin.Context) { c.Status(http.StatusCreated) })

	expectWindow(mock, "192.0.2.1", LimitTypePurchase, 10, 1).SetErr(errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", nil)
	req.RemoteAddr = "192.0.2.1:5123"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestMiddleware_SkipsWebhooks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, testConfig(), clock.NewFake(now))

	r := gin.New()
	r.Use(Middleware(limiter, logger.NewNop()))
	r.POST("/webhooks/stripe", func(c *gin.Context) { c.Status(http.StatusOK) })

	expectWindow(mock, "192.0.2.1", LimitTypeDefault, 60, 1).SetVal([]interface{}{int64(0), int64(0)})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	req.RemoteAddr = "192.0.2.1:5123"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Error(t, mock.ExpectationsWereMet(), "webhook must not consume a window")
}
