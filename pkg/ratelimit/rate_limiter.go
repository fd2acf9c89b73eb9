package ratelimit

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

type LimitType string

const (
	LimitTypeDefault  LimitType = "default"
	LimitTypePublic   LimitType = "public"
	LimitTypeHold     LimitType = "hold"
	LimitTypePurchase LimitType = "purchase"
	LimitTypeCheckIn  LimitType = "check_in"
)

// Result represents rate limit check result
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// sliding window over a sorted set scored by request time in milliseconds
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)
if count >= limit then
	redis.call('PEXPIRE', key, window_ms)
	return {0, 0}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window_ms)
return {1, limit - count - 1}
`)

type RateLimiter struct {
	client *redis.Client
	config config.RateLimitConfig
	clock  clock.Clock
	seq    atomic.Uint64
}

func NewRateLimiter(client *redis.Client, cfg config.RateLimitConfig, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: cfg,
		clock:  clk,
	}
}

// IsAllowed counts one request from clientIP against the limitType budget
func (r *RateLimiter) IsAllowed(ctx context.Context, clientIP string, limitType LimitType) (*Result, error) {
	now := r.clock.Now()
	limit := r.Limit(limitType)
	reset := now.Add(r.config.WindowDuration).Unix()

	if !r.config.Enabled || r.isWhitelisted(clientIP) {
		return &Result{Allowed: true, Limit: limit, Remaining: limit, ResetTime: reset}, nil
	}

	key := constants.RateLimitKey(clientIP, string(limitType))
	windowStart := now.Add(-r.config.WindowDuration)
	member := fmt.Sprintf("%d-%d", now.UnixNano(), r.seq.Add(1))

	values, err := slidingWindow.Run(ctx, r.client, []string{key},
		windowStart.UnixMilli(),
		now.UnixMilli(),
		limit,
		r.config.WindowDuration.Milliseconds(),
		member).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected rate limit reply: %v", values)
	}

	return &Result{
		Allowed:   values[0] == 1,
		Limit:     limit,
		Remaining: int(values[1]),
		ResetTime: reset,
	}, nil
}

func (r *RateLimiter) Limit(limitType LimitType) int {
	switch limitType {
	case LimitTypePublic:
		return r.config.PublicRequests
	case LimitTypeHold:
		return r.config.HoldRequests
	case LimitTypePurchase:
		return r.config.PurchaseRequests
	case LimitTypeCheckIn:
		return r.config.CheckInRequests
	default:
		return r.config.DefaultRequests
	}
}

func (r *RateLimiter) isWhitelisted(ip string) bool {
	return slices.Contains(r.config.WhitelistedIPs, ip)
}
