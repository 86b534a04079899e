package ratelimiter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiterInterface は、クライアントごとに操作の頻度を制限するインターフェースです。
type RateLimiterInterface interface {
	Allow(key string) bool
}

// RateLimiter は、クライアント（IPアドレスなど）ごとのトークンバケットで頻度を制限します。
// 一定時間アクセスのないクライアントのバケットは自動的に破棄されます。
type RateLimiter struct {
	limit   rate.Limit // 1秒あたりの補充数
	burst   int        // バケットの容量
	mu      sync.Mutex
	clients *gocache.Cache
}

// NewRateLimiter は新しいRateLimiterのインスタンスを生成します。
// perSecond が0以下の場合は制限しません。idle はバケットを保持する期間です。
func NewRateLimiter(perSecond float64, burst int, idle time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limit:   limit,
		burst:   burst,
		clients: gocache.New(idle, idle),
	}
}

// Allow はkeyのクライアントが今1回操作してよいかを返します。
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// limiter returns the bucket for key, creating it on first use.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.clients.Get(key); ok {
		// アクセスのたびに保持期間を延長
		rl.clients.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients.SetDefault(key, l)
	return l
}

// Middleware はクライアントIPごとに頻度を制限するginミドルウェアを返します。
// 上限に達したリクエストは onLimit に委ねられ、後続のハンドラーは実行されません。
func Middleware(rl RateLimiterInterface, onLimit gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		slog.Warn("[RATE LIMIT] request rejected", "client_ip", c.ClientIP(), "path", c.Request.URL.Path)
		onLimit(c)
		c.Abort()
	}
}
