package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - Token Bucket для запросов к REST API биржи
//
// Ведро наполняется со скоростью rate токенов/сек до burst.
// Каждый запрос забирает 1 токен; если токенов нет, Wait ждет.
//
//	limiter := NewRateLimiter(10, 20)
//	err := limiter.Wait(ctx)
type RateLimiter struct {
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter создает limiter. rate <= 0 -> 10 req/sec, burst <= 0 -> 2x rate
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill вызывается под lock'ом
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow забирает токен без блокировки
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// ============================================================
// Категории эндпоинтов OKX
// ============================================================

// Категории запросов. Лимиты OKX задаются на окно 2 секунды.
const (
	CategoryTrade   = "trade"   // order, order-algo: 60 / 2s
	CategoryAccount = "account" // balance, positions: 10 / 2s; set-leverage: 20 / 2s
	CategoryMarket  = "market"  // ticker, public/time: 20 / 2s
)

// MultiLimiter держит отдельный bucket на категорию запросов
type MultiLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{limiters: make(map[string]*RateLimiter)}
}

// NewOKXLimiter - MultiLimiter с лимитами OKX v5 для одного аккаунта
func NewOKXLimiter() *MultiLimiter {
	ml := NewMultiLimiter()
	ml.Add(CategoryTrade, 30, 60)
	ml.Add(CategoryAccount, 5, 10)
	ml.Add(CategoryMarket, 10, 20)
	return ml
}

func (ml *MultiLimiter) Add(category string, rate, burst float64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limiters[category] = NewRateLimiter(rate, burst)
}

// Wait ожидает токен категории; неизвестная категория не ограничивается
func (ml *MultiLimiter) Wait(ctx context.Context, category string) error {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

func (ml *MultiLimiter) Get(category string) *RateLimiter {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.limiters[category]
}
