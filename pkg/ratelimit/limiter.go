package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - Token Bucket для контроля частоты запросов к REST API биржи
//
// Binance считает лимиты в «весе» запроса: bookTicker = 2, exchangeInfo = 20,
// ордер = 1 и т.д. Поэтому кроме Wait есть WaitN, списывающий n токенов
// за одну операцию.
//
//	limiter := NewRateLimiter(20, 40) // 20 веса/сек, burst 40
//	err := limiter.WaitN(ctx, 20)     // запрос весом 20
type RateLimiter struct {
	rate       float64 // токенов в секунду
	burst      float64 // ёмкость ведра
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter создаёт limiter; rate <= 0 -> 10/сек, burst <= 0 -> 2*rate
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
	}
}

// refill вызывается под lock'ом
func (rl *RateLimiter) refill() {
	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now
}

// Wait блокирует до получения одного токена или отмены контекста
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN блокирует до получения n токенов разом.
// n больше burst урезается до burst, иначе запрос никогда бы не прошёл.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	need := float64(n)

	for {
		rl.mu.Lock()
		if need > rl.burst {
			need = rl.burst
		}
		rl.refill()

		if rl.tokens >= need {
			rl.tokens -= need
			rl.mu.Unlock()
			return nil
		}

		wait := time.Duration((need - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// ============================================================
// MultiLimiter - раздельные лимиты по категориям запросов
// ============================================================

// Категории лимитов Binance spot
const (
	CategoryWeight = "weight" // REQUEST_WEIGHT
	CategoryOrders = "orders" // ORDERS (размещение ордеров)
)

// MultiLimiter хранит независимые limiter'ы по категориям
type MultiLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewMultiLimiter создаёт пустой MultiLimiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{limiters: make(map[string]*RateLimiter)}
}

// Add регистрирует limiter для категории
func (ml *MultiLimiter) Add(category string, rate, burst float64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limiters[category] = NewRateLimiter(rate, burst)
}

// WaitN ожидает n токенов категории; категория без лимита не ждёт
func (ml *MultiLimiter) WaitN(ctx context.Context, category string, n int) error {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return nil
	}
	return limiter.WaitN(ctx, n)
}
