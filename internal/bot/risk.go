package bot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signaltrader/pkg/utils"
)

// Причины отказа риск-лимитов
const (
	ReasonSymbolNotAllowed     = "symbol_not_allowed"
	ReasonInvalidSize          = "invalid_size"
	ReasonSizeExceedsLimit     = "size_exceeds_limit"
	ReasonInvalidLeverage      = "invalid_leverage"
	ReasonLeverageExceedsLimit = "leverage_exceeds_limit"
	ReasonDailyLimitReached    = "daily_limit_reached"
	ReasonPositionValueLimit   = "position_value_exceeds_limit"
)

// RiskError - отказ риск-лимитов
type RiskError struct {
	Reason  string
	Message string
}

func (e *RiskError) Error() string {
	return e.Reason + ": " + e.Message
}

// IsRiskError проверяет, что err - отказ риск-лимитов, и возвращает причину
func IsRiskError(err error) (string, bool) {
	var rErr *RiskError
	if errors.As(err, &rErr) {
		return rErr.Reason, true
	}
	return "", false
}

// RiskLimits - статические лимиты
type RiskLimits struct {
	MaxPositionSize       decimal.Decimal
	MaxLeverage           int
	MaxDailyTrades        int
	MaxTotalPositionValue decimal.Decimal // 0 = не проверяется
	SupportedSymbols      []string
}

// RiskLimiter - статические лимиты плюс суточный счетчик сделок.
//
// Счетчик растет ровно на единицу за каждый подтвержденный входной ордер
// и обнуляется при первом обращении в новые календарные сутки.
// Незавершенные саги держат слот через Reservation, поэтому две саги
// на границе лимита не пройдут обе.
type RiskLimiter struct {
	limits  RiskLimits
	allowed map[string]struct{}
	now     func() time.Time
	loc     *time.Location

	mu            sync.Mutex
	dailyCount    int
	pending       int
	lastTradeDate string
}

// RiskSnapshot - состояние для /status
type RiskSnapshot struct {
	Date           string `json:"date"`
	DailyTrades    int    `json:"daily_trades"`
	Pending        int    `json:"pending"`
	MaxDailyTrades int    `json:"max_daily_trades"`
}

// RiskOption настраивает RiskLimiter
type RiskOption func(*RiskLimiter)

// WithClock подменяет часы (для тестов)
func WithClock(now func() time.Time) RiskOption {
	return func(r *RiskLimiter) { r.now = now }
}

// WithLocation задает зону, в которой считаются сутки. По умолчанию локальная.
func WithLocation(loc *time.Location) RiskOption {
	return func(r *RiskLimiter) { r.loc = loc }
}

// NewRiskLimiter создает лимитер; некорректные лимиты - ошибка
func NewRiskLimiter(limits RiskLimits, opts ...RiskOption) (*RiskLimiter, error) {
	if !limits.MaxPositionSize.IsPositive() {
		return nil, fmt.Errorf("max position size must be positive, got %s", limits.MaxPositionSize)
	}
	if limits.MaxLeverage <= 0 {
		return nil, fmt.Errorf("max leverage must be positive, got %d", limits.MaxLeverage)
	}
	if limits.MaxDailyTrades <= 0 {
		return nil, fmt.Errorf("max daily trades must be positive, got %d", limits.MaxDailyTrades)
	}
	if len(limits.SupportedSymbols) == 0 {
		return nil, errors.New("supported symbols list is empty")
	}

	r := &RiskLimiter{
		limits:  limits,
		allowed: make(map[string]struct{}, len(limits.SupportedSymbols)),
		now:     time.Now,
	}
	for _, s := range limits.SupportedSymbols {
		r.allowed[s] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastTradeDate = utils.DateKey(r.now(), r.loc)
	return r, nil
}

// CheckLimits проверяет заявку. Порядок проверок фиксирован, побеждает первая.
func (r *RiskLimiter) CheckLimits(instrument string, size decimal.Decimal, leverage int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkLocked(instrument, size, leverage)
}

func (r *RiskLimiter) checkLocked(instrument string, size decimal.Decimal, leverage int) error {
	if _, ok := r.allowed[instrument]; !ok {
		return &RiskError{ReasonSymbolNotAllowed, fmt.Sprintf("symbol %s is not in the supported list", instrument)}
	}

	if !size.IsPositive() {
		return &RiskError{ReasonInvalidSize, fmt.Sprintf("size must be positive, got %s", size)}
	}
	if size.GreaterThan(r.limits.MaxPositionSize) {
		return &RiskError{ReasonSizeExceedsLimit, fmt.Sprintf("size %s exceeds max position size %s", size, r.limits.MaxPositionSize)}
	}

	if leverage <= 0 {
		return &RiskError{ReasonInvalidLeverage, fmt.Sprintf("leverage must be positive, got %d", leverage)}
	}
	if leverage > r.limits.MaxLeverage {
		return &RiskError{ReasonLeverageExceedsLimit, fmt.Sprintf("leverage %d exceeds max leverage %d", leverage, r.limits.MaxLeverage)}
	}

	r.rolloverLocked()
	if r.dailyCount+r.pending >= r.limits.MaxDailyTrades {
		return &RiskError{ReasonDailyLimitReached, fmt.Sprintf("daily trade limit %d reached", r.limits.MaxDailyTrades)}
	}
	return nil
}

// CheckPositionValue проверяет номинал size*price против MaxTotalPositionValue
func (r *RiskLimiter) CheckPositionValue(size, price decimal.Decimal) error {
	if !r.limits.MaxTotalPositionValue.IsPositive() || !price.IsPositive() {
		return nil
	}
	notional := size.Mul(price)
	if notional.GreaterThan(r.limits.MaxTotalPositionValue) {
		return &RiskError{ReasonPositionValueLimit, fmt.Sprintf("position value %s exceeds limit %s",
			notional.StringFixed(2), r.limits.MaxTotalPositionValue)}
	}
	return nil
}

// RecordTrade учитывает подтвержденный входной ордер
func (r *RiskLimiter) RecordTrade() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked()
	r.dailyCount++
}

// Reserve проверяет лимиты и занимает слот под сделку в одной критической секции
func (r *RiskLimiter) Reserve(instrument string, size decimal.Decimal, leverage int) (*Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(instrument, size, leverage); err != nil {
		return nil, err
	}
	r.pending++
	return &Reservation{limiter: r}, nil
}

// Snapshot возвращает текущее состояние счетчика
func (r *RiskLimiter) Snapshot() RiskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked()
	return RiskSnapshot{
		Date:           r.lastTradeDate,
		DailyTrades:    r.dailyCount,
		Pending:        r.pending,
		MaxDailyTrades: r.limits.MaxDailyTrades,
	}
}

// Limits возвращает статические лимиты
func (r *RiskLimiter) Limits() RiskLimits {
	return r.limits
}

// rolloverLocked обнуляет счетчик при смене даты. Вызывать под mu.
func (r *RiskLimiter) rolloverLocked() {
	today := utils.DateKey(r.now(), r.loc)
	if today != r.lastTradeDate {
		r.dailyCount = 0
		r.lastTradeDate = today
	}
}

// Reservation - слот под сделку. Commit или Release вызываются один раз,
// повторные вызовы ничего не делают.
type Reservation struct {
	limiter *RiskLimiter
	once    sync.Once
}

// Commit переводит слот в подтвержденную сделку
func (res *Reservation) Commit() {
	res.once.Do(func() {
		r := res.limiter
		r.mu.Lock()
		defer r.mu.Unlock()
		r.releaseLocked()
		r.rolloverLocked()
		r.dailyCount++
	})
}

// Release освобождает слот без учета сделки
func (res *Reservation) Release() {
	res.once.Do(func() {
		r := res.limiter
		r.mu.Lock()
		defer r.mu.Unlock()
		r.releaseLocked()
	})
}

func (r *RiskLimiter) releaseLocked() {
	if r.pending > 0 {
		r.pending--
	}
}
