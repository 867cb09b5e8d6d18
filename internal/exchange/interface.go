package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Client - REST доступ к одному деривативному аккаунту биржи.
// Все методы возвращают *ExchangeError для бизнес-ошибок биржи.
type Client interface {
	// Name возвращает имя биржи
	Name() string

	// GetBalance получает баланс торгового аккаунта
	GetBalance(ctx context.Context) (*Balance, error)

	// GetPositions получает открытые позиции; пустой instID = все инструменты
	GetPositions(ctx context.Context, instID string) ([]Position, error)

	// GetTicker получает текущую цену инструмента
	GetTicker(ctx context.Context, instID string) (*Ticker, error)

	// SetLeverage выставляет плечо для инструмента в заданном режиме маржи
	SetLeverage(ctx context.Context, instID string, leverage int, marginMode string) error

	// PlaceOrder размещает рыночный или лимитный ордер
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// PlaceAlgoOrder размещает условный (trigger) ордер stop-loss / take-profit
	PlaceAlgoOrder(ctx context.Context, req AlgoOrderRequest) (*Order, error)

	// ServerTime - публичный запрос, используется как проверка связи
	ServerTime(ctx context.Context) (time.Time, error)
}

// Ticker содержит информацию о текущей цене
type Ticker struct {
	InstID    string          `json:"inst_id"`
	LastPrice decimal.Decimal `json:"last_price"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Balance - сводный баланс аккаунта
type Balance struct {
	TotalEquity decimal.Decimal `json:"total_equity"` // в USD
	Details     []AssetBalance  `json:"details"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AssetBalance - баланс по валюте
type AssetBalance struct {
	Currency  string          `json:"currency"`
	Equity    decimal.Decimal `json:"equity"`
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
}

// Position представляет открытую позицию
type Position struct {
	InstID        string          `json:"inst_id"`
	Side          string          `json:"side"`     // "long" или "short"
	PosSide       string          `json:"pos_side"` // "net", "long", "short" как у биржи
	Size          decimal.Decimal `json:"size"`     // всегда >= 0, направление в Side
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	Leverage      int             `json:"leverage"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	MarginMode    string          `json:"margin_mode"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CloseSide возвращает сторону ордера, закрывающего позицию
func (p Position) CloseSide() string {
	if p.Side == SideShort {
		return SideBuy
	}
	return SideSell
}

// OrderRequest - параметры обычного ордера
type OrderRequest struct {
	InstID        string
	Side          string // buy / sell
	PosSide       string // пусто для net режима
	OrderType     string // market / limit
	Size          decimal.Decimal
	Price         decimal.Decimal // только для limit
	ReduceOnly    bool
	MarginMode    string
	ClientOrderID string
}

// AlgoOrderRequest - параметры условного ордера
type AlgoOrderRequest struct {
	InstID        string
	Side          string
	PosSide       string
	Kind          string // AlgoKindStopLoss / AlgoKindTakeProfit
	Size          decimal.Decimal
	TriggerPrice  decimal.Decimal
	OrderPrice    decimal.Decimal // ноль = исполнение по рынку
	ReduceOnly    bool
	MarginMode    string
	ClientOrderID string
}

// Order - подтверждение размещения ордера биржей
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	InstID        string          `json:"inst_id"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Size          decimal.Decimal `json:"size"`
	Simulated     bool            `json:"simulated"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange  string
	Code      string
	Message   string
	Temporary bool // сетевой сбой, 5xx или "system busy": запрос можно повторить
	Original  error
}

func (e *ExchangeError) Error() string {
	if e.Code == "" {
		return e.Exchange + ": " + e.Message
	}
	return fmt.Sprintf("%s: [%s] %s", e.Exchange, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Retryable используется pkg/retry
func (e *ExchangeError) Retryable() bool {
	return e.Temporary
}

// Side constants for orders (используются при размещении ордеров)
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)

// Side constants for positions (используются для описания направления позиции)
const (
	SideLong  = "long"
	SideShort = "short"
)

// Типы ордеров и режимы маржи
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"

	MarginModeCross    = "cross"
	MarginModeIsolated = "isolated"
)

// Виды условных ордеров
const (
	AlgoKindStopLoss   = "stop_loss"
	AlgoKindTakeProfit = "take_profit"
)

// OppositeSide возвращает противоположную сторону ордера
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}
