package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Действия сигнала
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// DefaultLeverage - плечо, если в сигнале оно не указано
const DefaultLeverage = 10

// TradingSignal - сигнал из вебхука после проверки полей
type TradingSignal struct {
	RequestID  string           `json:"request_id"`
	Action     string           `json:"action"` // buy / sell
	Symbol     string           `json:"symbol"`
	Price      decimal.Decimal  `json:"price"`
	Size       decimal.Decimal  `json:"size"`
	Leverage   int              `json:"leverage"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
}

// IsValidAction проверяет действие сигнала
func IsValidAction(action string) bool {
	return action == ActionBuy || action == ActionSell
}

// PositiveOrNil: нулевые и отрицательные SL/TP считаются отсутствующими
func PositiveOrNil(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || !d.IsPositive() {
		return nil
	}
	v := *d
	return &v
}
