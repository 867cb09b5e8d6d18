package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest - нормализованная заявка, построенная из TradingSignal.
// После создания не изменяется.
type OrderRequest struct {
	RequestID        string           `json:"request_id"`
	Instrument       string           `json:"instrument"`
	RawSymbol        string           `json:"raw_symbol"`
	SymbolRecognized bool             `json:"symbol_recognized"`
	Side             string           `json:"side"` // buy / sell
	Size             decimal.Decimal  `json:"size"`
	Leverage         int              `json:"leverage"`
	ReferencePrice   decimal.Decimal  `json:"reference_price"` // цена из сигнала, 0 = не задана
	StopLoss         *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit       *decimal.Decimal `json:"take_profit,omitempty"`
}

// Действия саги
const (
	SagaActionOpenLong  = "open_long"
	SagaActionOpenShort = "open_short"
)

// ActionForSide: buy открывает long, sell открывает short
func ActionForSide(side string) string {
	if side == ActionSell {
		return SagaActionOpenShort
	}
	return SagaActionOpenLong
}

// Виды дочерних ордеров
const (
	SubOrderStopLoss   = "stop_loss"
	SubOrderTakeProfit = "take_profit"
)

// SubOrderResult - итог размещения SL или TP
type SubOrderResult struct {
	Kind      string `json:"kind"`
	OK        bool   `json:"ok"`
	OrderID   string `json:"order_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StepOutcome - итог шага саги, включая нефатальные ошибки
type StepOutcome struct {
	Step   string `json:"step"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// SagaResult - итог обработки одного сигнала. Не сохраняется, только
// логируется, считается в метриках и рассылается подписчикам.
type SagaResult struct {
	RequestID  string           `json:"request_id"`
	Success    bool             `json:"success"`
	Action     string           `json:"action"`
	Instrument string           `json:"instrument"`
	Side       string           `json:"side"`
	Size       decimal.Decimal  `json:"size"`
	Leverage   int              `json:"leverage"`
	OrderID    string           `json:"order_id,omitempty"`
	Simulated  bool             `json:"simulated"`
	SubOrders  []SubOrderResult `json:"sub_orders,omitempty"`
	Steps      []StepOutcome    `json:"steps"`
	Error      string           `json:"error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration"`
}

// AddStep добавляет итог шага
func (r *SagaResult) AddStep(step string, ok bool, detail string) {
	r.Steps = append(r.Steps, StepOutcome{Step: step, OK: ok, Detail: detail})
}

// FailedSubOrders - число неудачных SL/TP
func (r *SagaResult) FailedSubOrders() int {
	n := 0
	for _, s := range r.SubOrders {
		if !s.OK {
			n++
		}
	}
	return n
}
