package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signaltrader/pkg/utils"
)

// Коды ошибок шлюза, не пришедшие от биржи
const (
	CodeTimeout   = "TIMEOUT"
	CodeDecode    = "DECODE"
	CodeTransport = "TRANSPORT"
	CodeInternal  = "INTERNAL"
	CodeInvalid   = "INVALID_REQUEST"
)

// Префиксы id ордеров в симуляции
const (
	DemoOrderPrefix = "DEMO_"
	DemoStopPrefix  = "DEMO_STOP_"
)

// Result - результат вызова шлюза: либо значение, либо код и сообщение ошибки
type Result[T any] struct {
	OK      bool
	Value   T
	Code    string
	Message string
}

func Ok[T any](v T) Result[T] {
	return Result[T]{OK: true, Value: v}
}

func Fail[T any](code, msg string) Result[T] {
	return Result[T]{Code: code, Message: msg}
}

// Err возвращает ошибку для логов; nil при успехе
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("[%s] %s", r.Code, r.Message)
}

// OrderSpec - обычный ордер с точки зрения торгового ядра
type OrderSpec struct {
	Instrument string
	Side       string
	Size       decimal.Decimal
	Type       string          // market / limit, пусто = market
	Price      decimal.Decimal // только для limit
	ReduceOnly bool
	PosSide    string
}

// ConditionalSpec - стоп-лосс или тейк-профит
type ConditionalSpec struct {
	Instrument   string
	Side         string
	PosSide      string
	Size         decimal.Decimal
	TriggerPrice decimal.Decimal
	LimitPrice   decimal.Decimal // ноль = по рынку
	Kind         string          // AlgoKindStopLoss / AlgoKindTakeProfit
}

// CallObserver получает итог каждого вызова биржи (для метрик)
type CallObserver func(op string, ok bool, code string, elapsed time.Duration)

// Gateway - фасад над Client. Ошибки и паники не выходят наружу,
// все превращается в Result. При выключенной торговле ордера симулируются.
type Gateway struct {
	client         Client
	tradingEnabled atomic.Bool
	observer       CallObserver
	log            *utils.Logger
}

// NewGateway создает шлюз
func NewGateway(client Client, tradingEnabled bool) *Gateway {
	g := &Gateway{
		client: client,
		log:    utils.L().WithComponent("gateway"),
	}
	g.tradingEnabled.Store(tradingEnabled)
	return g
}

// SetObserver задает наблюдателя вызовов; вызывать до начала работы
func (g *Gateway) SetObserver(obs CallObserver) {
	g.observer = obs
}

func (g *Gateway) SetTradingEnabled(enabled bool) {
	g.tradingEnabled.Store(enabled)
	g.log.Info("trading mode changed", utils.Bool("enabled", enabled))
}

func (g *Gateway) TradingEnabled() bool {
	return g.tradingEnabled.Load()
}

func (g *Gateway) GetBalance(ctx context.Context) Result[*Balance] {
	return call(g, "get_balance", func() (*Balance, error) {
		return g.client.GetBalance(ctx)
	})
}

func (g *Gateway) GetPositions(ctx context.Context, instrument string) Result[[]Position] {
	return call(g, "get_positions", func() ([]Position, error) {
		return g.client.GetPositions(ctx, instrument)
	})
}

func (g *Gateway) GetMarketPrice(ctx context.Context, instrument string) Result[decimal.Decimal] {
	return call(g, "get_ticker", func() (decimal.Decimal, error) {
		t, err := g.client.GetTicker(ctx, instrument)
		if err != nil {
			return decimal.Zero, err
		}
		if !t.LastPrice.IsPositive() {
			return decimal.Zero, &ExchangeError{Exchange: g.client.Name(), Code: CodeDecode, Message: "ticker without last price"}
		}
		return t.LastPrice, nil
	})
}

// SetLeverage выставляет плечо в режиме cross
func (g *Gateway) SetLeverage(ctx context.Context, instrument string, leverage int) Result[struct{}] {
	if !g.TradingEnabled() {
		return Ok(struct{}{})
	}
	return call(g, "set_leverage", func() (struct{}, error) {
		return struct{}{}, g.client.SetLeverage(ctx, instrument, leverage, MarginModeCross)
	})
}

func (g *Gateway) SubmitOrder(ctx context.Context, spec OrderSpec) Result[*Order] {
	if !spec.Size.IsPositive() {
		return Fail[*Order](CodeInvalid, "order size must be positive")
	}
	orderType := spec.Type
	if orderType == "" {
		orderType = OrderTypeMarket
	}

	if !g.TradingEnabled() {
		return Ok(g.simulated(DemoOrderPrefix, spec.Instrument, spec.Side, orderType, spec.Size))
	}

	return call(g, "place_order", func() (*Order, error) {
		return g.client.PlaceOrder(ctx, OrderRequest{
			InstID:        spec.Instrument,
			Side:          spec.Side,
			PosSide:       spec.PosSide,
			OrderType:     orderType,
			Size:          spec.Size,
			Price:         spec.Price,
			ReduceOnly:    spec.ReduceOnly,
			MarginMode:    MarginModeCross,
			ClientOrderID: clientOrderID(),
		})
	})
}

func (g *Gateway) SubmitConditionalOrder(ctx context.Context, spec ConditionalSpec) Result[*Order] {
	if !spec.Size.IsPositive() || !spec.TriggerPrice.IsPositive() {
		return Fail[*Order](CodeInvalid, "conditional order requires positive size and trigger price")
	}

	if !g.TradingEnabled() {
		return Ok(g.simulated(DemoStopPrefix, spec.Instrument, spec.Side, "conditional", spec.Size))
	}

	return call(g, "place_algo_order", func() (*Order, error) {
		return g.client.PlaceAlgoOrder(ctx, AlgoOrderRequest{
			InstID:        spec.Instrument,
			Side:          spec.Side,
			PosSide:       spec.PosSide,
			Kind:          spec.Kind,
			Size:          spec.Size,
			TriggerPrice:  spec.TriggerPrice,
			OrderPrice:    spec.LimitPrice,
			ReduceOnly:    true,
			MarginMode:    MarginModeCross,
			ClientOrderID: clientOrderID(),
		})
	})
}

// CheckConnection - публичный запрос времени сервера
func (g *Gateway) CheckConnection(ctx context.Context) Result[time.Time] {
	return call(g, "server_time", func() (time.Time, error) {
		return g.client.ServerTime(ctx)
	})
}

func (g *Gateway) simulated(prefix, instrument, side, orderType string, size decimal.Decimal) *Order {
	id := prefix + uuid.NewString()
	g.log.Info("trading disabled, order simulated",
		utils.Instrument(instrument),
		utils.Side(side),
		utils.Volume(size),
		utils.OrderID(id))
	return &Order{
		ID:        id,
		InstID:    instrument,
		Side:      side,
		Type:      orderType,
		Size:      size,
		Simulated: true,
		CreatedAt: time.Now(),
	}
}

// call выполняет fn, перехватывая панику и классифицируя ошибку
func call[T any](g *Gateway, op string, fn func() (T, error)) (res Result[T]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("panic in exchange call", utils.String("op", op), utils.Any("panic", r))
			res = Fail[T](CodeInternal, fmt.Sprintf("internal error: %v", r))
		}
		if g.observer != nil {
			g.observer(op, res.OK, res.Code, time.Since(start))
		}
	}()

	v, err := fn()
	if err != nil {
		code, msg := classify(err)
		g.log.Warn("exchange call failed",
			utils.String("op", op),
			utils.ErrorCode(code),
			utils.Err(err),
			utils.Latency(time.Since(start)))
		return Fail[T](code, msg)
	}
	return Ok(v)
}

// classify сводит ошибку к коду и сообщению
func classify(err error) (string, string) {
	var exErr *ExchangeError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout, "request timed out"
	case errors.As(err, &exErr):
		if exErr.Code == "" {
			var netErr net.Error
			if errors.As(exErr.Original, &netErr) && netErr.Timeout() {
				return CodeTimeout, "request timed out"
			}
			return CodeTransport, exErr.Message
		}
		return exErr.Code, exErr.Message
	case errors.Is(err, context.Canceled):
		return CodeTransport, "request canceled"
	default:
		return CodeTransport, err.Error()
	}
}

// clientOrderID - uuid без дефисов (OKX: до 32 буквенно-цифровых символов)
func clientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
