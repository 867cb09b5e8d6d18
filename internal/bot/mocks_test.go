package bot

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signaltrader/internal/exchange"
	"signaltrader/internal/models"
)

// ============ Mock Gateway ============

// MockGateway - ExchangeGateway с подсчетом вызовов
type MockGateway struct {
	mu sync.Mutex

	positions   exchange.Result[[]exchange.Position]
	marketPrice exchange.Result[decimal.Decimal]
	leverage    exchange.Result[struct{}]
	entry       exchange.Result[*exchange.Order]
	closeResult exchange.Result[*exchange.Order]
	stopResults map[string]exchange.Result[*exchange.Order] // по Kind

	orders      []exchange.OrderSpec
	conditional []exchange.ConditionalSpec
	calls       map[string]int
}

// NewMockGateway - все вызовы успешны, позиций нет
func NewMockGateway() *MockGateway {
	return &MockGateway{
		positions:   exchange.Ok([]exchange.Position{}),
		marketPrice: exchange.Ok(decimal.NewFromInt(50000)),
		leverage:    exchange.Ok(struct{}{}),
		entry:       exchange.Ok(&exchange.Order{ID: "entry-1"}),
		closeResult: exchange.Ok(&exchange.Order{ID: "close-1"}),
		stopResults: map[string]exchange.Result[*exchange.Order]{},
		calls:       make(map[string]int),
	}
}

func (m *MockGateway) hit(op string) {
	m.calls[op]++
}

func (m *MockGateway) Count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockGateway) GetPositions(ctx context.Context, instrument string) exchange.Result[[]exchange.Position] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hit("positions")
	return m.positions
}

func (m *MockGateway) GetMarketPrice(ctx context.Context, instrument string) exchange.Result[decimal.Decimal] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hit("price")
	return m.marketPrice
}

func (m *MockGateway) SetLeverage(ctx context.Context, instrument string, leverage int) exchange.Result[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hit("leverage")
	return m.leverage
}

func (m *MockGateway) SubmitOrder(ctx context.Context, spec exchange.OrderSpec) exchange.Result[*exchange.Order] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, spec)
	if spec.ReduceOnly {
		m.hit("close")
		return m.closeResult
	}
	m.hit("entry")
	return m.entry
}

func (m *MockGateway) SubmitConditionalOrder(ctx context.Context, spec exchange.ConditionalSpec) exchange.Result[*exchange.Order] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hit("conditional")
	m.conditional = append(m.conditional, spec)
	if res, ok := m.stopResults[spec.Kind]; ok {
		return res
	}
	return exchange.Ok(&exchange.Order{ID: "algo-" + spec.Kind})
}

// ============ Counting Client ============

// countingClient - exchange.Client, считающий сетевые вызовы
type countingClient struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCountingClient() *countingClient {
	return &countingClient{calls: make(map[string]int)}
}

func (c *countingClient) hit(op string) {
	c.mu.Lock()
	c.calls[op]++
	c.mu.Unlock()
}

func (c *countingClient) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *countingClient) Name() string { return "counting" }

func (c *countingClient) GetBalance(ctx context.Context) (*exchange.Balance, error) {
	c.hit("balance")
	return &exchange.Balance{}, nil
}

func (c *countingClient) GetPositions(ctx context.Context, instID string) ([]exchange.Position, error) {
	c.hit("positions")
	return nil, nil
}

func (c *countingClient) GetTicker(ctx context.Context, instID string) (*exchange.Ticker, error) {
	c.hit("ticker")
	return &exchange.Ticker{InstID: instID, LastPrice: decimal.NewFromInt(50000)}, nil
}

func (c *countingClient) SetLeverage(ctx context.Context, instID string, leverage int, marginMode string) error {
	c.hit("leverage")
	return nil
}

func (c *countingClient) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	c.hit("order")
	return &exchange.Order{ID: "live-1"}, nil
}

func (c *countingClient) PlaceAlgoOrder(ctx context.Context, req exchange.AlgoOrderRequest) (*exchange.Order, error) {
	c.hit("algo")
	return &exchange.Order{ID: "live-algo-1"}, nil
}

func (c *countingClient) ServerTime(ctx context.Context) (time.Time, error) {
	c.hit("time")
	return time.Now(), nil
}

// ============ Fakes ============

// fakeClock - управляемые часы
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingPublisher собирает опубликованные итоги
type recordingPublisher struct {
	mu      sync.Mutex
	results []*models.SagaResult
}

func (p *recordingPublisher) PublishResult(r *models.SagaResult) {
	p.mu.Lock()
	p.results = append(p.results, r)
	p.mu.Unlock()
}

func (p *recordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

func testLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:       decimal.RequireFromString("0.1"),
		MaxLeverage:           10,
		MaxDailyTrades:        3,
		MaxTotalPositionValue: decimal.NewFromInt(10000),
		SupportedSymbols:      []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP", "SOL-USDT-SWAP"},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}
