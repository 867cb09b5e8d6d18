package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"signaltrader/pkg/crypto"
	"signaltrader/pkg/ratelimit"
	"signaltrader/pkg/retry"
	"signaltrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const okxName = "okx"

// Эндпоинты OKX v5
const (
	okxPathBalance     = "/api/v5/account/balance"
	okxPathPositions   = "/api/v5/account/positions"
	okxPathSetLeverage = "/api/v5/account/set-leverage"
	okxPathTicker      = "/api/v5/market/ticker"
	okxPathOrder       = "/api/v5/trade/order"
	okxPathAlgoOrder   = "/api/v5/trade/order-algo"
	okxPathTime        = "/api/v5/public/time"
)

// Коды OKX, после которых запрос имеет смысл повторить
var okxTemporaryCodes = map[string]bool{
	"50001": true, // service temporarily unavailable
	"50004": true, // endpoint request timeout
	"50011": true, // rate limit reached
	"50013": true, // system busy
	"50026": true, // system error
}

// OKXConfig - параметры подключения
type OKXConfig struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	BaseURL    string
	Sandbox    bool // демо-торговля: заголовок x-simulated-trading: 1
	HTTP       HTTPClientConfig
}

// OKX - REST клиент OKX v5 для одного аккаунта
type OKX struct {
	cfg     OKXConfig
	http    *HTTPClient
	limiter *ratelimit.MultiLimiter
	readCfg retry.Config
	now     func() time.Time
	log     *utils.Logger
}

// NewOKX создает клиент. Ключи не проверяются до первого приватного запроса.
func NewOKX(cfg OKXConfig) (*OKX, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.okx.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	hc, err := NewHTTPClient(cfg.HTTP)
	if err != nil {
		return nil, err
	}

	log := utils.L().WithExchange(okxName)
	readCfg := retry.ReadConfig()
	readCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("retrying okx request",
			utils.Int("attempt", attempt),
			utils.Err(err),
			utils.Latency(delay))
	}

	return &OKX{
		cfg:     cfg,
		http:    hc,
		limiter: ratelimit.NewOKXLimiter(),
		readCfg: readCfg,
		now:     time.Now,
		log:     log,
	}, nil
}

func (o *OKX) Name() string {
	return okxName
}

// Close освобождает соединения
func (o *OKX) Close() {
	o.http.Close()
}

// ============================================================
// Wire-модели
// ============================================================

type okxResponse struct {
	Code string              `json:"code"`
	Msg  string              `json:"msg"`
	Data jsoniter.RawMessage `json:"data"`
}

type okxBalance struct {
	TotalEq string `json:"totalEq"`
	UTime   string `json:"uTime"`
	Details []struct {
		Ccy       string `json:"ccy"`
		Eq        string `json:"eq"`
		AvailBal  string `json:"availBal"`
		FrozenBal string `json:"frozenBal"`
	} `json:"details"`
}

type okxPosition struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"`
	PosSide string `json:"posSide"`
	AvgPx   string `json:"avgPx"`
	MarkPx  string `json:"markPx"`
	Lever   string `json:"lever"`
	Upl     string `json:"upl"`
	MgnMode string `json:"mgnMode"`
	UTime   string `json:"uTime"`
}

type okxTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Ts     string `json:"ts"`
}

type okxOrderAck struct {
	OrdID       string `json:"ordId"`
	ClOrdID     string `json:"clOrdId"`
	AlgoID      string `json:"algoId"`
	AlgoClOrdID string `json:"algoClOrdId"`
	SCode       string `json:"sCode"`
	SMsg        string `json:"sMsg"`
}

type okxOrderBody struct {
	InstID     string `json:"instId"`
	TdMode     string `json:"tdMode"`
	Side       string `json:"side"`
	PosSide    string `json:"posSide,omitempty"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	Px         string `json:"px,omitempty"`
	ReduceOnly bool   `json:"reduceOnly,omitempty"`
	ClOrdID    string `json:"clOrdId,omitempty"`
}

type okxAlgoBody struct {
	InstID      string `json:"instId"`
	TdMode      string `json:"tdMode"`
	Side        string `json:"side"`
	PosSide     string `json:"posSide,omitempty"`
	OrdType     string `json:"ordType"`
	Sz          string `json:"sz"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	SlOrdPx     string `json:"slOrdPx,omitempty"`
	TpTriggerPx string `json:"tpTriggerPx,omitempty"`
	TpOrdPx     string `json:"tpOrdPx,omitempty"`
	AlgoClOrdID string `json:"algoClOrdId,omitempty"`
}

type okxLeverageBody struct {
	InstID  string `json:"instId"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
}

// ============================================================
// Чтение
// ============================================================

func (o *OKX) GetBalance(ctx context.Context) (*Balance, error) {
	var data []okxBalance
	if err := o.get(ctx, okxPathBalance, nil, ratelimit.CategoryAccount, true, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &Balance{}, nil
	}

	raw := data[0]
	bal := &Balance{
		TotalEquity: parseDecimal(raw.TotalEq),
		UpdatedAt:   parseMillis(raw.UTime),
	}
	for _, d := range raw.Details {
		bal.Details = append(bal.Details, AssetBalance{
			Currency:  d.Ccy,
			Equity:    parseDecimal(d.Eq),
			Available: parseDecimal(d.AvailBal),
			Frozen:    parseDecimal(d.FrozenBal),
		})
	}
	return bal, nil
}

func (o *OKX) GetPositions(ctx context.Context, instID string) ([]Position, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")
	if instID != "" {
		q.Set("instId", instID)
		if strings.HasSuffix(instID, "-FUTURES") {
			q.Set("instType", "FUTURES")
		}
	}

	var data []okxPosition
	if err := o.get(ctx, okxPathPositions, q, ratelimit.CategoryAccount, true, &data); err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(data))
	for _, p := range data {
		size := parseDecimal(p.Pos)
		if size.IsZero() {
			continue
		}

		side := p.PosSide
		if side != SideLong && side != SideShort {
			// net режим: знак pos задает направление
			side = SideLong
			if size.IsNegative() {
				side = SideShort
			}
		}

		lev, _ := strconv.Atoi(strings.Split(p.Lever, ".")[0])
		positions = append(positions, Position{
			InstID:        p.InstID,
			Side:          side,
			PosSide:       p.PosSide,
			Size:          size.Abs(),
			EntryPrice:    parseDecimal(p.AvgPx),
			MarkPrice:     parseDecimal(p.MarkPx),
			Leverage:      lev,
			UnrealizedPnl: parseDecimal(p.Upl),
			MarginMode:    p.MgnMode,
			UpdatedAt:     parseMillis(p.UTime),
		})
	}
	return positions, nil
}

func (o *OKX) GetTicker(ctx context.Context, instID string) (*Ticker, error) {
	q := url.Values{}
	q.Set("instId", instID)

	var data []okxTicker
	if err := o.get(ctx, okxPathTicker, q, ratelimit.CategoryMarket, false, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &ExchangeError{Exchange: okxName, Code: "51001", Message: "instrument not found: " + instID}
	}

	t := data[0]
	return &Ticker{
		InstID:    t.InstID,
		LastPrice: parseDecimal(t.Last),
		BidPrice:  parseDecimal(t.BidPx),
		AskPrice:  parseDecimal(t.AskPx),
		Timestamp: parseMillis(t.Ts),
	}, nil
}

func (o *OKX) ServerTime(ctx context.Context) (time.Time, error) {
	var data []struct {
		Ts string `json:"ts"`
	}
	if err := o.get(ctx, okxPathTime, nil, ratelimit.CategoryMarket, false, &data); err != nil {
		return time.Time{}, err
	}
	if len(data) == 0 {
		return time.Time{}, &ExchangeError{Exchange: okxName, Message: "empty time response"}
	}
	return parseMillis(data[0].Ts), nil
}

// ============================================================
// Запись (без retry: повтор ордера может задвоить позицию)
// ============================================================

func (o *OKX) SetLeverage(ctx context.Context, instID string, leverage int, marginMode string) error {
	body := okxLeverageBody{
		InstID:  instID,
		Lever:   strconv.Itoa(leverage),
		MgnMode: marginMode,
	}
	return o.post(ctx, okxPathSetLeverage, body, ratelimit.CategoryAccount, nil)
}

func (o *OKX) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body := okxOrderBody{
		InstID:     req.InstID,
		TdMode:     defaultString(req.MarginMode, MarginModeCross),
		Side:       req.Side,
		PosSide:    netlessPosSide(req.PosSide),
		OrdType:    defaultString(req.OrderType, OrderTypeMarket),
		Sz:         req.Size.String(),
		ReduceOnly: req.ReduceOnly,
		ClOrdID:    req.ClientOrderID,
	}
	if body.OrdType == OrderTypeLimit {
		body.Px = req.Price.String()
	}

	var acks []okxOrderAck
	if err := o.post(ctx, okxPathOrder, body, ratelimit.CategoryTrade, &acks); err != nil {
		return nil, err
	}
	ack, err := firstAck(acks)
	if err != nil {
		return nil, err
	}

	return &Order{
		ID:            ack.OrdID,
		ClientOrderID: ack.ClOrdID,
		InstID:        req.InstID,
		Side:          req.Side,
		Type:          body.OrdType,
		Size:          req.Size,
		CreatedAt:     o.now(),
	}, nil
}

func (o *OKX) PlaceAlgoOrder(ctx context.Context, req AlgoOrderRequest) (*Order, error) {
	ordPx := "-1" // -1 = исполнение по рынку после срабатывания
	if req.OrderPrice.IsPositive() {
		ordPx = req.OrderPrice.String()
	}

	body := okxAlgoBody{
		InstID:      req.InstID,
		TdMode:      defaultString(req.MarginMode, MarginModeCross),
		Side:        req.Side,
		PosSide:     netlessPosSide(req.PosSide),
		OrdType:     "conditional",
		Sz:          req.Size.String(),
		ReduceOnly:  req.ReduceOnly,
		AlgoClOrdID: req.ClientOrderID,
	}
	switch req.Kind {
	case AlgoKindStopLoss:
		body.SlTriggerPx = req.TriggerPrice.String()
		body.SlOrdPx = ordPx
	case AlgoKindTakeProfit:
		body.TpTriggerPx = req.TriggerPrice.String()
		body.TpOrdPx = ordPx
	default:
		return nil, &ExchangeError{Exchange: okxName, Code: "INVALID_ALGO_KIND", Message: "unknown algo kind: " + req.Kind}
	}

	var acks []okxOrderAck
	if err := o.post(ctx, okxPathAlgoOrder, body, ratelimit.CategoryTrade, &acks); err != nil {
		return nil, err
	}
	ack, err := firstAck(acks)
	if err != nil {
		return nil, err
	}

	return &Order{
		ID:            ack.AlgoID,
		ClientOrderID: ack.AlgoClOrdID,
		InstID:        req.InstID,
		Side:          req.Side,
		Type:          "conditional",
		Size:          req.Size,
		CreatedAt:     o.now(),
	}, nil
}

// ============================================================
// Транспорт
// ============================================================

func (o *OKX) get(ctx context.Context, path string, query url.Values, category string, private bool, out interface{}) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	data, err := retry.DoWithResult(ctx, func() (jsoniter.RawMessage, error) {
		return o.send(ctx, http.MethodGet, requestPath, nil, category, private)
	}, o.readCfg)
	if err != nil {
		return err
	}
	return decodeData(data, out)
}

func (o *OKX) post(ctx context.Context, path string, body interface{}, category string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &ExchangeError{Exchange: okxName, Code: "ENCODE", Message: "encode request", Original: err}
	}

	data, err := o.send(ctx, http.MethodPost, path, payload, category, true)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeData(data, out)
}

// send выполняет один запрос и разбирает конверт {code, msg, data}
func (o *OKX) send(ctx context.Context, method, requestPath string, body []byte, category string, private bool) (jsoniter.RawMessage, error) {
	if err := o.limiter.Wait(ctx, category); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, o.cfg.BaseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return nil, &ExchangeError{Exchange: okxName, Code: "REQUEST", Message: "build request", Original: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if o.cfg.Sandbox {
		req.Header.Set("x-simulated-trading", "1")
	}
	if private {
		ts := utils.OKXTimestamp(o.now())
		req.Header.Set("OK-ACCESS-KEY", o.cfg.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", crypto.SignOKX(o.cfg.SecretKey, ts, method, requestPath, string(body)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", o.cfg.Passphrase)
	}

	start := o.now()
	resp, err := o.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ExchangeError{Exchange: okxName, Message: "request failed", Temporary: true, Original: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &ExchangeError{Exchange: okxName, Message: "read response", Temporary: true, Original: err}
	}

	o.log.Debug("okx request",
		utils.String("method", method),
		utils.String("path", requestPath),
		utils.Int("status", resp.StatusCode),
		utils.Latency(o.now().Sub(start)))

	var env okxResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &ExchangeError{Exchange: okxName, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode), Temporary: true}
		}
		return nil, &ExchangeError{Exchange: okxName, Code: "DECODE", Message: "invalid response body", Original: err}
	}

	if env.Code != "0" {
		msg := env.Msg
		// у ордеров причина отказа лежит в data[0].sMsg
		var acks []okxOrderAck
		if json.Unmarshal(env.Data, &acks) == nil && len(acks) > 0 && acks[0].SCode != "" && acks[0].SCode != "0" {
			return nil, &ExchangeError{Exchange: okxName, Code: acks[0].SCode, Message: acks[0].SMsg}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &ExchangeError{
			Exchange:  okxName,
			Code:      env.Code,
			Message:   msg,
			Temporary: okxTemporaryCodes[env.Code] || resp.StatusCode >= http.StatusInternalServerError,
		}
	}

	return env.Data, nil
}

func decodeData(data jsoniter.RawMessage, out interface{}) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ExchangeError{Exchange: okxName, Code: "DECODE", Message: "invalid data payload", Original: err}
	}
	return nil
}

func firstAck(acks []okxOrderAck) (okxOrderAck, error) {
	if len(acks) == 0 {
		return okxOrderAck{}, &ExchangeError{Exchange: okxName, Code: "DECODE", Message: "empty order response"}
	}
	ack := acks[0]
	if ack.SCode != "" && ack.SCode != "0" {
		return okxOrderAck{}, &ExchangeError{Exchange: okxName, Code: ack.SCode, Message: ack.SMsg}
	}
	return ack, nil
}

// ============================================================
// Хелперы
// ============================================================

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// netlessPosSide: в net режиме posSide не передается
func netlessPosSide(posSide string) string {
	if posSide == SideLong || posSide == SideShort {
		return posSide
	}
	return ""
}

var _ Client = (*OKX)(nil)

func (o *OKX) String() string {
	mode := "live"
	if o.cfg.Sandbox {
		mode = "demo"
	}
	return fmt.Sprintf("okx(%s, %s)", o.cfg.BaseURL, mode)
}
