package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"signaltrader/internal/exchange"
	"signaltrader/internal/models"
	"signaltrader/pkg/utils"
)

// ExchangeGateway - то, что саге нужно от биржи
type ExchangeGateway interface {
	GetPositions(ctx context.Context, instrument string) exchange.Result[[]exchange.Position]
	GetMarketPrice(ctx context.Context, instrument string) exchange.Result[decimal.Decimal]
	SetLeverage(ctx context.Context, instrument string, leverage int) exchange.Result[struct{}]
	SubmitOrder(ctx context.Context, spec exchange.OrderSpec) exchange.Result[*exchange.Order]
	SubmitConditionalOrder(ctx context.Context, spec exchange.ConditionalSpec) exchange.Result[*exchange.Order]
}

// PositionManager - сага открытия позиции по сигналу:
//
//	RiskCheck → ClosingExisting → SettingLeverage → SubmittingEntry → AttachingStops → Done
//
// Закрытие старых позиций и плечо не фатальны. Отказ входного ордера
// завершает сагу в Failed без SL/TP. Ошибка одной из ног SL/TP не
// влияет на вторую и на Success.
type PositionManager struct {
	gateway     ExchangeGateway
	risk        *RiskLimiter
	callTimeout time.Duration
	entry       EntryPolicy
	log         *utils.Logger

	// Статистика для /status
	sagasRun    int64
	entriesOK   int64
	entriesFail int64
}

// NewPositionManager создаёт сагу. callTimeout ограничивает каждый вызов биржи.
func NewPositionManager(gateway ExchangeGateway, risk *RiskLimiter, callTimeout time.Duration) *PositionManager {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &PositionManager{
		gateway:     gateway,
		risk:        risk,
		callTimeout: callTimeout,
		entry:       EntryPolicy{OrderType: exchange.OrderTypeMarket},
		log:         utils.L().WithComponent("position_manager"),
	}
}

// EntryPolicy - как выставляется входная заявка.
// Для limit цена = цена сигнала, сдвинутая на SlippagePct процентов в сторону худшего исполнения.
type EntryPolicy struct {
	OrderType   string
	SlippagePct decimal.Decimal
}

// SetEntryPolicy задаёт тип входной заявки. Вызывать до запуска диспетчера.
func (pm *PositionManager) SetEntryPolicy(policy EntryPolicy) {
	pm.entry = policy
}

// entrySpec строит входную заявку. Limit без цены сигнала уходит по рынку.
func (p EntryPolicy) entrySpec(req models.OrderRequest) exchange.OrderSpec {
	spec := exchange.OrderSpec{
		Instrument: req.Instrument,
		Side:       req.Side,
		Size:       req.Size,
		Type:       exchange.OrderTypeMarket,
	}
	if p.OrderType != exchange.OrderTypeLimit || !req.ReferencePrice.IsPositive() {
		return spec
	}

	shift := req.ReferencePrice.Mul(p.SlippagePct).Div(decimal.NewFromInt(100))
	spec.Type = exchange.OrderTypeLimit
	if req.Side == models.ActionBuy {
		spec.Price = req.ReferencePrice.Add(shift)
	} else {
		spec.Price = req.ReferencePrice.Sub(shift)
	}
	return spec
}

// sagaRun - состояние одного прогона
type sagaRun struct {
	state  string
	req    models.OrderRequest
	result *models.SagaResult
	log    *utils.Logger
}

func (s *sagaRun) transition(to string) {
	if !CanTransition(s.state, to) {
		// переходы задаются только кодом саги, сюда попадать нельзя
		s.log.Error("invalid saga transition", utils.String("from", s.state), utils.String("to", to))
	}
	s.log.Debug(StateInfo(to), utils.State(to))
	s.state = to
}

// Execute прогоняет сагу и возвращает итог. Ошибки не возвращаются:
// все исходы описаны в SagaResult.
func (pm *PositionManager) Execute(ctx context.Context, req models.OrderRequest) *models.SagaResult {
	atomic.AddInt64(&pm.sagasRun, 1)

	run := &sagaRun{
		state: StateRiskCheck,
		req:   req,
		result: &models.SagaResult{
			RequestID:  req.RequestID,
			Action:     models.ActionForSide(req.Side),
			Instrument: req.Instrument,
			Side:       req.Side,
			Size:       req.Size,
			Leverage:   req.Leverage,
			StartedAt:  time.Now(),
		},
		log: pm.log.WithRequestID(req.RequestID).With(
			utils.Instrument(req.Instrument),
			utils.Side(req.Side),
		),
	}
	defer func() {
		run.result.Duration = time.Since(run.result.StartedAt)
	}()

	// 1. Риск-лимиты
	reservation, ok := pm.checkRisk(ctx, run)
	if !ok {
		run.transition(StateFailed)
		return run.result
	}

	// 2. Закрытие существующих позиций
	run.transition(StateClosingExisting)
	pm.closeExisting(ctx, run)

	// 3. Плечо
	run.transition(StateSettingLeverage)
	pm.setLeverage(ctx, run)

	// 4. Вход
	run.transition(StateSubmittingEntry)
	if !pm.submitEntry(ctx, run) {
		reservation.Release()
		atomic.AddInt64(&pm.entriesFail, 1)
		run.transition(StateFailed)
		return run.result
	}
	reservation.Commit()
	atomic.AddInt64(&pm.entriesOK, 1)

	// 5. SL / TP
	run.transition(StateAttachingStops)
	pm.attachStops(ctx, run)

	run.transition(StateDone)
	run.log.Info("position opened",
		utils.Action(run.result.Action),
		utils.OrderID(run.result.OrderID),
		utils.Leverage(run.req.Leverage),
		utils.Bool("simulated", run.result.Simulated),
		utils.Int("failed_stops", run.result.FailedSubOrders()))
	return run.result
}

func (pm *PositionManager) checkRisk(ctx context.Context, run *sagaRun) (*Reservation, bool) {
	req := run.req
	reservation, err := pm.risk.Reserve(req.Instrument, req.Size, req.Leverage)
	if err != nil {
		pm.reject(run, err)
		return nil, false
	}

	price := req.ReferencePrice
	if !price.IsPositive() {
		callCtx, cancel := context.WithTimeout(ctx, pm.callTimeout)
		res := pm.gateway.GetMarketPrice(callCtx, req.Instrument)
		cancel()
		if !res.OK {
			// без цены номинал не посчитать, остальные лимиты уже пройдены
			run.log.Warn("market price unavailable, position value not checked",
				utils.ErrorCode(res.Code), utils.String("error", res.Message))
			run.result.AddStep(StateRiskCheck, true, "position value not checked: "+res.Message)
			return reservation, true
		}
		price = res.Value
	}

	if err := pm.risk.CheckPositionValue(req.Size, price); err != nil {
		reservation.Release()
		pm.reject(run, err)
		return nil, false
	}

	run.result.AddStep(StateRiskCheck, true, "")
	return reservation, true
}

func (pm *PositionManager) reject(run *sagaRun, err error) {
	reason, _ := IsRiskError(err)
	run.result.Error = err.Error()
	run.result.ErrorCode = reason
	run.result.AddStep(StateRiskCheck, false, err.Error())
	RecordRiskRejection(reason)
	run.log.Warn("signal rejected by risk limits", utils.String("reason", reason), utils.Err(err))
}

// closeExisting закрывает все ненулевые позиции по инструменту reduce-only ордерами
func (pm *PositionManager) closeExisting(ctx context.Context, run *sagaRun) {
	callCtx, cancel := context.WithTimeout(ctx, pm.callTimeout)
	res := pm.gateway.GetPositions(callCtx, run.req.Instrument)
	cancel()
	if !res.OK {
		pm.stepFailed(run, StateClosingExisting, fmt.Sprintf("get positions: [%s] %s", res.Code, res.Message))
		return
	}

	closed, failed := 0, 0
	for _, pos := range res.Value {
		if pos.Size.IsZero() {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, pm.callTimeout)
		order := pm.gateway.SubmitOrder(callCtx, exchange.OrderSpec{
			Instrument: pos.InstID,
			Side:       pos.CloseSide(),
			Size:       pos.Size.Abs(),
			Type:       exchange.OrderTypeMarket,
			ReduceOnly: true,
			PosSide:    pos.PosSide,
		})
		cancel()

		if !order.OK {
			failed++
			run.log.Warn("failed to close existing position",
				utils.Side(pos.Side),
				utils.Volume(pos.Size),
				utils.ErrorCode(order.Code),
				utils.String("error", order.Message))
			continue
		}
		closed++
		run.log.Info("existing position closed",
			utils.Side(pos.Side),
			utils.Volume(pos.Size),
			utils.OrderID(order.Value.ID))
	}

	if failed > 0 {
		pm.stepFailed(run, StateClosingExisting, fmt.Sprintf("closed %d of %d positions", closed, closed+failed))
		return
	}
	run.result.AddStep(StateClosingExisting, true, fmt.Sprintf("closed %d positions", closed))
}

func (pm *PositionManager) setLeverage(ctx context.Context, run *sagaRun) {
	callCtx, cancel := context.WithTimeout(ctx, pm.callTimeout)
	res := pm.gateway.SetLeverage(callCtx, run.req.Instrument, run.req.Leverage)
	cancel()
	if !res.OK {
		pm.stepFailed(run, StateSettingLeverage, fmt.Sprintf("[%s] %s", res.Code, res.Message))
		return
	}
	run.result.AddStep(StateSettingLeverage, true, fmt.Sprintf("%dx", run.req.Leverage))
}

func (pm *PositionManager) submitEntry(ctx context.Context, run *sagaRun) bool {
	callCtx, cancel := context.WithTimeout(ctx, pm.callTimeout)
	res := pm.gateway.SubmitOrder(callCtx, pm.entry.entrySpec(run.req))
	cancel()

	if !res.OK {
		run.result.Error = fmt.Sprintf("entry order failed: %s", res.Message)
		run.result.ErrorCode = res.Code
		run.result.AddStep(StateSubmittingEntry, false, res.Message)
		run.log.Error("entry order failed", utils.ErrorCode(res.Code), utils.String("error", res.Message))
		return false
	}

	run.result.Success = true
	run.result.OrderID = res.Value.ID
	run.result.Simulated = res.Value.Simulated
	run.result.AddStep(StateSubmittingEntry, true, res.Value.ID)
	return true
}

// attachStops ставит SL и TP независимо друг от друга
func (pm *PositionManager) attachStops(ctx context.Context, run *sagaRun) {
	legs := []struct {
		kind    string
		algo    string
		trigger *decimal.Decimal
	}{
		{models.SubOrderStopLoss, exchange.AlgoKindStopLoss, run.req.StopLoss},
		{models.SubOrderTakeProfit, exchange.AlgoKindTakeProfit, run.req.TakeProfit},
	}

	closeSide := exchange.OppositeSide(run.req.Side)
	for _, leg := range legs {
		if leg.trigger == nil || !leg.trigger.IsPositive() {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, pm.callTimeout)
		res := pm.gateway.SubmitConditionalOrder(callCtx, exchange.ConditionalSpec{
			Instrument:   run.req.Instrument,
			Side:         closeSide,
			Size:         run.req.Size,
			TriggerPrice: *leg.trigger,
			Kind:         leg.algo,
		})
		cancel()

		sub := models.SubOrderResult{Kind: leg.kind, OK: res.OK}
		if res.OK {
			sub.OrderID = res.Value.ID
			run.log.Info("stop order attached", utils.String("kind", leg.kind), utils.Price(*leg.trigger), utils.OrderID(sub.OrderID))
		} else {
			sub.ErrorCode = res.Code
			sub.Error = res.Message
			RecordStepFailure(leg.kind)
			run.log.Warn("failed to attach stop order",
				utils.String("kind", leg.kind),
				utils.Price(*leg.trigger),
				utils.ErrorCode(res.Code),
				utils.String("error", res.Message))
		}
		run.result.SubOrders = append(run.result.SubOrders, sub)
	}

	run.result.AddStep(StateAttachingStops, run.result.FailedSubOrders() == 0,
		fmt.Sprintf("%d stop orders", len(run.result.SubOrders)))
}

func (pm *PositionManager) stepFailed(run *sagaRun, step, detail string) {
	RecordStepFailure(step)
	run.result.AddStep(step, false, detail)
	run.log.Warn("saga step failed, continuing", utils.Step(step), utils.String("detail", detail))
}

// PositionStats - счетчики для /status
type PositionStats struct {
	SagasRun    int64 `json:"sagas_run"`
	EntriesOK   int64 `json:"entries_ok"`
	EntriesFail int64 `json:"entries_failed"`
}

// Stats возвращает статистику менеджера
func (pm *PositionManager) Stats() PositionStats {
	return PositionStats{
		SagasRun:    atomic.LoadInt64(&pm.sagasRun),
		EntriesOK:   atomic.LoadInt64(&pm.entriesOK),
		EntriesFail: atomic.LoadInt64(&pm.entriesFail),
	}
}
