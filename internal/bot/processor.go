package bot

import (
	"context"

	"signaltrader/internal/models"
	"signaltrader/pkg/utils"
)

// ResultPublisher получает итог каждой саги (WebSocket хаб, уведомления)
type ResultPublisher interface {
	PublishResult(result *models.SagaResult)
}

// SignalProcessor превращает сигнал в заявку и прогоняет сагу
type SignalProcessor struct {
	manager    *PositionManager
	risk       *RiskLimiter
	publishers []ResultPublisher
	log        *utils.Logger
}

// NewSignalProcessor создает обработчик
func NewSignalProcessor(manager *PositionManager, risk *RiskLimiter, publishers ...ResultPublisher) *SignalProcessor {
	return &SignalProcessor{
		manager:    manager,
		risk:       risk,
		publishers: publishers,
		log:        utils.L().WithComponent("signal_processor"),
	}
}

// BuildOrderRequest строит заявку из сигнала. Детерминирована.
func BuildOrderRequest(signal models.TradingSignal) models.OrderRequest {
	instrument, recognized := utils.NormalizeSymbol(signal.Symbol)

	return models.OrderRequest{
		RequestID:        signal.RequestID,
		Instrument:       instrument,
		RawSymbol:        signal.Symbol,
		SymbolRecognized: recognized,
		Side:             signal.Action,
		Size:             signal.Size,
		Leverage:         signal.Leverage,
		ReferencePrice:   signal.Price,
		StopLoss:         models.PositiveOrNil(signal.StopLoss),
		TakeProfit:       models.PositiveOrNil(signal.TakeProfit),
	}
}

// Process обрабатывает один сигнал до конца
func (p *SignalProcessor) Process(ctx context.Context, signal models.TradingSignal) *models.SagaResult {
	req := BuildOrderRequest(signal)
	if !req.SymbolRecognized {
		p.log.Warn("symbol not recognized, passing through unchanged",
			utils.RequestID(req.RequestID),
			utils.Symbol(req.RawSymbol))
	}

	result := p.manager.Execute(ctx, req)

	RecordSaga(result.Action, sagaOutcome(result), result.Duration)
	UpdateDailyTrades(p.risk.Snapshot().DailyTrades)

	for _, pub := range p.publishers {
		pub.PublishResult(result)
	}
	return result
}

// sagaOutcome - метка результата для метрик
func sagaOutcome(r *models.SagaResult) string {
	switch {
	case r.Success && r.Simulated:
		return "simulated"
	case r.Success:
		return "success"
	case IsRiskReason(r.ErrorCode):
		return "risk_rejected"
	default:
		return "entry_failed"
	}
}

// IsRiskReason - код отказа выдан риск-лимитами, а не биржей
func IsRiskReason(code string) bool {
	switch code {
	case ReasonSymbolNotAllowed, ReasonInvalidSize, ReasonSizeExceedsLimit,
		ReasonInvalidLeverage, ReasonLeverageExceedsLimit, ReasonDailyLimitReached,
		ReasonPositionValueLimit:
		return true
	}
	return false
}
