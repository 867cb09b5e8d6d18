package bot

// Состояния саги открытия позиции
const (
	StateRiskCheck       = "risk_check"
	StateClosingExisting = "closing_existing"
	StateSettingLeverage = "setting_leverage"
	StateSubmittingEntry = "submitting_entry"
	StateAttachingStops  = "attaching_stops"
	StateDone            = "done"
	StateFailed          = "failed"
)

// ValidTransitions определяет допустимые переходы между состояниями
var ValidTransitions = map[string][]string{
	StateRiskCheck:       {StateClosingExisting, StateFailed},
	StateClosingExisting: {StateSettingLeverage},             // ошибки закрытия не фатальны
	StateSettingLeverage: {StateSubmittingEntry},             // ошибки плеча не фатальны
	StateSubmittingEntry: {StateAttachingStops, StateFailed}, // Failed только при отказе входа
	StateAttachingStops:  {StateDone},
	StateDone:            {},
	StateFailed:          {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для логов и /ws
func StateInfo(s string) string {
	switch s {
	case StateRiskCheck:
		return "Проверка риск-лимитов"
	case StateClosingExisting:
		return "Закрытие существующих позиций..."
	case StateSettingLeverage:
		return "Установка плеча..."
	case StateSubmittingEntry:
		return "Отправка входного ордера..."
	case StateAttachingStops:
		return "Установка стоп-лосса и тейк-профита..."
	case StateDone:
		return "Позиция открыта"
	case StateFailed:
		return "Сигнал не исполнен"
	default:
		return "Неизвестное состояние"
	}
}

// IsTerminal возвращает true для конечных состояний
func IsTerminal(s string) bool {
	return s == StateDone || s == StateFailed
}
