package bot

import "testing"

// TestCanTransition проверяет переходы саги
func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"risk passed", StateRiskCheck, StateClosingExisting, true},
		{"risk rejected", StateRiskCheck, StateFailed, true},
		{"close always moves to leverage", StateClosingExisting, StateSettingLeverage, true},
		{"close failure is not fatal", StateClosingExisting, StateFailed, false},
		{"leverage always moves to entry", StateSettingLeverage, StateSubmittingEntry, true},
		{"leverage failure is not fatal", StateSettingLeverage, StateFailed, false},
		{"entry filled", StateSubmittingEntry, StateAttachingStops, true},
		{"entry rejected", StateSubmittingEntry, StateFailed, true},
		{"stops never fail the saga", StateAttachingStops, StateFailed, false},
		{"stops done", StateAttachingStops, StateDone, true},

		// пропуск шагов запрещен
		{"skip close", StateRiskCheck, StateSettingLeverage, false},
		{"skip entry", StateSettingLeverage, StateAttachingStops, false},

		// из конечных состояний выхода нет
		{"done is terminal", StateDone, StateRiskCheck, false},
		{"failed is terminal", StateFailed, StateRiskCheck, false},

		{"unknown state", "unknown", StateDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// TestStateMachine_AllStatesDescribed проверяет, что каждое состояние имеет описание
func TestStateMachine_AllStatesDescribed(t *testing.T) {
	for state := range ValidTransitions {
		if StateInfo(state) == "Неизвестное состояние" {
			t.Errorf("state %q has no description", state)
		}
	}
	if StateInfo("bogus") != "Неизвестное состояние" {
		t.Error("unknown state must have default description")
	}
}

// TestIsTerminal проверяет конечные состояния
func TestIsTerminal(t *testing.T) {
	for state, next := range ValidTransitions {
		if IsTerminal(state) != (len(next) == 0) {
			t.Errorf("IsTerminal(%q) inconsistent with transition table", state)
		}
	}
}
