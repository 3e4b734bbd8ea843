package bot

import (
	"testing"

	"triarb/internal/models"
)

// TestCanTransition_HappyPath проверяет полный успешный цикл запуска
func TestCanTransition_HappyPath(t *testing.T) {
	flow := []models.RunStatus{
		models.RunStatusIdle,
		models.RunStatusValidating,
		models.RunStatusLeg1Pending,
		models.RunStatusLeg1Filled,
		models.RunStatusLeg2Pending,
		models.RunStatusLeg2Filled,
		models.RunStatusLeg3Pending,
		models.RunStatusCompleted,
		models.RunStatusValidating, // следующий запуск
	}

	for i := 0; i < len(flow)-1; i++ {
		if !CanTransition(flow[i], flow[i+1]) {
			t.Errorf("transition %s → %s should be valid", flow[i], flow[i+1])
		}
	}
}

// TestCanTransition_AbortFromAnyNonTerminal проверяет что ABORTED достижим из любого нетерминального состояния
func TestCanTransition_AbortFromAnyNonTerminal(t *testing.T) {
	for from := range ValidTransitions {
		if from.IsTerminal() {
			continue
		}
		if !CanTransition(from, models.RunStatusAborted) {
			t.Errorf("%s → ABORTED should be valid", from)
		}
	}
}

func TestCanTransition_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from models.RunStatus
		to   models.RunStatus
	}{
		{"skip validation", models.RunStatusIdle, models.RunStatusLeg1Pending},
		{"skip leg 2", models.RunStatusLeg1Filled, models.RunStatusLeg3Pending},
		{"backwards", models.RunStatusLeg2Pending, models.RunStatusLeg1Pending},
		{"partial before leg 1", models.RunStatusLeg1Pending, models.RunStatusAbortedPartial},
		{"completed to aborted", models.RunStatusCompleted, models.RunStatusAborted},
		{"aborted to completed", models.RunStatusAborted, models.RunStatusCompleted},
		{"unknown from", "UNKNOWN", models.RunStatusValidating},
		{"self loop", models.RunStatusLeg2Pending, models.RunStatusLeg2Pending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if CanTransition(tt.from, tt.to) {
				t.Errorf("transition %s → %s should be invalid", tt.from, tt.to)
			}
		})
	}
}

func TestValidTransitions_AllTargetsAreKnown(t *testing.T) {
	for from, targets := range ValidTransitions {
		for _, to := range targets {
			if _, ok := ValidTransitions[to]; !ok {
				t.Errorf("%s → %s: target is not a known state", from, to)
			}
		}
	}
}

func TestAbortStatusFor(t *testing.T) {
	tests := []struct {
		from models.RunStatus
		want models.RunStatus
	}{
		{models.RunStatusIdle, models.RunStatusAborted},
		{models.RunStatusValidating, models.RunStatusAborted},
		{models.RunStatusLeg1Pending, models.RunStatusAborted},
		{models.RunStatusLeg1Filled, models.RunStatusAbortedPartial},
		{models.RunStatusLeg2Pending, models.RunStatusAbortedPartial},
		{models.RunStatusLeg2Filled, models.RunStatusAbortedPartial},
		{models.RunStatusLeg3Pending, models.RunStatusAbortedPartial},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got := AbortStatusFor(tt.from)
			if got != tt.want {
				t.Errorf("AbortStatusFor(%s) = %s, want %s", tt.from, got, tt.want)
			}
			if !CanTransition(tt.from, got) {
				t.Errorf("AbortStatusFor(%s) = %s is not a valid transition", tt.from, got)
			}
		})
	}
}

func TestStateInfo(t *testing.T) {
	for s := range ValidTransitions {
		if StateInfo(s) == "Неизвестное состояние" {
			t.Errorf("StateInfo(%s) has no description", s)
		}
	}
	if StateInfo("UNKNOWN") != "Неизвестное состояние" {
		t.Error("unknown state should have default description")
	}
}

func TestPendingAndFilledStatus(t *testing.T) {
	for leg := 1; leg <= 3; leg++ {
		pending := pendingStatus(leg)
		filled := filledStatus(leg)
		if !CanTransition(pending, filled) {
			t.Errorf("leg %d: %s → %s should be valid", leg, pending, filled)
		}
	}
}

func BenchmarkCanTransition(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CanTransition(models.RunStatusLeg2Pending, models.RunStatusLeg2Filled)
	}
}
