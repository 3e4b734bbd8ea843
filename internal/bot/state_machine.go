package bot

import (
	"fmt"

	"triarb/internal/models"
)

// ValidTransitions определяет допустимые переходы между состояниями запуска.
//
// ABORTED достижим из любого нетерминального состояния. После исполнения
// первой ноги контроллер использует ABORTED_PARTIAL: на счёте остаётся
// промежуточный актив, требуется ручное вмешательство.
var ValidTransitions = map[models.RunStatus][]models.RunStatus{
	models.RunStatusIdle:           {models.RunStatusValidating, models.RunStatusAborted},
	models.RunStatusValidating:     {models.RunStatusLeg1Pending, models.RunStatusAborted},
	models.RunStatusLeg1Pending:    {models.RunStatusLeg1Filled, models.RunStatusAborted},
	models.RunStatusLeg1Filled:     {models.RunStatusLeg2Pending, models.RunStatusAborted, models.RunStatusAbortedPartial},
	models.RunStatusLeg2Pending:    {models.RunStatusLeg2Filled, models.RunStatusAborted, models.RunStatusAbortedPartial},
	models.RunStatusLeg2Filled:     {models.RunStatusLeg3Pending, models.RunStatusAborted, models.RunStatusAbortedPartial},
	models.RunStatusLeg3Pending:    {models.RunStatusCompleted, models.RunStatusAborted, models.RunStatusAbortedPartial},
	models.RunStatusCompleted:      {models.RunStatusValidating}, // новый запуск
	models.RunStatusAborted:        {models.RunStatusValidating},
	models.RunStatusAbortedPartial: {models.RunStatusValidating},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.RunStatus) bool {
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

// StateTransitionError - попытка недопустимого перехода
type StateTransitionError struct {
	From models.RunStatus
	To   models.RunStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition %s -> %s", e.From, e.To)
}

// AbortStatusFor возвращает терминальный статус прерывания для текущего состояния:
// ABORTED до исполнения первой ноги и ABORTED_PARTIAL после.
func AbortStatusFor(s models.RunStatus) models.RunStatus {
	switch s {
	case models.RunStatusLeg1Filled, models.RunStatusLeg2Pending,
		models.RunStatusLeg2Filled, models.RunStatusLeg3Pending:
		return models.RunStatusAbortedPartial
	default:
		return models.RunStatusAborted
	}
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s models.RunStatus) string {
	switch s {
	case models.RunStatusIdle:
		return "Ожидание запуска"
	case models.RunStatusValidating:
		return "Проверка пар и объёмов..."
	case models.RunStatusLeg1Pending:
		return "Нога 1: ожидание исполнения"
	case models.RunStatusLeg1Filled:
		return "Нога 1 исполнена"
	case models.RunStatusLeg2Pending:
		return "Нога 2: ожидание исполнения"
	case models.RunStatusLeg2Filled:
		return "Нога 2 исполнена"
	case models.RunStatusLeg3Pending:
		return "Нога 3: ожидание исполнения"
	case models.RunStatusCompleted:
		return "Арбитраж завершён"
	case models.RunStatusAborted:
		return "Арбитраж прерван"
	case models.RunStatusAbortedPartial:
		return "Арбитраж прерван после частичного исполнения! Требуется вмешательство"
	default:
		return "Неизвестное состояние"
	}
}

// pendingStatus возвращает состояние ожидания для ноги 1..3
func pendingStatus(leg int) models.RunStatus {
	switch leg {
	case 1:
		return models.RunStatusLeg1Pending
	case 2:
		return models.RunStatusLeg2Pending
	default:
		return models.RunStatusLeg3Pending
	}
}

// filledStatus возвращает состояние после исполнения ноги 1..2;
// для третьей ноги исполнение завершает запуск
func filledStatus(leg int) models.RunStatus {
	switch leg {
	case 1:
		return models.RunStatusLeg1Filled
	case 2:
		return models.RunStatusLeg2Filled
	default:
		return models.RunStatusCompleted
	}
}
