package utils

import (
	"math"
)

// math.go - математические утилиты для исполнения треугольного арбитража
//
// Назначение:
// Приведение объёмов и цен к правилам биржи и проверка минимальной суммы сделки.
// Все функции являются чистыми (pure functions) без побочных эффектов и
// используются одинаково при предварительной проверке и при живом исполнении.
//
// Функции:
// - RoundToStep: округление объёма вниз до lot step size
// - RoundToTick: округление цены вниз до tick size
// - Notional / ValidateNotional: сумма сделки и проверка minNotional
// - RelativeDeviation: относительное отклонение цены

// QuantityPrecision - количество знаков после запятой при округлении.
// Убирает накопленный дрейф float64 (0.1+0.2 и т.п.).
const QuantityPrecision = 8

// RoundDecimals округляет значение до заданного количества знаков.
//
// Примеры:
//   - RoundDecimals(0.123456789, 8) = 0.12345679
//   - RoundDecimals(1.005, 2) = 1.0 или 1.01 (зависит от представления float64)
func RoundDecimals(value float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(value*p) / p
}

// RoundToStep округляет объём ВНИЗ до ближайшего кратного step.
//
// Формула: floor(quantity / step) * step, затем округление до 8 знаков.
// Результат никогда не превышает quantity: отношение сначала усекается,
// а лишний шаг добавляется только если (n+1)*step после очистки дрейфа
// всё ещё <= quantity (0.3/0.1 = 2.9999999999999996 даёт 0.3, а не 0.2).
//
// Параметры:
//   - quantity: желаемый объём в базовой валюте
//   - step: LOT_SIZE stepSize биржи
//
// Возвращает:
//   - Округлённое значение, кратное step (в пределах точности float64)
//   - Если step == 0, возвращает исходное значение (без округления)
//
// Примеры:
//   - RoundToStep(0.123456, 0.001) = 0.123
//   - RoundToStep(7.5, 0.001) = 7.5
//   - RoundToStep(0.3, 0.1) = 0.3
//   - RoundToStep(0.0999999995, 0.1) = 0
func RoundToStep(quantity, step float64) float64 {
	if step == 0 {
		return quantity
	}
	step = math.Abs(step)
	// усечение к нулю и для отрицательных значений
	if quantity < 0 {
		return -RoundToStep(-quantity, step)
	}

	n := math.Floor(quantity / step)
	if RoundDecimals((n+1)*step, QuantityPrecision) <= quantity {
		n++
	}
	result := RoundDecimals(n*step, QuantityPrecision)
	if result > quantity && n > 0 {
		result = RoundDecimals((n-1)*step, QuantityPrecision)
	}
	return result
}

// RoundToTick округляет цену ВНИЗ до ближайшего кратного tick.
// Алгоритм идентичен RoundToStep; tick == 0 означает «без округления».
func RoundToTick(price, tick float64) float64 {
	return RoundToStep(price, tick)
}

// Notional возвращает сумму сделки в валюте котировки: quantity × price
func Notional(quantity, price float64) float64 {
	return quantity * price
}

// ValidateNotional проверяет, что сумма сделки не меньше минимальной.
//
// Возвращает true если quantity × price >= minNotional.
func ValidateNotional(quantity, price, minNotional float64) bool {
	return Notional(quantity, price) >= minNotional
}

// RelativeDeviation возвращает |value - reference| / reference.
//
// Используется для проверки отклонения текущей цены от ожидаемой.
// При reference <= 0 возвращает +Inf (любое сравнение с допуском провалится).
func RelativeDeviation(value, reference float64) float64 {
	if reference <= 0 {
		return math.Inf(1)
	}
	return math.Abs(value-reference) / reference
}

// WithinTolerance проверяет, что отклонение value от reference не превышает tolerance
func WithinTolerance(value, reference, tolerance float64) bool {
	return RelativeDeviation(value, reference) <= tolerance
}
