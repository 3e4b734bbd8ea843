package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных запросов
//
// Функции:
// - ValidateSymbol / NormalizeSymbol: формат символа пары (ETHUSDT)
// - ValidateAsset: код актива (USDT, ETH)
// - ValidatePositive: положительное конечное число (сумма, цена)
// - ValidationErrors: накопление ошибок по полям

var (
	symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)
	assetPattern  = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)
)

// ErrValidation - базовая ошибка валидации
var ErrValidation = errors.New("validation failed")

// NormalizeSymbol приводит символ к формату биржи: верхний регистр без разделителей
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
}

// ValidateSymbol проверяет формат символа после нормализации
func ValidateSymbol(symbol string) error {
	if strings.ContainsAny(symbol, " \t") {
		return fmt.Errorf("%w: symbol %q contains spaces", ErrValidation, symbol)
	}
	if !symbolPattern.MatchString(NormalizeSymbol(symbol)) {
		return fmt.Errorf("%w: invalid symbol %q", ErrValidation, symbol)
	}
	return nil
}

// ValidateAsset проверяет код актива
func ValidateAsset(asset string) error {
	if !assetPattern.MatchString(strings.ToUpper(strings.TrimSpace(asset))) {
		return fmt.Errorf("%w: invalid asset %q", ErrValidation, asset)
	}
	return nil
}

// ValidatePositive проверяет что value > 0 и конечно
func ValidatePositive(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrValidation, field, value)
	}
	return nil
}

// ValidationErrors - ошибки по полям запроса
type ValidationErrors map[string]string

// Add добавляет ошибку поля, если err != nil
func (v ValidationErrors) Add(field string, err error) {
	if err != nil {
		v[field] = err.Error()
	}
}

// HasErrors возвращает true если есть хотя бы одна ошибка
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}
