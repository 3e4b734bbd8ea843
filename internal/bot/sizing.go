package bot

import (
	"errors"
	"fmt"

	"triarb/internal/exchange"
	"triarb/pkg/utils"
)

// Ошибки вызывающего: запуск отклоняется синхронно, без побочных эффектов
var (
	ErrInvalidPairs  = errors.New("exactly three trading pairs with positive prices are required")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrAssetFlow     = errors.New("asset flow mismatch")
	ErrMinNotional   = errors.New("order notional below exchange minimum")
)

// Стороны ног треугольника: купить промежуточный актив за валюту расчётов,
// продать его за второй актив, продать второй актив обратно в валюту расчётов
var legSides = [3]string{exchange.SideBuy, exchange.SideSell, exchange.SideSell}

// LegPlan - рассчитанные параметры одной ноги
type LegPlan struct {
	Leg         int     `json:"leg"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Notional    float64 `json:"notional"`
	MinNotional float64 `json:"min_notional"`
}

// Label возвращает метку ноги для журнала и активных ордеров
func (p LegPlan) Label() string {
	return fmt.Sprintf("Leg %d", p.Leg)
}

// TradePlan - предварительный расчёт всех трёх ног
type TradePlan struct {
	Amount float64    `json:"amount"`
	Legs   [3]LegPlan `json:"legs"`
}

// SizeLeg приводит объём к шагу лота, цену к шагу цены и проверяет minNotional.
// Используется одинаково при предварительной проверке и при живом исполнении.
func SizeLeg(leg int, rules *exchange.SymbolRules, side string, rawQty, price float64) (LegPlan, error) {
	qty := utils.RoundToStep(rawQty, rules.StepSize)
	limitPrice := utils.RoundToTick(price, rules.TickSize)

	plan := LegPlan{
		Leg:         leg,
		Symbol:      rules.Symbol,
		Side:        side,
		Quantity:    qty,
		Price:       limitPrice,
		Notional:    utils.Notional(qty, limitPrice),
		MinNotional: rules.MinNotional,
	}

	if qty <= 0 || !utils.ValidateNotional(qty, limitPrice, rules.MinNotional) {
		return plan, fmt.Errorf("%w: leg %d %s notional %.8f < %.8f (qty %.8f, price %.8f)",
			ErrMinNotional, leg, rules.Symbol, plan.Notional, rules.MinNotional, qty, limitPrice)
	}
	return plan, nil
}

// CheckAssetFlow проверяет топологию треугольника:
//   - котируемый актив ног 1 и 3 равен валюте расчётов
//   - базовый актив ноги 2 равен базовому активу ноги 1
//   - котируемый актив ноги 2 равен базовому активу ноги 3
func CheckAssetFlow(rules []*exchange.SymbolRules, settlement string) error {
	if len(rules) != 3 {
		return ErrInvalidPairs
	}
	r1, r2, r3 := rules[0], rules[1], rules[2]

	switch {
	case r1.QuoteAsset != settlement:
		return fmt.Errorf("%w: %s must be quoted in %s, got %s", ErrAssetFlow, r1.Symbol, settlement, r1.QuoteAsset)
	case r3.QuoteAsset != settlement:
		return fmt.Errorf("%w: %s must be quoted in %s, got %s", ErrAssetFlow, r3.Symbol, settlement, r3.QuoteAsset)
	case r2.BaseAsset != r1.BaseAsset:
		return fmt.Errorf("%w: %s base %s must equal %s base %s", ErrAssetFlow, r2.Symbol, r2.BaseAsset, r1.Symbol, r1.BaseAsset)
	case r2.QuoteAsset != r3.BaseAsset:
		return fmt.Errorf("%w: %s quote %s must equal %s base %s", ErrAssetFlow, r2.Symbol, r2.QuoteAsset, r3.Symbol, r3.BaseAsset)
	}
	return nil
}

// BuildPlan рассчитывает все три ноги в предположении полного исполнения
// каждой ноги по лимитной цене. Любая нога ниже minNotional отклоняет план.
func BuildPlan(rules []*exchange.SymbolRules, amount float64, prices []float64, settlement string) (*TradePlan, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(prices) != 3 {
		return nil, ErrInvalidPairs
	}
	if err := CheckAssetFlow(rules, settlement); err != nil {
		return nil, err
	}

	plan := &TradePlan{Amount: amount}
	input := amount / prices[0]
	for i := 0; i < 3; i++ {
		leg, err := SizeLeg(i+1, rules[i], legSides[i], input, prices[i])
		if err != nil {
			return nil, err
		}
		plan.Legs[i] = leg
		input = nextLegInput(i+1, leg.Quantity, leg.Price)
	}
	return plan, nil
}

// nextLegInput - вход следующей ноги по исполненному объёму текущей:
// после первой ноги объём переносится как есть, после второй
// пересчитывается в полученный актив по лимитной цене.
func nextLegInput(leg int, filled, price float64) float64 {
	if leg == 2 {
		return filled * price
	}
	return filled
}
