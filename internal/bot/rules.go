package bot

import (
	"context"
	"fmt"
	"sync"

	"triarb/internal/exchange"
)

// RulesResolver получает торговые правила пар у биржи.
//
// Повторов нет: отсутствующая пара - ошибка вызывающего, а не сбой сети.
// Правила кешируются в пределах одного resolver; контроллер создаёт
// новый resolver на каждый запуск.
type RulesResolver struct {
	exchange exchange.Exchange

	cache map[string]*exchange.SymbolRules
	mu    sync.Mutex
}

// NewRulesResolver создаёт resolver
func NewRulesResolver(ex exchange.Exchange) *RulesResolver {
	return &RulesResolver{
		exchange: ex,
		cache:    make(map[string]*exchange.SymbolRules),
	}
}

// Resolve возвращает правила пары или ошибку, оборачивающую exchange.ErrSymbolNotFound
func (r *RulesResolver) Resolve(ctx context.Context, symbol string) (*exchange.SymbolRules, error) {
	r.mu.Lock()
	if rules, ok := r.cache[symbol]; ok {
		r.mu.Unlock()
		return rules, nil
	}
	r.mu.Unlock()

	rules, err := r.exchange.GetSymbolRules(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("trading rules for %s: %w", symbol, err)
	}
	if rules == nil {
		return nil, fmt.Errorf("trading rules for %s: %w", symbol, exchange.ErrSymbolNotFound)
	}

	r.mu.Lock()
	r.cache[symbol] = rules
	r.mu.Unlock()
	return rules, nil
}

// ResolveAll возвращает правила для всех пар в исходном порядке
func (r *RulesResolver) ResolveAll(ctx context.Context, symbols []string) ([]*exchange.SymbolRules, error) {
	result := make([]*exchange.SymbolRules, len(symbols))
	for i, symbol := range symbols {
		rules, err := r.Resolve(ctx, symbol)
		if err != nil {
			return nil, err
		}
		result[i] = rules
	}
	return result, nil
}
