package exchange

import (
	"fmt"
	"strings"

	"triarb/pkg/utils"
)

// Базовые адреса поддерживаемых окружений
const (
	binanceTestnetBaseURL = "https://testnet.binance.vision"
)

// SupportedExchanges - список поддерживаемых бирж
var SupportedExchanges = []string{
	"binance",
	"binance-testnet",
}

// NewExchange создает клиент биржи по имени.
// Явно заданный cfg.BaseURL имеет приоритет над адресом окружения.
func NewExchange(name string, cfg BinanceConfig, logger *utils.Logger) (Exchange, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case "binance", "":
		return NewBinance(cfg, logger), nil
	case "binance-testnet":
		if cfg.BaseURL == "" {
			cfg.BaseURL = binanceTestnetBaseURL
		}
		return NewBinance(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли биржа
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
