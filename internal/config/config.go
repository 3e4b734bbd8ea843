package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"triarb/pkg/crypto"
	"triarb/pkg/utils"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Exchange ExchangeConfig
	Security SecurityConfig
	Bot      BotConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port           int
	Host           string
	UseHTTPS       bool
	CertFile       string
	KeyFile        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DatabaseConfig - настройки подключения к БД (журнал запусков)
type DatabaseConfig struct {
	Enabled      bool
	Driver       string
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
}

// RedisConfig - публикация событий запусков через pub/sub
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int

	// Каналы pub/sub; пусто = значения по умолчанию публикатора
	EventChannel   string
	SummaryChannel string
}

// ExchangeConfig - подключение к бирже
type ExchangeConfig struct {
	Name            string // binance, binance-testnet
	APIKey          string
	SecretKey       string
	BaseURL         string
	RecvWindow      int
	WeightPerSecond float64 // лимит веса запросов
	OrdersPerSecond float64 // лимит размещения ордеров
	RequestTimeout  time.Duration
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// APITokenHash - bcrypt хеш bearer токена; пусто = авторизация выключена
	APITokenHash string
}

// BotConfig - настройки исполнения арбитража
type BotConfig struct {
	SettlementAsset string // валюта расчётов треугольника

	// Цикл ожидания исполнения ордера
	PollInterval       time.Duration
	PauseCheckInterval time.Duration
	ErrorBackoff       time.Duration
	MaxOrderWait       time.Duration // 0 = ждать бесконечно

	// Периодические задачи
	BalanceUpdateFreq time.Duration

	LogTail            int     // записей журнала в снимке состояния
	PriceTolerance     float64 // допуск ValidateOpportunity (доля)
	StabilityTolerance float64 // допуск CheckPriceStability (доля)
	OrderBookDepth     int     // глубина стакана по умолчанию
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения.
// Файл .env подхватывается, если он есть; переменные окружения имеют приоритет.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:       getEnvAsBool("USE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Enabled:      getEnvAsBool("DB_ENABLED", false),
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "triarb"),
			User:         getEnv("DB_USER", "user"),
			Password:     getEnv("DB_PASSWORD", "password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),

			EventChannel:   getEnv("REDIS_EVENT_CHANNEL", ""),
			SummaryChannel: getEnv("REDIS_SUMMARY_CHANNEL", ""),
		},
		Exchange: ExchangeConfig{
			Name:            getEnv("EXCHANGE_NAME", "binance"),
			APIKey:          getEnv("BINANCE_API_KEY", ""),
			SecretKey:       getEnv("BINANCE_SECRET_KEY", ""),
			BaseURL:         getEnv("BINANCE_BASE_URL", ""),
			RecvWindow:      getEnvAsInt("BINANCE_RECV_WINDOW", 5000),
			WeightPerSecond: getEnvAsFloat("BINANCE_WEIGHT_PER_SECOND", 20),
			OrdersPerSecond: getEnvAsFloat("BINANCE_ORDERS_PER_SECOND", 5),
			RequestTimeout:  getEnvAsDuration("EXCHANGE_REQUEST_TIMEOUT", 10*time.Second),
		},
		Security: SecurityConfig{
			APITokenHash: getEnv("API_TOKEN_HASH", ""),
		},
		Bot: BotConfig{
			SettlementAsset: strings.ToUpper(getEnv("SETTLEMENT_ASSET", "USDT")),

			PollInterval:       getEnvAsDuration("ORDER_POLL_INTERVAL", 2*time.Second),
			PauseCheckInterval: getEnvAsDuration("PAUSE_CHECK_INTERVAL", 1*time.Second),
			ErrorBackoff:       getEnvAsDuration("ORDER_ERROR_BACKOFF", 5*time.Second),
			MaxOrderWait:       getEnvAsDuration("MAX_ORDER_WAIT", 0),

			BalanceUpdateFreq: getEnvAsDuration("BALANCE_UPDATE_FREQ", 3*time.Second),

			LogTail:            getEnvAsInt("RUN_LOG_TAIL", 20),
			PriceTolerance:     getEnvAsFloat("PRICE_TOLERANCE", 0.01),
			StabilityTolerance: getEnvAsFloat("STABILITY_TOLERANCE", 0.005),
			OrderBookDepth:     getEnvAsInt("ORDER_BOOK_DEPTH", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// Без ключей невозможно ни разместить ордер, ни прочитать баланс
	if c.Exchange.APIKey == "" || c.Exchange.SecretKey == "" {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_SECRET_KEY are required")
	}

	if c.Security.APITokenHash != "" && !crypto.IsValidHash(c.Security.APITokenHash) {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash (generate with -hash-token)")
	}

	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("CERT_FILE and KEY_FILE are required when USE_HTTPS is enabled")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Enabled && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if err := utils.ValidateAsset(c.Bot.SettlementAsset); err != nil {
		return fmt.Errorf("SETTLEMENT_ASSET: %w", err)
	}

	// Интервалы цикла ожидания (должны быть положительными)
	if c.Bot.PollInterval <= 0 {
		return fmt.Errorf("ORDER_POLL_INTERVAL must be positive, got %v", c.Bot.PollInterval)
	}

	if c.Bot.PauseCheckInterval <= 0 {
		return fmt.Errorf("PAUSE_CHECK_INTERVAL must be positive, got %v", c.Bot.PauseCheckInterval)
	}

	if c.Bot.ErrorBackoff <= 0 {
		return fmt.Errorf("ORDER_ERROR_BACKOFF must be positive, got %v", c.Bot.ErrorBackoff)
	}

	// 0 = без ограничения
	if c.Bot.MaxOrderWait < 0 {
		return fmt.Errorf("MAX_ORDER_WAIT cannot be negative, got %v", c.Bot.MaxOrderWait)
	}

	if c.Bot.BalanceUpdateFreq <= 0 {
		return fmt.Errorf("BALANCE_UPDATE_FREQ must be positive, got %v", c.Bot.BalanceUpdateFreq)
	}

	if c.Bot.LogTail < 1 {
		return fmt.Errorf("RUN_LOG_TAIL must be at least 1, got %d", c.Bot.LogTail)
	}

	if c.Bot.PriceTolerance <= 0 || c.Bot.PriceTolerance >= 1 {
		return fmt.Errorf("PRICE_TOLERANCE must be in (0, 1), got %v", c.Bot.PriceTolerance)
	}

	if c.Bot.StabilityTolerance <= 0 || c.Bot.StabilityTolerance >= 1 {
		return fmt.Errorf("STABILITY_TOLERANCE must be in (0, 1), got %v", c.Bot.StabilityTolerance)
	}

	if c.Bot.OrderBookDepth < 1 || c.Bot.OrderBookDepth > 5000 {
		return fmt.Errorf("ORDER_BOOK_DEPTH must be between 1 and 5000, got %d", c.Bot.OrderBookDepth)
	}

	if c.Exchange.WeightPerSecond <= 0 || c.Exchange.OrdersPerSecond <= 0 {
		return fmt.Errorf("exchange rate limits must be positive")
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// LogConfig преобразует настройки в конфигурацию логгера
func (l LoggingConfig) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:  l.Level,
		Format: l.Format,
		Output: l.Output,
	}
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList читает список через запятую, пустые элементы отбрасываются
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
