package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию оркестратора
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Placement PlacementConfig
	Monitor   MonitorConfig
	Crash     CrashConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
// База принадлежит окружающему CRUD-бэкенду; ядро читает реестр ботов
// и владеет таблицами action_log и position_state
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// Ключ AES-256 для расшифровки API-паролей торговых движков
	EncryptionKey string
	// bcrypt-хеш операторского ключа сервисного API (пусто = auth выключен)
	OperatorKeyHash string
}

// PlacementConfig - настройки размещения инстансов по пулам
type PlacementConfig struct {
	// Фиксированная ёмкость каждого пула
	PoolCapacity int

	// Путь к документу состояния размещения
	StateFile string

	// Базовый адрес супервизора пулов (enumerate/start/stop процессов)
	SupervisorURL string

	// Каталог с данными инстансов (features.yaml на каждый инстанс)
	InstancesDir string

	// Legacy-каталог с инстансами вне структуры пулов
	LegacyDir string
}

// MonitorConfig - настройки цикла контроля позиций
type MonitorConfig struct {
	// Интервал цикла мониторинга
	CheckInterval time.Duration

	// Интервал обновления кэша цен и истории для детектора обвала
	PriceRefreshInterval time.Duration

	// Размер батча инстансов, обрабатываемых конкурентно
	BatchSize int

	// Порог последовательных ошибок инстанса (только warning, без паузы)
	RetryThreshold int

	// Таймаут запроса к локальному API движка
	RequestTimeout time.Duration

	// TTL кэшированного bearer-токена движка
	TokenTTL time.Duration

	// TTL записи в кэше цен
	PriceTTL time.Duration

	// Лимит записей журнала действий на инстанс
	ActionLogLimit int

	// Окно коалесцирования событий изменения файлов стратегий
	DebounceWindow time.Duration

	// Rate limit исходящих запросов к API одного инстанса
	APIRate  float64
	APIBurst float64
}

// CrashConfig - настройки детектора обвала рынка
type CrashConfig struct {
	// Референсная пара для отслеживания (обвал считается рыночным)
	ReferencePair string

	// Длина скользящего окна истории цен
	Window time.Duration

	// Насколько назад смотрим при сравнении цен
	Lookback time.Duration

	// Падение в процентах, при котором срабатывает emergency stop
	SeverityPercent float64
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
// .env подхватывается автоматически, если присутствует
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8090),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "botplatform"),
			User:     getEnv("DB_USER", "orchestrator"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
			OperatorKeyHash: getEnv("OPERATOR_KEY_HASH", ""),
		},
		Placement: PlacementConfig{
			PoolCapacity:  getEnvAsInt("POOL_CAPACITY", 5),
			StateFile:     getEnv("PLACEMENT_STATE_FILE", "data/placement.json"),
			SupervisorURL: getEnv("SUPERVISOR_URL", "http://localhost:9000"),
			InstancesDir:  getEnv("INSTANCES_DIR", "data/bot-instances"),
			LegacyDir:     getEnv("LEGACY_INSTANCES_DIR", ""),
		},
		Monitor: MonitorConfig{
			CheckInterval:        getEnvAsDuration("CHECK_INTERVAL", 30*time.Second),
			PriceRefreshInterval: getEnvAsDuration("PRICE_REFRESH_INTERVAL", 10*time.Second),
			BatchSize:            getEnvAsInt("BATCH_SIZE", 10),
			RetryThreshold:       getEnvAsInt("RETRY_THRESHOLD", 3),
			RequestTimeout:       getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
			TokenTTL:             getEnvAsDuration("TOKEN_TTL", 60*time.Second),
			PriceTTL:             getEnvAsDuration("PRICE_TTL", 60*time.Second),
			ActionLogLimit:       getEnvAsInt("ACTION_LOG_LIMIT", 100),
			DebounceWindow:       getEnvAsDuration("DEBOUNCE_WINDOW", 2*time.Second),
			APIRate:              getEnvAsFloat("API_RATE", 5),
			APIBurst:             getEnvAsFloat("API_BURST", 10),
		},
		Crash: CrashConfig{
			ReferencePair:   getEnv("CRASH_REFERENCE_PAIR", "BTC/USDT"),
			Window:          getEnvAsDuration("CRASH_WINDOW", 2*time.Hour),
			Lookback:        getEnvAsDuration("CRASH_LOOKBACK", 60*time.Minute),
			SeverityPercent: getEnvAsFloat("CRASH_SEVERITY_PERCENT", 8.0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен: без него не расшифровать API-пароли движков
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for decrypting engine API passwords")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Placement.PoolCapacity < 1 {
		return fmt.Errorf("POOL_CAPACITY must be positive, got %d", c.Placement.PoolCapacity)
	}

	if c.Placement.StateFile == "" {
		return fmt.Errorf("PLACEMENT_STATE_FILE cannot be empty")
	}

	if c.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive, got %v", c.Monitor.CheckInterval)
	}

	if c.Monitor.PriceRefreshInterval <= 0 {
		return fmt.Errorf("PRICE_REFRESH_INTERVAL must be positive, got %v", c.Monitor.PriceRefreshInterval)
	}

	if c.Monitor.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Monitor.BatchSize)
	}

	if c.Monitor.RetryThreshold < 1 {
		return fmt.Errorf("RETRY_THRESHOLD must be positive, got %d", c.Monitor.RetryThreshold)
	}

	if c.Monitor.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", c.Monitor.RequestTimeout)
	}

	if c.Monitor.ActionLogLimit < 1 {
		return fmt.Errorf("ACTION_LOG_LIMIT must be positive, got %d", c.Monitor.ActionLogLimit)
	}

	if c.Crash.Lookback > c.Crash.Window {
		return fmt.Errorf("CRASH_LOOKBACK (%v) cannot exceed CRASH_WINDOW (%v)",
			c.Crash.Lookback, c.Crash.Window)
	}

	if c.Crash.SeverityPercent <= 0 || c.Crash.SeverityPercent >= 100 {
		return fmt.Errorf("CRASH_SEVERITY_PERCENT must be in (0, 100), got %v", c.Crash.SeverityPercent)
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
