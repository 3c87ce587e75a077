package utils

// logger.go - структурированное логирование на базе zap
//
// Назначение:
// Единая точка инициализации логгера для всех компонентов оркестратора.
// Формат (json/text), уровень и вывод задаются через LogConfig.
//
// Использование:
//
//	logger := utils.InitLogger(utils.LogConfig{Level: "info", Format: "json"})
//	logger.Info("cycle finished", utils.Instance("bot-1"), utils.Price(42000))
//
// Для пакетов без явной зависимости доступен глобальный логгер: utils.L()

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Output      string // путь к файлу; пусто = stderr
	Development bool   // режим разработки
}

// Logger оборачивает zap.Logger и его sugared вариант
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// глобальный логгер для пакетов без явной зависимости
var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт и настраивает логгер
//
// При невозможности открыть файл вывода происходит fallback на stderr -
// логирование никогда не должно ронять процесс.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// при ошибке остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// parseLevel преобразует строку в zapcore.Level (по умолчанию info)
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithInstance возвращает логгер с полем instance_id
func (l *Logger) WithInstance(id string) *Logger {
	return l.With(Instance(id))
}

// WithPool возвращает логгер с полем pool_id
func (l *Logger) WithPool(id string) *Logger {
	return l.With(Pool(id))
}

// WithPair возвращает логгер с полем pair
func (l *Logger) WithPair(pair string) *Logger {
	return l.With(Pair(pair))
}

// Sugar возвращает sugared логгер для printf-style логирования
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер
// ============================================================

// InitGlobalLogger инициализирует глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер (лениво создаёт дефолтный)
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// Глобальные функции логирования

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }

// ============================================================
// Конструкторы полей для доменных сущностей
// ============================================================

// Instance - поле instance_id
func Instance(id string) zap.Field { return zap.String("instance_id", id) }

// Pool - поле pool_id
func Pool(id string) zap.Field { return zap.String("pool_id", id) }

// Pair - поле pair (торговая пара)
func Pair(pair string) zap.Field { return zap.String("pair", pair) }

// TradeID - поле trade_id
func TradeID(id int64) zap.Field { return zap.Int64("trade_id", id) }

// Action - поле action (вид действия)
func Action(kind string) zap.Field { return zap.String("action", kind) }

// Price - поле price
func Price(p float64) zap.Field { return zap.Float64("price", p) }

// PNL - поле pnl
func PNL(v float64) zap.Field { return zap.Float64("pnl", v) }

// State - поле state
func State(s string) zap.Field { return zap.String("state", s) }

// Latency - поле latency_ms
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - поле request_id
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// UserID - поле user_id
func UserID(id string) zap.Field { return zap.String("user_id", id) }

// Component - поле component
func Component(name string) zap.Field { return zap.String("component", name) }

// Переэкспорт стандартных конструкторов zap для удобства

func String(key, val string) zap.Field        { return zap.String(key, val) }
func Int(key string, val int) zap.Field       { return zap.Int(key, val) }
func Int64(key string, val int64) zap.Field   { return zap.Int64(key, val) }
func Float64(key string, v float64) zap.Field { return zap.Float64(key, v) }
func Bool(key string, val bool) zap.Field     { return zap.Bool(key, val) }
func Err(err error) zap.Field                 { return zap.Error(err) }
func Any(key string, val interface{}) zap.Field {
	return zap.Any(key, val)
}
