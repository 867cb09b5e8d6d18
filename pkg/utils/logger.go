package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig - параметры логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Output      string // путь к файлу; пусто = stderr
	Development bool   // дублировать вывод в stdout, caller + stacktrace

	MaxSizeBytes int64 // ротация по размеру (lumberjack), 0 = 10MB
	MaxBackups   int
}

// Logger - обертка над zap с доменными хелперами
type Logger struct {
	*zap.Logger
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitLogger создает логгер. Ошибка открытия файла не фатальна: пишем в stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	sink := openSink(cfg)
	if cfg.Development && cfg.Output != "" {
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.Lock(os.Stdout))
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{Logger: zap.New(core, opts...)}
}

// openSink выбирает куда писать: обычный файл через lumberjack, остальное напрямую
func openSink(cfg LogConfig) zapcore.WriteSyncer {
	if cfg.Output == "" {
		return zapcore.Lock(os.Stderr)
	}

	if info, err := os.Stat(cfg.Output); err == nil && !info.Mode().IsRegular() {
		// /dev/null, pipe и т.п. ротировать нельзя
		f, err := os.OpenFile(cfg.Output, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			return zapcore.Lock(os.Stderr)
		}
		return zapcore.Lock(f)
	}

	// lumberjack откроет файл лениво, поэтому проверяем доступность заранее
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: cannot open %s, falling back to stderr: %v\n", cfg.Output, err)
		return zapcore.Lock(os.Stderr)
	}
	f.Close()

	maxMB := int(cfg.MaxSizeBytes / (1024 * 1024))
	if maxMB <= 0 {
		maxMB = 10
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Clean(cfg.Output),
		MaxSize:    maxMB,
		MaxBackups: cfg.MaxBackups,
	})
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
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
// Глобальный логгер
// ============================================================

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный при первом вызове
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

func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает новый логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

func (l *Logger) WithExchange(name string) *Logger {
	return l.With(Exchange(name))
}

// WithRequestID привязывает логгер к одному сигналу
func (l *Logger) WithRequestID(id string) *Logger {
	return l.With(RequestID(id))
}

func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// ============================================================
// Конструкторы полей
// ============================================================

func Exchange(name string) zap.Field     { return zap.String("exchange", name) }
func Symbol(symbol string) zap.Field     { return zap.String("symbol", symbol) }
func Instrument(instID string) zap.Field { return zap.String("instrument", instID) }
func OrderID(id string) zap.Field        { return zap.String("order_id", id) }
func Action(action string) zap.Field     { return zap.String("action", action) }
func Side(side string) zap.Field         { return zap.String("side", side) }
func State(state string) zap.Field       { return zap.String("state", state) }
func Step(step string) zap.Field         { return zap.String("step", step) }
func RequestID(id string) zap.Field      { return zap.String("request_id", id) }
func Component(name string) zap.Field    { return zap.String("component", name) }
func ErrorCode(code string) zap.Field    { return zap.String("error_code", code) }
func Leverage(lev int) zap.Field         { return zap.Int("leverage", lev) }

// Price и Volume пишутся строкой, чтобы не терять точность decimal
func Price(p decimal.Decimal) zap.Field  { return zap.String("price", p.String()) }
func Volume(v decimal.Decimal) zap.Field { return zap.String("volume", v.String()) }

// Latency - длительность в миллисекундах
func Latency(d time.Duration) zap.Field {
	return zap.Float64("latency_ms", float64(d.Microseconds())/1000)
}

// Переэкспорт базовых конструкторов zap
var (
	String = zap.String
	Int    = zap.Int
	Int64  = zap.Int64
	Bool   = zap.Bool
	Err    = zap.Error
	Any    = zap.Any
)
