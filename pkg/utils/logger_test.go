package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferLogger пишет JSON в буфер
func bufferLogger(level zapcore.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey: "message",
			LevelKey:   "level",
		}),
		zapcore.AddSync(&buf),
		level,
	)
	return &Logger{Logger: zap.New(core)}, &buf
}

func TestInitLogger_Formats(t *testing.T) {
	tests := []LogConfig{
		{},
		{Level: "info", Format: "json"},
		{Level: "debug", Format: "text"},
		{Level: "debug", Format: "text", Development: true},
	}

	for _, cfg := range tests {
		if logger := InitLogger(cfg); logger == nil || logger.Logger == nil {
			t.Fatalf("InitLogger(%+v) returned nil", cfg)
		}
	}
}

func TestInitLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading.log")

	logger := InitLogger(LogConfig{
		Level:        "info",
		Format:       "json",
		Output:       path,
		MaxSizeBytes: 1024 * 1024,
		MaxBackups:   2,
	})
	logger.Info("signal received", Instrument("ETH-USDT-SWAP"), RequestID("req-1"))
	logger.Sync()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("Log entry is not valid JSON: %v", err)
	}
	if entry["instrument"] != "ETH-USDT-SWAP" || entry["request_id"] != "req-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp key")
	}
}

func TestInitLogger_InvalidFileOutput(t *testing.T) {
	// fallback на stderr, без паники
	logger := InitLogger(LogConfig{
		Level:  "info",
		Output: "/nonexistent/directory/log.txt",
	})
	if logger == nil {
		t.Fatal("InitLogger returned nil for invalid output")
	}
	logger.Info("still works")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGlobalLogger(t *testing.T) {
	globalMu.Lock()
	prev := globalLogger
	globalLogger = nil
	globalMu.Unlock()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	logger := L()
	if logger == nil {
		t.Fatal("L returned nil")
	}
	if GetGlobalLogger() != logger {
		t.Error("default global logger must be created once")
	}

	custom := InitGlobalLogger(LogConfig{Level: "warn"})
	if L() != custom {
		t.Error("InitGlobalLogger did not replace the global logger")
	}
}

func TestLogger_ContextHelpers(t *testing.T) {
	logger, buf := bufferLogger(zapcore.InfoLevel)

	logger.WithComponent("position_manager").
		WithExchange("okx").
		WithRequestID("req-42").
		Info("saga started")
	logger.Sync()

	output := buf.String()
	for _, want := range []string{`"component":"position_manager"`, `"exchange":"okx"`, `"request_id":"req-42"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in %s", want, output)
		}
	}
}

func TestLogger_WithDoesNotLeakFields(t *testing.T) {
	logger, buf := bufferLogger(zapcore.InfoLevel)

	_ = logger.WithRequestID("req-1")
	logger.Info("parent")
	logger.Sync()

	if strings.Contains(buf.String(), "req-1") {
		t.Errorf("child fields leaked into parent: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := bufferLogger(zapcore.WarnLevel)

	logger.Info("hidden")
	logger.Warn("visible")
	logger.Sync()

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "visible") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFieldConstructors(t *testing.T) {
	logger, buf := bufferLogger(zapcore.InfoLevel)

	logger.Info("test",
		Symbol("BTCUSDT"),
		Instrument("BTC-USDT-SWAP"),
		OrderID("order-456"),
		Action("open_long"),
		Price(decimal.NewFromFloat(25000.50)),
		Volume(decimal.RequireFromString("0.5")),
		Side("buy"),
		State("SubmittingEntry"),
		Step("attach_stops"),
		Latency(15500*time.Microsecond),
		ErrorCode("51008"),
		Leverage(5),
	)
	logger.Sync()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	expected := map[string]interface{}{
		"symbol":     "BTCUSDT",
		"instrument": "BTC-USDT-SWAP",
		"order_id":   "order-456",
		"action":     "open_long",
		"price":      "25000.5",
		"volume":     "0.5",
		"side":       "buy",
		"state":      "SubmittingEntry",
		"step":       "attach_stops",
		"latency_ms": 15.5,
		"error_code": "51008",
		"leverage":   float64(5),
	}
	for key, want := range expected {
		if entry[key] != want {
			t.Errorf("field %s = %v, want %v", key, entry[key], want)
		}
	}
}

func BenchmarkLogger_With(b *testing.B) {
	logger := InitLogger(LogConfig{
		Level:  "info",
		Format: "json",
		Output: "/dev/null",
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithRequestID("req").With(Instrument("BTC-USDT-SWAP")).Info("message")
	}
}
