package utils

import (
	"strings"
)

// symbol.go - приведение тикеров из алертов к instId OKX
//
// Источник сигнала присылает тикеры в своем формате (BINANCE:BTCUSDT, BTCUSDT.P, btc/usdt),
// а биржа ждет BTC-USDT-SWAP. Функции здесь чистые и не ходят в сеть.

// DerivativeSuffixes - суффиксы, по которым символ уже считается instId деривативa
var DerivativeSuffixes = []string{"-SWAP", "-FUTURES"}

// QuoteCurrencies - котируемые валюты, длинные раньше коротких (USDT до USD)
var QuoteCurrencies = []string{"USDT", "USDC", "USD"}

// symbolAliases - явные соответствия для основных пар
var symbolAliases = map[string]string{
	"BTCUSDT":  "BTC-USDT-SWAP",
	"ETHUSDT":  "ETH-USDT-SWAP",
	"ADAUSDT":  "ADA-USDT-SWAP",
	"SOLUSDT":  "SOL-USDT-SWAP",
	"DOTUSDT":  "DOT-USDT-SWAP",
	"LINKUSDT": "LINK-USDT-SWAP",
	"LTCUSDT":  "LTC-USDT-SWAP",
	"BCHUSDT":  "BCH-USDT-SWAP",
	"XBTUSDT":  "BTC-USDT-SWAP",
}

// NormalizeSymbol переводит внешний тикер в instId бессрочного свопа.
//
// Порядок:
//  1. отрезается префикс биржи до первого ":"
//  2. символ с суффиксом -SWAP/-FUTURES возвращается как есть
//  3. поиск в таблице алиасов
//  4. {base}{quote} превращается в {base}-{quote}-SWAP
//  5. иначе raw возвращается без изменений и recognized=false
//
// Для распознанных символов функция идемпотентна.
func NormalizeSymbol(raw string) (instrument string, recognized bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	if s == "" {
		return raw, false
	}

	for _, suffix := range DerivativeSuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return s, true
		}
	}

	compact := compactSymbol(strings.TrimSuffix(s, ".P"))

	if alias, ok := symbolAliases[compact]; ok {
		return alias, true
	}

	for _, quote := range QuoteCurrencies {
		if base, ok := strings.CutSuffix(compact, quote); ok && base != "" && isAlnum(base) {
			return base + "-" + quote + "-SWAP", true
		}
	}

	return raw, false
}

// BaseCurrency возвращает базовую валюту instId (BTC для BTC-USDT-SWAP)
func BaseCurrency(instrument string) string {
	base, _, _ := strings.Cut(instrument, "-")
	return base
}

// compactSymbol убирает разделители: btc/usdt, BTC_USDT, BTC-USDT -> BTCUSDT
func compactSymbol(s string) string {
	return strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
