package utils

import (
	"time"
)

// time.go - календарные границы для суточных лимитов и форматирование аптайма

// DateLayout - формат ключа торгового дня
const DateLayout = "2006-01-02"

// OKXTimestampLayout - формат OK-ACCESS-TIMESTAMP (UTC, миллисекунды)
const OKXTimestampLayout = "2006-01-02T15:04:05.000Z"

// GetDayStartIn возвращает начало календарного дня t в зоне loc.
// nil loc означает локальную зону процесса.
//
// Пример:
//
//	// t: 2024-01-15 14:30:45 +03:00
//	start := GetDayStartIn(t, nil)
//	// start: 2024-01-15 00:00:00 +03:00
func GetDayStartIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DateKey возвращает дату в виде 2006-01-02
func DateKey(t time.Time, loc *time.Location) string {
	return GetDayStartIn(t, loc).Format(DateLayout)
}

// OKXTimestamp форматирует момент для заголовка подписи OKX
func OKXTimestamp(t time.Time) string {
	return t.UTC().Format(OKXTimestampLayout)
}

// FormatDuration форматирует продолжительность в человекочитаемый формат
//
// Примеры:
//   - "45s"
//   - "5m30s"
//   - "2h15m0s"
//   - "72h0m0s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Truncate(time.Second).String()
}
