package notify

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signaltrader/internal/models"
	"signaltrader/pkg/utils"
)

// Notifier доставляет текстовые уведомления оператору
type Notifier interface {
	Send(ctx context.Context, msg string) error
	Name() string
}

// messageSender - часть tgbot.BotAPI, которой пользуется Telegram
type messageSender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram - пассивный нотифайер в один чат
type Telegram struct {
	bot    messageSender
	chatID int64
}

// NewTelegram подключается к Bot API. Токен проверяется запросом getMe.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Send отправляет сообщение. Bot API не принимает context, поэтому
// отмененный ctx только предотвращает новую отправку.
func (t *Telegram) Send(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Log - заглушка без Telegram: пишет уведомления в лог
type Log struct {
	log *utils.Logger
}

func NewLog() *Log {
	return &Log{log: utils.L().WithComponent("notify")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(_ context.Context, msg string) error {
	l.log.Info("notification", utils.String("text", msg))
	return nil
}

var typeEmoji = map[string]string{
	models.NotificationTypeOpen:      "✅",
	models.NotificationTypeSimulated: "🧪",
	models.NotificationTypeRejected:  "⛔️",
	models.NotificationTypeError:     "❗️",
	models.NotificationTypeStopFail:  "⚠️",
}

// Format собирает текст сообщения из уведомления
func Format(n *models.Notification) string {
	var b strings.Builder
	if emoji, ok := typeEmoji[n.Type]; ok {
		b.WriteString(emoji)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] %s", n.Type, n.Message)

	for _, key := range []string{"instrument", "side", "size", "leverage", "order_id", "error_code", "request_id"} {
		if v, ok := n.Meta[key]; ok && v != nil && fmt.Sprint(v) != "" {
			fmt.Fprintf(&b, "\n%s: %v", key, v)
		}
	}
	if !n.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\n%s", n.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return b.String()
}
