package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"signaltrader/internal/bot"
	"signaltrader/internal/models"
	"signaltrader/internal/notify"
	"signaltrader/pkg/utils"
)

const (
	defaultNotificationCapacity = 100
	maxNotificationLimit        = 500
	notifyQueueSize             = 64
	notifySendTimeout           = 10 * time.Second
)

// NotificationService - журнал последних уведомлений и их доставка.
//
// Отвечает за:
// - Построение уведомлений из итогов саг
// - Хранение последних N уведомлений в памяти (журнал не сохраняется)
// - Broadcast уведомлений через WebSocket
// - Асинхронную отправку во внешний нотифайер (Telegram)
//
// Типы уведомлений:
// - OPEN: позиция открыта
// - SIMULATED: торговля выключена, ордер симулирован
// - REJECTED: отклонено риск-лимитами
// - ERROR: ошибка входного ордера
// - STOP_FAIL: не удалось поставить SL/TP
type NotificationService struct {
	mu       sync.RWMutex
	ring     []*models.Notification
	next     int
	count    int
	wsHub    WebSocketBroadcaster
	notifier notify.Notifier

	queue    chan *models.Notification
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	log      *utils.Logger
}

// NewNotificationService создает сервис. capacity - размер журнала,
// notifier может быть nil.
func NewNotificationService(capacity int, notifier notify.Notifier) *NotificationService {
	if capacity <= 0 {
		capacity = defaultNotificationCapacity
	}
	return &NotificationService{
		ring:     make([]*models.Notification, capacity),
		notifier: notifier,
		queue:    make(chan *models.Notification, notifyQueueSize),
		stopCh:   make(chan struct{}),
		log:      utils.L().WithComponent("notifications"),
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast уведомлений.
//
// Вызывается после инициализации Hub в main.go:
//
//	notifService := service.NewNotificationService(100, telegram)
//	notifService.SetWebSocketHub(wsHub)
func (s *NotificationService) SetWebSocketHub(hub WebSocketBroadcaster) {
	s.wsHub = hub
}

// Start запускает отправку во внешний нотифайер
func (s *NotificationService) Start() {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go s.sendLoop()
}

// Stop останавливает отправку. Уже поставленные в очередь сообщения
// отправляются до выхода.
func (s *NotificationService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *NotificationService) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case n := <-s.queue:
			s.deliver(n)
		case <-s.stopCh:
			for {
				select {
				case n := <-s.queue:
					s.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (s *NotificationService) deliver(n *models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
	defer cancel()
	if err := s.notifier.Send(ctx, notify.Format(n)); err != nil {
		s.log.Warn("failed to deliver notification",
			utils.String("notifier", s.notifier.Name()),
			utils.String("type", n.Type),
			utils.Err(err))
	}
}

// CreateNotification сохраняет уведомление в журнал, рассылает подписчикам
// и ставит в очередь нотифайера. Не блокируется.
func (s *NotificationService) CreateNotification(notif *models.Notification) {
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.ring[s.next] = notif
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.mu.Unlock()

	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}

	if s.notifier == nil {
		return
	}
	select {
	case s.queue <- notif:
	default:
		bot.RecordBufferOverflow("notifications")
		s.log.Warn("notification queue full, dropping", utils.String("type", notif.Type))
	}
}

// PublishResult - реализация bot.ResultPublisher
func (s *NotificationService) PublishResult(result *models.SagaResult) {
	for _, n := range NotificationsForResult(result) {
		s.CreateNotification(n)
	}
}

// GetNotifications возвращает уведомления, новые сверху.
//
// Параметры:
// - types: фильтр по типам (например: ["OPEN", "ERROR"]), пустой - все типы
// - limit: максимальное количество записей (по умолчанию 100, не больше 500)
func (s *NotificationService) GetNotifications(types []string, limit int) []*models.Notification {
	if limit <= 0 {
		limit = defaultNotificationCapacity
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	filter := make(map[string]bool, len(types))
	for _, t := range types {
		normalized := strings.ToUpper(strings.TrimSpace(t))
		if isValidNotificationType(normalized) {
			filter[normalized] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Notification, 0, min(limit, s.count))
	for i := 1; i <= s.count && len(out) < limit; i++ {
		n := s.ring[(s.next-i+len(s.ring))%len(s.ring)]
		if len(filter) > 0 && !filter[n.Type] {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ClearNotifications очищает журнал уведомлений
func (s *NotificationService) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ring {
		s.ring[i] = nil
	}
	s.next, s.count = 0, 0
}

// GetNotificationCount возвращает количество уведомлений в журнале
func (s *NotificationService) GetNotificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func isValidNotificationType(notifType string) bool {
	switch notifType {
	case models.NotificationTypeOpen, models.NotificationTypeSimulated,
		models.NotificationTypeRejected, models.NotificationTypeError,
		models.NotificationTypeStopFail:
		return true
	}
	return false
}

// NotificationsForResult строит уведомления по итогу саги: одно на исход
// и по одному на каждый не поставленный SL/TP.
func NotificationsForResult(r *models.SagaResult) []*models.Notification {
	meta := map[string]interface{}{
		"request_id": r.RequestID,
		"instrument": r.Instrument,
		"side":       r.Side,
		"size":       r.Size.String(),
		"leverage":   r.Leverage,
	}
	if r.OrderID != "" {
		meta["order_id"] = r.OrderID
	}
	if r.ErrorCode != "" {
		meta["error_code"] = r.ErrorCode
	}

	head := &models.Notification{Meta: meta}
	summary := fmt.Sprintf("%s %s %s", r.Action, r.Instrument, r.Size)
	switch {
	case r.Success && r.Simulated:
		head.Type, head.Severity = models.NotificationTypeSimulated, models.SeverityInfo
		head.Message = summary + " (simulated)"
	case r.Success:
		head.Type, head.Severity = models.NotificationTypeOpen, models.SeverityInfo
		head.Message = summary
	case bot.IsRiskReason(r.ErrorCode):
		head.Type, head.Severity = models.NotificationTypeRejected, models.SeverityWarn
		head.Message = fmt.Sprintf("%s rejected: %s", summary, r.Error)
	default:
		head.Type, head.Severity = models.NotificationTypeError, models.SeverityError
		head.Message = fmt.Sprintf("%s failed: %s", summary, r.Error)
	}

	out := []*models.Notification{head}
	for _, sub := range r.SubOrders {
		if sub.OK {
			continue
		}
		out = append(out, &models.Notification{
			Type:     models.NotificationTypeStopFail,
			Severity: models.SeverityWarn,
			Message:  fmt.Sprintf("%s for %s not placed: %s", sub.Kind, r.Instrument, sub.Error),
			Meta: map[string]interface{}{
				"request_id": r.RequestID,
				"instrument": r.Instrument,
				"order_id":   r.OrderID,
				"error_code": sub.ErrorCode,
			},
		})
	}
	return out
}
