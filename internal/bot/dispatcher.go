package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"signaltrader/internal/models"
	"signaltrader/pkg/utils"
)

var (
	// ErrQueueFull - очередь сигналов заполнена, вызывающий должен повторить позже
	ErrQueueFull = errors.New("signal queue is full")
	// ErrDispatcherStopped - прием сигналов остановлен
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
)

// SignalHandler обрабатывает сигнал в воркере
type SignalHandler interface {
	Process(ctx context.Context, signal models.TradingSignal) *models.SagaResult
}

// Dispatcher - ограниченный пул воркеров над буферизованной очередью.
// Submit не блокируется: полная очередь означает ErrQueueFull.
// Сага, взятая воркером, доводится до конца даже при остановке.
type Dispatcher struct {
	handler SignalHandler
	queue   chan models.TradingSignal
	workers int

	mu      sync.RWMutex
	stopped bool

	group   *errgroup.Group
	baseCtx context.Context
	started atomic.Bool

	processed int64
	log       *utils.Logger
}

// DispatcherStats - состояние для /status
type DispatcherStats struct {
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
}

// NewDispatcher создает диспетчер
func NewDispatcher(handler SignalHandler, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		handler: handler,
		queue:   make(chan models.TradingSignal, queueSize),
		workers: workers,
		log:     utils.L().WithComponent("dispatcher"),
	}
}

// Start запускает воркеры. Отмена ctx не прерывает уже взятые саги.
// Повторный вызов ничего не делает.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}

	d.baseCtx = context.WithoutCancel(ctx)
	d.group = &errgroup.Group{}
	for i := 0; i < d.workers; i++ {
		workerID := i
		d.group.Go(func() error {
			d.worker(workerID)
			return nil
		})
	}
	d.log.Info("dispatcher started", utils.Int("workers", d.workers), utils.Int("queue_size", cap(d.queue)))
}

// Submit ставит сигнал в очередь без ожидания
func (d *Dispatcher) Submit(signal models.TradingSignal) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}
	if !tryEnqueue(d.queue, signal, "signals") {
		d.log.Warn("signal queue full, rejecting",
			utils.RequestID(signal.RequestID),
			utils.Symbol(signal.Symbol))
		return ErrQueueFull
	}
	UpdateQueueSize(len(d.queue))
	return nil
}

func (d *Dispatcher) worker(id int) {
	for signal := range d.queue {
		UpdateQueueSize(len(d.queue))
		d.run(id, signal)
	}
}

// run выполняет сагу; паника в обработчике не должна убивать воркер
func (d *Dispatcher) run(id int, signal models.TradingSignal) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while processing signal",
				utils.Int("worker", id),
				utils.RequestID(signal.RequestID),
				utils.Any("panic", r))
		}
		atomic.AddInt64(&d.processed, 1)
	}()

	// таймауты задаются на каждый вызов биржи
	d.handler.Process(d.baseCtx, signal)
}

// Shutdown прекращает прием, дожидается обработки очереди или ctx
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	if !d.started.Load() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- d.group.Wait()
	}()

	select {
	case err := <-done:
		d.log.Info("dispatcher drained", utils.Int64("processed", atomic.LoadInt64(&d.processed)))
		return err
	case <-ctx.Done():
		d.log.Warn("dispatcher shutdown timed out", utils.Int("queued", len(d.queue)))
		return ctx.Err()
	}
}

// Stats возвращает состояние очереди
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Queued:    len(d.queue),
		Capacity:  cap(d.queue),
		Workers:   d.workers,
		Processed: atomic.LoadInt64(&d.processed),
	}
}
