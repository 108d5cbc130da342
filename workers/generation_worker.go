// workers/generation_worker.go
package workers

import (
	"context"
	"math"
	"sync"
	"time"

	"stars-host/models"
	"stars-host/services"

	"go.uber.org/zap"
)

// GameRunner runs whichever lifecycle operation a game's state calls for.
type GameRunner interface {
	Run(ctx context.Context, gameID uint) (*models.Turn, error)
}

// RetryPolicy bounds how often a failed generation is attempted again.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factor         float64
}

// Backoff is the wait before attempt number attempt+1, given that attempt
// (1-based) just failed.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(p.InitialBackoff) * math.Pow(factor, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// ShouldRetry reports whether a task that failed its attempt-th try with
// err gets another one.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return err != nil && !services.IsPermanent(err) && attempt < p.MaxAttempts
}

// GenerationTask is one queued request to advance a game.
type GenerationTask struct {
	GameID  uint
	Attempt int
}

// GenerationWorker serves the generation queue with a single goroutine, so
// attempts never overlap.
type GenerationWorker struct {
	runner GameRunner
	policy RetryPolicy
	log    *zap.Logger
	queue  chan GenerationTask

	mu      sync.Mutex
	pending map[uint]bool

	wg sync.WaitGroup
}

func NewGenerationWorker(runner GameRunner, policy RetryPolicy, queueSize int, log *zap.Logger) *GenerationWorker {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &GenerationWorker{
		runner:  runner,
		policy:  policy,
		log:     log,
		queue:   make(chan GenerationTask, queueSize),
		pending: make(map[uint]bool),
	}
}

// Enqueue queues a first attempt for gameID. It returns false if the game
// is already queued, running or waiting for a retry, or the queue is full.
func (w *GenerationWorker) Enqueue(gameID uint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[gameID] {
		return false
	}
	if !w.send(GenerationTask{GameID: gameID, Attempt: 1}) {
		return false
	}
	w.pending[gameID] = true
	return true
}

// finish releases gameID. A game stays pending from Enqueue until its last
// attempt has finished, so a retry never overlaps a fresh request.
func (w *GenerationWorker) finish(gameID uint) {
	w.mu.Lock()
	delete(w.pending, gameID)
	w.mu.Unlock()
}

func (w *GenerationWorker) send(task GenerationTask) bool {
	select {
	case w.queue <- task:
		return true
	default:
		w.log.Warn("generation queue full, dropping task", zap.Uint("game_id", task.GameID), zap.Int("attempt", task.Attempt))
		return false
	}
}

func (w *GenerationWorker) Start(ctx context.Context) {
	w.log.Info("🔁 Starting generation worker", zap.Int("max_attempts", w.policy.MaxAttempts))
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the worker and any pending retries have stopped.
func (w *GenerationWorker) Wait() {
	w.wg.Wait()
}

func (w *GenerationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.queue:
			w.process(ctx, task)
		case <-ctx.Done():
			w.log.Info("⏹️ Generation worker stopped")
			return
		}
	}
}

func (w *GenerationWorker) process(ctx context.Context, task GenerationTask) {
	log := w.log.With(zap.Uint("game_id", task.GameID), zap.Int("attempt", task.Attempt))
	log.Info("🎲 generation started")

	start := time.Now()
	turn, err := w.runner.Run(ctx, task.GameID)
	if err == nil {
		log.Info("✅ generation finished", zap.Int("year", turn.Year), zap.Duration("took", time.Since(start)))
		w.finish(task.GameID)
		return
	}

	if !w.policy.ShouldRetry(task.Attempt, err) {
		log.Error("❌ generation failed, giving up",
			zap.Error(err),
			zap.Bool("permanent", services.IsPermanent(err)),
			zap.Int("max_attempts", w.policy.MaxAttempts))
		w.finish(task.GameID)
		return
	}

	delay := w.policy.Backoff(task.Attempt)
	log.Error("❌ generation failed, will retry", zap.Error(err), zap.Duration("retry_in", delay))
	w.retryAfter(ctx, GenerationTask{GameID: task.GameID, Attempt: task.Attempt + 1}, delay)
}

func (w *GenerationWorker) retryAfter(ctx context.Context, task GenerationTask, delay time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if !w.send(task) {
				w.finish(task.GameID)
			}
		case <-ctx.Done():
			w.finish(task.GameID)
		}
	}()
}

// RunSync attempts gameID in the calling goroutine, retrying per policy.
func (w *GenerationWorker) RunSync(ctx context.Context, gameID uint) (*models.Turn, error) {
	for attempt := 1; ; attempt++ {
		turn, err := w.runner.Run(ctx, gameID)
		if err == nil {
			return turn, nil
		}
		if !w.policy.ShouldRetry(attempt, err) {
			return nil, err
		}
		delay := w.policy.Backoff(attempt)
		w.log.Warn("generation failed, retrying",
			zap.Uint("game_id", gameID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}
