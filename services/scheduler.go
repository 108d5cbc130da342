// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"stars-host/repository"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Enqueuer accepts games for generation. It reports false when the game
// was not queued, for instance because it already is.
type Enqueuer interface {
	Enqueue(gameID uint) bool
}

// GenerationScheduler queues active games whose next automatic generation
// time has passed.
type GenerationScheduler struct {
	repo     repository.Repository
	queue    Enqueuer
	interval time.Duration
	log      *zap.Logger
	sched    gocron.Scheduler
	now      func() time.Time
}

func NewGenerationScheduler(repo repository.Repository, queue Enqueuer, interval time.Duration, log *zap.Logger) *GenerationScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &GenerationScheduler{repo: repo, queue: queue, interval: interval, log: log, now: time.Now}
}

// Start runs EnqueueDue every interval until Shutdown.
func (s *GenerationScheduler) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.EnqueueDue(context.Background())
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule generation job: %w", err)
	}

	sched.Start()
	s.sched = sched
	s.log.Info("⏱️ generation scheduler started", zap.Duration("interval", s.interval))
	return nil
}

func (s *GenerationScheduler) Shutdown() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// EnqueueDue queues every due game and returns how many were accepted.
func (s *GenerationScheduler) EnqueueDue(ctx context.Context) int {
	games, err := s.repo.DueGames(ctx, s.now())
	if err != nil {
		s.log.Error("[Scheduler] failed to load due games", zap.Error(err))
		return 0
	}

	queued := 0
	for _, g := range games {
		if s.queue.Enqueue(g.ID) {
			queued++
			s.log.Info("✅ queued automatic generation", zap.Uint("game_id", g.ID), zap.String("game", g.Name))
		}
	}
	return queued
}
