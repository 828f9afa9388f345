// Package cron runs the periodic session sweep. Redis-backed deployments use
// an asynq scheduler so only one instance sweeps per tick; single-process
// deployments use an in-process cron.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tailortalk/config"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeSessionSweep = "session:sweep"

// Sweeper removes sessions idle longer than ttl.
type Sweeper interface {
	ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

// SweepPayload is the body of a session:sweep task.
type SweepPayload struct {
	TTLSeconds int64 `json:"ttlSeconds"`
}

func NewSweepTask(ttl time.Duration) (*asynq.Task, error) {
	b, err := json.Marshal(SweepPayload{TTLSeconds: int64(ttl / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSessionSweep, b, asynq.MaxRetry(0)), nil
}

// InitSweepWorker schedules the sweep on the configured spec and runs the
// worker that executes it. The returned func stops both.
func InitSweepWorker(sweeper Sweeper, ttl time.Duration, logger *zap.Logger) (func(), error) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisSweepQueueDB,
	}

	task, err := NewSweepTask(ttl)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   logger.Sugar(),
	})
	// Unique keeps several app instances from enqueueing the same tick.
	if _, err := scheduler.Register(config.AppConfig.SessionSweepInterval, task, asynq.Unique(30*time.Second)); err != nil {
		return nil, fmt.Errorf("register session sweep: %w", err)
	}

	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
		Logger:      logger.Sugar(),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSessionSweep, handleSweepTask(sweeper, time.Now, logger))

	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("start sweep worker: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("start sweep scheduler: %w", err)
	}
	logger.Info("Session sweep worker started", zap.String("spec", config.AppConfig.SessionSweepInterval))

	return func() {
		scheduler.Shutdown()
		srv.Shutdown()
	}, nil
}

func handleSweepTask(sweeper Sweeper, now func() time.Time, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p SweepPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("Invalid session sweep payload", zap.Error(err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return sweep(ctx, sweeper, now(), time.Duration(p.TTLSeconds)*time.Second, logger)
	}
}

func sweep(ctx context.Context, sweeper Sweeper, now time.Time, ttl time.Duration, logger *zap.Logger) error {
	removed, err := sweeper.ExpireStale(ctx, now, ttl)
	if err != nil {
		logger.Error("Session sweep failed", zap.Error(err), zap.Int("removed", removed))
		return err
	}
	if removed > 0 {
		logger.Info("Expired idle sessions", zap.Int("removed", removed))
	}
	return nil
}
