package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartLocalSweep runs the sweep in process on a cron spec such as
// "@every 1m". The returned func waits for a running sweep to finish.
func StartLocalSweep(sweeper Sweeper, spec string, ttl time.Duration, logger *zap.Logger) (func(), error) {
	c := robfig.New(robfig.WithChain(robfig.SkipIfStillRunning(robfig.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sweep(ctx, sweeper, time.Now(), ttl, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", spec, err)
	}
	c.Start()
	logger.Info("Local session sweep started", zap.String("spec", spec))
	return func() {
		<-c.Stop().Done()
	}, nil
}
