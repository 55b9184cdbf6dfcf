package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"latchain/config"
	"latchain/core"
	"latchain/native/rewards"
	"latchain/services/indexer"
)

const (
	metricsRefreshSpec = "@every 15s"
	jobTimeout         = 5 * time.Minute
)

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// newScheduler registers the gauge refresh and, when configured, the periodic
// parquet export.
func newScheduler(ctx context.Context, node *core.Node, idx *indexer.Indexer, cfg config.IndexerConfig, logger *slog.Logger) (*cron.Cron, error) {
	clog := cronLogger{logger: logger.With("component", "scheduler")}
	c := cron.New(cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)), cron.WithLogger(clog))

	if _, err := c.AddFunc(metricsRefreshSpec, func() {
		if err := node.RefreshMetrics(); err != nil && !errors.Is(err, rewards.ErrNotInitialized) {
			clog.Error(err, "metrics refresh failed")
		}
	}); err != nil {
		return nil, err
	}

	spec := strings.TrimSpace(cfg.ExportSchedule)
	if idx == nil || spec == "" {
		return c, nil
	}
	if _, err := c.AddFunc(spec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		path, err := idx.ExportParquet(jobCtx, cfg.ExportDir, time.Now())
		if err != nil {
			clog.Error(err, "scheduled export failed")
			return
		}
		logger.Info("scheduled export written", slog.String("path", path))
	}); err != nil {
		return nil, err
	}
	return c, nil
}
