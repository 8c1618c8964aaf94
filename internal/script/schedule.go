package script

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Schedule runs job on the cron spec (standard five fields or a descriptor
// such as "@every 10m") until ctx is done. A run still in progress when the
// next one is due makes that one skip. Job errors are logged, never fatal to
// the schedule.
func Schedule(ctx context.Context, spec string, job func(context.Context) error, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "schedule").Str("spec", spec).Logger()
	cl := cronLogger{logger: logger}

	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() {
		if err := job(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled run failed")
		}
	}); err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info().Msg("schedule started")
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("schedule stopped")
	return nil
}
