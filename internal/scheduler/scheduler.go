package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSweepSpec  = "*/30 * * * * *"
	specStatusMetrics = "0 * * * * *"
)

var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type SweepTask interface {
	Sweep()
}

type MetricsTask interface {
	RefreshStatusGauge()
}

type Deps struct {
	SweepJob   SweepTask
	MetricsJob MetricsTask
}

type Options struct {
	SweepEnabled bool
	SweepSpec    string
}

// ValidateSpec reports whether spec is accepted by the scheduler's parser.
func ValidateSpec(spec string) error {
	if _, err := specParser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

func NewScheduler(deps Deps, opts Options, logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithParser(specParser), cron.WithLocation(time.UTC))

	if opts.SweepEnabled && deps.SweepJob != nil {
		spec := strings.TrimSpace(opts.SweepSpec)
		if spec == "" {
			spec = DefaultSweepSpec
		}
		addFunc(c, spec, "flash_sale.sweep", logger, deps.SweepJob.Sweep)
	}
	if deps.MetricsJob != nil {
		addFunc(c, specStatusMetrics, "flash_sale.status_metrics", logger, deps.MetricsJob.RefreshStatusGauge)
	}

	return c
}

func addFunc(c *cron.Cron, spec string, name string, logger *zap.Logger, fn func()) {
	if c == nil || fn == nil {
		return
	}

	if _, err := c.AddFunc(spec, func() {
		defer recoverJobPanic(name, logger)
		start := time.Now()
		fn()
		logger.Debug("scheduler job finished", zap.String("job", name), zap.Duration("cost", time.Since(start)))
	}); err != nil {
		logger.Error("register scheduler job failed",
			zap.String("job", name),
			zap.String("spec", spec),
			zap.Error(err),
		)
	}
}

func recoverJobPanic(jobName string, logger *zap.Logger) {
	if logger == nil {
		return
	}

	if recovered := recover(); recovered != nil {
		logger.Error("scheduler job panic recovered",
			zap.String("job", jobName),
			zap.Any("panic", recovered),
		)
	}
}
