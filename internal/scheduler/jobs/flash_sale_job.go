package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mallify-hub/internal/service"
)

const (
	sweepTimeout   = 30 * time.Second
	metricsTimeout = 10 * time.Second
)

type FlashSaleJob struct {
	flashSaleService *service.FlashSaleService
	logger           *zap.Logger
}

func NewFlashSaleJob(flashSaleService *service.FlashSaleService, logger *zap.Logger) *FlashSaleJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FlashSaleJob{
		flashSaleService: flashSaleService,
		logger:           logger,
	}
}

func (j *FlashSaleJob) Sweep() {
	if j == nil || j.flashSaleService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := j.flashSaleService.Sweep(ctx); err != nil {
		j.logger.Warn("flash sale sweep failed", zap.Error(err))
	}
}

func (j *FlashSaleJob) RefreshStatusGauge() {
	if j == nil || j.flashSaleService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), metricsTimeout)
	defer cancel()

	if err := j.flashSaleService.RefreshStatusGauge(ctx); err != nil {
		j.logger.Warn("refresh flash sale status metrics failed", zap.Error(err))
	}
}
