package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atlas-wms/atlas-wms/internal/codegen"
	jobmetrics "github.com/atlas-wms/atlas-wms/internal/jobs"
)

// BarcodeRenderer writes barcode images into a configured directory.
type BarcodeRenderer struct {
	logger  *slog.Logger
	dir     string
	metrics *jobmetrics.Metrics
}

// NewBarcodeRenderer constructs BarcodeRenderer. metrics may be nil.
func NewBarcodeRenderer(logger *slog.Logger, dir string, metrics *jobmetrics.Metrics) *BarcodeRenderer {
	return &BarcodeRenderer{logger: logger, dir: dir, metrics: metrics}
}

// Handle processes TaskTypeBarcodeRender tasks.
func (r *BarcodeRenderer) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := r.metrics.Track(TaskTypeBarcodeRender)
	var payload BarcodeRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	if payload.Barcode == "" {
		return tracker.End(asynq.SkipRetry)
	}
	path, err := codegen.WriteImage(payload.Barcode, r.dir)
	if err != nil {
		r.logger.Error("render barcode image",
			slog.String("barcode", payload.Barcode),
			slog.Any("error", err))
		return tracker.End(err)
	}
	r.logger.Info("barcode image rendered",
		slog.String("barcode", payload.Barcode),
		slog.String("path", path))
	return tracker.End(nil)
}
