package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/atlas-wms/atlas-wms/internal/jobs"
	"github.com/atlas-wms/atlas-wms/internal/stock"
)

type fakeIntegrityRepo struct {
	mismatches []stock.BalanceMismatch
	err        error
}

func (r *fakeIntegrityRepo) FindBalanceMismatches(ctx context.Context) ([]stock.BalanceMismatch, error) {
	return r.mismatches, r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestIntegrityCheckerReportsMismatches(t *testing.T) {
	repo := &fakeIntegrityRepo{mismatches: []stock.BalanceMismatch{
		{ProductID: 1, Quantity: 5, LedgerStock: 7, LastMovement: time.Now()},
	}}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	checker := NewIntegrityChecker(testLogger(), repo, metrics)

	require.NoError(t, checker.Handle(context.Background(), NewLedgerIntegrityTask()))
}

func TestIntegrityCheckerPropagatesErrors(t *testing.T) {
	repo := &fakeIntegrityRepo{err: errors.New("query failed")}
	checker := NewIntegrityChecker(testLogger(), repo, nil)

	require.Error(t, checker.Handle(context.Background(), NewLedgerIntegrityTask()))
}

func TestBarcodeRendererWritesImage(t *testing.T) {
	dir := t.TempDir()
	renderer := NewBarcodeRenderer(testLogger(), dir, nil)

	task, err := NewBarcodeRenderTask(BarcodeRenderPayload{Barcode: "1234567890123"})
	require.NoError(t, err)
	require.NoError(t, renderer.Handle(context.Background(), task))

	_, err = os.Stat(filepath.Join(dir, "1234567890123.png"))
	require.NoError(t, err)
}

func TestBarcodeRendererSkipsEmptyPayload(t *testing.T) {
	renderer := NewBarcodeRenderer(testLogger(), t.TempDir(), nil)

	task, err := NewBarcodeRenderTask(BarcodeRenderPayload{})
	require.NoError(t, err)
	// malformed work is dropped, not retried
	require.Error(t, renderer.Handle(context.Background(), task))
}
