package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeBarcodeRender renders a barcode image to disk.
	TaskTypeBarcodeRender = "barcode:render"
	// TaskTypeLedgerIntegrity re-verifies ledger/quantity agreement.
	TaskTypeLedgerIntegrity = "ledger:integrity"
)

// BarcodeRenderPayload names the barcode value to render.
type BarcodeRenderPayload struct {
	Barcode string `json:"barcode"`
}

// NewBarcodeRenderTask constructs an Asynq task for one barcode.
func NewBarcodeRenderTask(payload BarcodeRenderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBarcodeRender, data), nil
}

// NewLedgerIntegrityTask constructs the nightly integrity task. It carries no
// payload; the handler scans the whole ledger.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLedgerIntegrity, nil)
}
