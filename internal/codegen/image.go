package codegen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

// WriteImage renders a scannable PNG keyed by the barcode value and returns
// the file path. The image is a presentation artifact only; it is regenerated
// whenever the barcode value changes and plays no part in uniqueness.
func WriteImage(value, dir string) (string, error) {
	if value == "" {
		return "", errors.New("codegen: barcode value required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("codegen: create image dir: %w", err)
	}
	path := filepath.Join(dir, value+".png")
	if err := qrcode.WriteFile(value, qrcode.Medium, 256, path); err != nil {
		return "", fmt.Errorf("codegen: render barcode image: %w", err)
	}
	return path, nil
}
