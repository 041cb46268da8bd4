package scans

import (
	"errors"
	"fmt"
	"strings"

	"kitpack/models"
)

// BatchInput is an assembly scan chain: the parent barcode followed by
// the child barcodes that assemble under it, in scan order. The chain
// is kit-agnostic; the parent's child requirements come from the
// component hierarchy itself.
type BatchInput struct {
	Barcodes []string `json:"barcodes"`
}

// BatchResult reports the applied chain.
type BatchResult struct {
	Parent   models.Barcode   `json:"parent"`
	Children []models.Barcode `json:"children,omitempty"`
}

// MissingChild is one unfilled child requirement of a rejected batch.
type MissingChild struct {
	ComponentID   int64  `json:"component_id"`
	ComponentName string `json:"component_name"`
	Required      int64  `json:"required"`
	Counted       int64  `json:"counted"`
}

var (
	ErrEmptyBatch          = errors.New("scans: batch has no barcodes")
	ErrNotComponentBarcode = errors.New("scans: barcode is not bound to a component")
	ErrNotAChild           = errors.New("scans: component does not assemble under the chain parent")
	// ErrMissingChildScans is matched by errors.Is when a batch leaves
	// child requirements unfilled. The whole batch rolls back.
	ErrMissingChildScans = errors.New("scans: child requirements not fully scanned")
	ErrChildOvershoot    = errors.New("scans: more child scans than the requirement allows")
)

// MissingChildError lists what a rejected batch still needed.
type MissingChildError struct {
	Missing []MissingChild
}

func (e *MissingChildError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		names = append(names, fmt.Sprintf("%s (%d of %d)", m.ComponentName, m.Counted, m.Required))
	}
	return "child requirements not fully scanned: " + strings.Join(names, ", ")
}

func (e *MissingChildError) Unwrap() error { return ErrMissingChildScans }
