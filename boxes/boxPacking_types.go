package boxes

import (
	"errors"
	"fmt"
	"time"
)

// StartInput opens or resumes the packing session of a box.
type StartInput struct {
	BoxBarcode string `json:"box_barcode"`
	KitID      int64  `json:"kit_id"`
}

// ScanInput applies one item scan to an open session.
type ScanInput struct {
	BoxBarcode  string `json:"box_barcode"`
	ItemBarcode string `json:"item_barcode"`
}

// PackedItem is one barcode counted into the box.
type PackedItem struct {
	BarcodeID     int64      `json:"barcode_id"`
	Value         string     `json:"value"`
	ComponentID   int64      `json:"component_id"`
	ComponentName string     `json:"component_name"`
	CountedFor    int64      `json:"counted_for_component_id"`
	BoxedAt       *time.Time `json:"boxed_at,omitempty"`
}

// StatusView is the full reconstructed state of a packing session.
type StatusView struct {
	SessionID  int64        `json:"session_id"`
	BoxBarcode string       `json:"box_barcode"`
	KitID      int64        `json:"kit_id"`
	Status     string       `json:"status"`
	Version    int64        `json:"version"`
	Existing   bool         `json:"existing_session,omitempty"`
	Complete   bool         `json:"complete"`
	Progress   []Progress   `json:"progress"`
	Unmet      []Progress   `json:"unmet,omitempty"`
	Items      []PackedItem `json:"items"`
}

var (
	ErrSessionNotFound = errors.New("boxes: no packing session for this box")
	ErrSessionClosed   = errors.New("boxes: packing session is already completed")
	// ErrBoxAlreadyPacked rejects starting a new session against a box
	// barcode that finished a previous run.
	ErrBoxAlreadyPacked = errors.New("boxes: box barcode was already packed")
	ErrNotABox          = errors.New("boxes: barcode is not a box barcode")
	ErrKitMismatch      = errors.New("boxes: open session belongs to a different kit")
	// ErrConcurrentModification means the session version moved under a
	// writer. The caller retries with fresh state.
	ErrConcurrentModification = errors.New("boxes: session modified concurrently")
	// ErrIncomplete is matched by errors.Is for completion attempts with
	// unmet requirements.
	ErrIncomplete = errors.New("boxes: box requirements not satisfied")
)

// IncompleteError carries the unmet requirements of a rejected
// completion.
type IncompleteError struct {
	Unmet []Progress
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("box requirements not satisfied: %d requirements open", len(e.Unmet))
}

func (e *IncompleteError) Unwrap() error { return ErrIncomplete }
