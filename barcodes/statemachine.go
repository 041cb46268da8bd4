package barcodes

import (
	"errors"
	"fmt"

	"kitpack/models"
)

// Event is one barcode lifecycle action.
type Event string

const (
	EventScan   Event = "SCAN"
	EventUnscan Event = "UNSCAN"
	EventBox    Event = "BOX"
	EventUnbox  Event = "UNBOX"
)

// ErrInvalidTransition is matched by errors.Is for every rejected
// lifecycle transition.
var ErrInvalidTransition = errors.New("barcodes: invalid status transition")

// InvalidTransitionError reports which event was rejected at which
// status.
type InvalidTransitionError struct {
	From  string
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("barcodes: cannot %s a %s barcode", e.Event, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// transitions is the full lifecycle: CREATED -> SCANNED -> BOXED with
// the two rollback edges. Everything absent from the table is illegal.
var transitions = map[string]map[Event]string{
	models.BarcodeStatusCreated: {
		EventScan: models.BarcodeStatusScanned,
	},
	models.BarcodeStatusScanned: {
		EventUnscan: models.BarcodeStatusCreated,
		EventBox:    models.BarcodeStatusBoxed,
	},
	models.BarcodeStatusBoxed: {
		EventUnbox: models.BarcodeStatusScanned,
	},
}

// Transition returns the status reached by applying ev at current.
func Transition(current string, ev Event) (string, error) {
	next, ok := transitions[current][ev]
	if !ok {
		return "", &InvalidTransitionError{From: current, Event: ev}
	}
	return next, nil
}
