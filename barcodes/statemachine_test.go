package barcodes

import (
	"errors"
	"testing"

	"kitpack/models"
)

func TestTransitionLifecycle(t *testing.T) {
	cases := []struct {
		from  string
		event Event
		want  string
	}{
		{models.BarcodeStatusCreated, EventScan, models.BarcodeStatusScanned},
		{models.BarcodeStatusScanned, EventBox, models.BarcodeStatusBoxed},
		{models.BarcodeStatusScanned, EventUnscan, models.BarcodeStatusCreated},
		{models.BarcodeStatusBoxed, EventUnbox, models.BarcodeStatusScanned},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.event)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.from, tc.event, err)
		}
		if got != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.from, tc.event, tc.want, got)
		}
	}
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	cases := []struct {
		from  string
		event Event
	}{
		{models.BarcodeStatusCreated, EventBox},
		{models.BarcodeStatusCreated, EventUnscan},
		{models.BarcodeStatusCreated, EventUnbox},
		{models.BarcodeStatusScanned, EventScan},
		{models.BarcodeStatusScanned, EventUnbox},
		{models.BarcodeStatusBoxed, EventScan},
		{models.BarcodeStatusBoxed, EventUnscan},
		{models.BarcodeStatusBoxed, EventBox},
	}
	for _, tc := range cases {
		_, err := Transition(tc.from, tc.event)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s %s: expected ErrInvalidTransition, got %v", tc.from, tc.event, err)
		}
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("%s %s: expected InvalidTransitionError", tc.from, tc.event)
		}
		if ite.From != tc.from || ite.Event != tc.event {
			t.Fatalf("error carries wrong detail: %+v", ite)
		}
	}
}
