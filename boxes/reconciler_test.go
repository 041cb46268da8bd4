package boxes

import (
	"errors"
	"testing"

	"kitpack/bom"
	"kitpack/models"
)

func componentBarcode(id int64, value string, componentID int64, status string, boxID *int64) models.Barcode {
	return models.Barcode{
		ID:           id,
		Value:        value,
		ObjectType:   models.ObjectTypeComponent,
		ObjectID:     componentID,
		Status:       status,
		BoxBarcodeID: boxID,
	}
}

func TestClassifyDirectComponentMatch(t *testing.T) {
	tree := motorKitTree(t)
	ledger := NewLedger(tree)

	b := componentBarcode(1, "MTR-1", 1, models.BarcodeStatusCreated, nil)
	match, err := Classify(tree, ledger, b, 10, 500, nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if match.ComponentID != 1 || match.Kind != MatchComponent {
		t.Fatalf("expected direct match on component 1, got %+v", match)
	}
}

func TestClassifyCategoryFillsOpenSlot(t *testing.T) {
	tree := motorKitTree(t)
	ledger := NewLedger(tree)

	// Component 99 is not in the BOM but shares the bracket category 20.
	b := componentBarcode(2, "ALT-1", 99, models.BarcodeStatusScanned, nil)
	match, err := Classify(tree, ledger, b, 20, 500, nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if match.ComponentID != 2 || match.Kind != MatchCategory {
		t.Fatalf("expected category match on bracket slot, got %+v", match)
	}
}

func TestClassifyCategoryFullSlots(t *testing.T) {
	tree := motorKitTree(t)
	ledger := NewLedger(tree)
	if err := ledger.ApplyScan(2, 600); err != nil {
		t.Fatal(err)
	}
	if err := ledger.ApplyScan(2, 601); err != nil {
		t.Fatal(err)
	}

	b := componentBarcode(3, "ALT-2", 99, models.BarcodeStatusScanned, nil)
	if _, err := Classify(tree, ledger, b, 20, 500, nil); !errors.Is(err, ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded when category slots are full, got %v", err)
	}
}

func TestClassifyNoMatchingRequirement(t *testing.T) {
	tree := motorKitTree(t)
	ledger := NewLedger(tree)

	b := componentBarcode(4, "XXX-1", 99, models.BarcodeStatusScanned, nil)
	if _, err := Classify(tree, ledger, b, 999, 500, nil); !errors.Is(err, ErrNoMatchingRequirement) {
		t.Fatalf("expected ErrNoMatchingRequirement, got %v", err)
	}
}

func TestClassifyBoxedStatuses(t *testing.T) {
	tree := motorKitTree(t)
	ledger := NewLedger(tree)
	thisBox := int64(500)
	otherBox := int64(501)

	sameBox := componentBarcode(5, "MTR-2", 1, models.BarcodeStatusBoxed, &thisBox)
	if _, err := Classify(tree, ledger, sameBox, 10, thisBox, nil); !errors.Is(err, ErrDuplicateScan) {
		t.Fatalf("expected ErrDuplicateScan for same-box repeat, got %v", err)
	}

	elsewhere := componentBarcode(6, "MTR-3", 1, models.BarcodeStatusBoxed, &otherBox)
	if _, err := Classify(tree, ledger, elsewhere, 10, thisBox, nil); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed for other-box barcode, got %v", err)
	}

	// An item reserved for another still-open box is just as taken.
	reserved := componentBarcode(7, "MTR-4", 1, models.BarcodeStatusScanned, &otherBox)
	if _, err := Classify(tree, ledger, reserved, 10, thisBox, nil); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed for reserved barcode, got %v", err)
	}
}

func TestClassifyRejectsBoxBarcodeAsItem(t *testing.T) {
	tree := motorKitTree(t)
	ledger := NewLedger(tree)

	b := models.Barcode{ID: 7, Value: "BOX-9", ObjectType: models.ObjectTypeBox, ObjectID: 9, Status: models.BarcodeStatusCreated}
	if _, err := Classify(tree, ledger, b, 0, 500, nil); !errors.Is(err, ErrNotComponentBarcode) {
		t.Fatalf("expected ErrNotComponentBarcode, got %v", err)
	}
}

// Two slots share one category; the earlier slot in pre-order wins.
func TestChildMatchPreOrderTieBreak(t *testing.T) {
	tree := bom.NewTree()
	if err := tree.AddRoot(requirement(1, 10, "Left Assembly", 1)); err != nil {
		t.Fatal(err)
	}
	if err := tree.AddRoot(requirement(2, 11, "Right Assembly", 1)); err != nil {
		t.Fatal(err)
	}
	if err := tree.AddChild(1, requirement(3, 20, "Bolt", 1)); err != nil {
		t.Fatal(err)
	}
	if err := tree.AddChild(2, requirement(4, 20, "Bolt Spare", 1)); err != nil {
		t.Fatal(err)
	}
	ledger := NewLedger(tree)

	b := componentBarcode(8, "BLT-1", 77, models.BarcodeStatusScanned, nil)
	match, err := Classify(tree, ledger, b, 20, 500, ChildMatchPreOrder)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if match.ComponentID != 3 {
		t.Fatalf("pre-order policy must pick the left slot, got %d", match.ComponentID)
	}

	// Once the left slot fills, the right slot takes the next scan.
	if err := ledger.ApplyScan(3, 8); err != nil {
		t.Fatal(err)
	}
	next := componentBarcode(9, "BLT-2", 77, models.BarcodeStatusScanned, nil)
	match, err = Classify(tree, ledger, next, 20, 500, ChildMatchPreOrder)
	if err != nil {
		t.Fatalf("classify second: %v", err)
	}
	if match.ComponentID != 4 {
		t.Fatalf("expected spill to the right slot, got %d", match.ComponentID)
	}
}
