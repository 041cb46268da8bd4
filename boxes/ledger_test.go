package boxes

import (
	"errors"
	"testing"

	"kitpack/bom"
)

func requirement(id, catID int64, name string, qty int64) bom.Node {
	return bom.Node{
		ComponentID:      id,
		ComponentName:    name,
		CategoryID:       catID,
		CategoryName:     name + " cat",
		RequiredQuantity: qty,
		BarcodePrefix:    "PX",
		PacketQuantity:   1,
	}
}

// motorKitTree: Motor(1, qty 1) with Bracket(2, qty 2) and
// Screw Pack(3, packet of 4, qty 4) underneath, plus Casing(4, qty 1).
func motorKitTree(t *testing.T) *bom.Tree {
	t.Helper()
	tree := bom.NewTree()
	if err := tree.AddRoot(requirement(1, 10, "Motor", 1)); err != nil {
		t.Fatal(err)
	}
	if err := tree.AddRoot(requirement(4, 40, "Casing", 1)); err != nil {
		t.Fatal(err)
	}
	if err := tree.AddChild(1, requirement(2, 20, "Bracket", 2)); err != nil {
		t.Fatal(err)
	}
	screws := requirement(3, 30, "Screw Pack", 4)
	screws.IsPacket = true
	screws.PacketQuantity = 4
	if err := tree.AddChild(1, screws); err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestLedgerCountsAndIdempotency(t *testing.T) {
	ledger := NewLedger(motorKitTree(t))

	if err := ledger.ApplyScan(2, 100); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := ledger.ApplyScan(2, 100); !errors.Is(err, ErrDuplicateScan) {
		t.Fatalf("expected ErrDuplicateScan, got %v", err)
	}
	if got := ledger.Counted(2); got != 1 {
		t.Fatalf("duplicate must not double count, got %d", got)
	}
	if err := ledger.ApplyScan(2, 101); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := ledger.ApplyScan(2, 102); !errors.Is(err, ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
}

func TestLedgerPacketCountsPacketQuantityUnits(t *testing.T) {
	ledger := NewLedger(motorKitTree(t))

	// One packet scan fills all 4 required screw units.
	if err := ledger.ApplyScan(3, 200); err != nil {
		t.Fatalf("packet scan: %v", err)
	}
	if got := ledger.Counted(3); got != 4 {
		t.Fatalf("expected 4 units from one packet, got %d", got)
	}
	// A second packet would overshoot.
	if err := ledger.ApplyScan(3, 201); !errors.Is(err, ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
}

func TestLedgerSatisfiedIsConjunction(t *testing.T) {
	ledger := NewLedger(motorKitTree(t))

	if err := ledger.ApplyScan(1, 300); err != nil {
		t.Fatalf("scan motor: %v", err)
	}
	// Motor's own count is full but children are not.
	if ledger.Satisfied(1) {
		t.Fatalf("parent must not be satisfied while children are open")
	}

	for i, barcodeID := range []int64{301, 302} {
		if err := ledger.ApplyScan(2, barcodeID); err != nil {
			t.Fatalf("scan bracket %d: %v", i, err)
		}
	}
	if err := ledger.ApplyScan(3, 303); err != nil {
		t.Fatalf("scan screws: %v", err)
	}
	if !ledger.Satisfied(1) {
		t.Fatalf("parent must be satisfied once children complete")
	}
	if ledger.Complete() {
		t.Fatalf("box is not complete while the casing is missing")
	}

	if err := ledger.ApplyScan(4, 304); err != nil {
		t.Fatalf("scan casing: %v", err)
	}
	if !ledger.Complete() {
		t.Fatalf("all requirements satisfied, box must be complete")
	}
	if unmet := ledger.Unmet(); len(unmet) != 0 {
		t.Fatalf("expected no unmet requirements, got %v", unmet)
	}
}

func TestLedgerUndoReopensRequirement(t *testing.T) {
	ledger := NewLedger(motorKitTree(t))

	if err := ledger.ApplyScan(4, 400); err != nil {
		t.Fatalf("scan: %v", err)
	}
	componentID, err := ledger.ApplyUndo(400)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if componentID != 4 {
		t.Fatalf("undo must report the owning requirement, got %d", componentID)
	}
	if ledger.Counted(4) != 0 {
		t.Fatalf("undo must release the unit")
	}
	// The same barcode can be counted again afterwards.
	if err := ledger.ApplyScan(4, 400); err != nil {
		t.Fatalf("re-scan after undo: %v", err)
	}
	if _, err := ledger.ApplyUndo(999); !errors.Is(err, ErrNotScanned) {
		t.Fatalf("expected ErrNotScanned, got %v", err)
	}
}

func TestLedgerSnapshotPreOrder(t *testing.T) {
	ledger := NewLedger(motorKitTree(t))
	snap := ledger.Snapshot()

	wantOrder := []int64{1, 2, 3, 4}
	if len(snap) != len(wantOrder) {
		t.Fatalf("expected %d rows, got %d", len(wantOrder), len(snap))
	}
	for i, want := range wantOrder {
		if snap[i].ComponentID != want {
			t.Fatalf("position %d: expected component %d, got %d", i, want, snap[i].ComponentID)
		}
	}
}
