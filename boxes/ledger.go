package boxes

import (
	"errors"
	"fmt"

	"kitpack/bom"
)

var (
	// ErrQuantityExceeded means a scan would push a requirement past its
	// required unit count.
	ErrQuantityExceeded = errors.New("boxes: required quantity already satisfied")
	// ErrDuplicateScan means the barcode was already counted against the
	// ledger. Callers treat it as an idempotent no-op.
	ErrDuplicateScan = errors.New("boxes: barcode already counted")
	ErrNotScanned    = errors.New("boxes: barcode was not counted in this box")
)

// Progress is the unit tally of one requirement.
type Progress struct {
	ComponentID   int64  `json:"component_id"`
	ComponentName string `json:"component_name"`
	Required      int64  `json:"required"`
	Counted       int64  `json:"counted"`
	Satisfied     bool   `json:"satisfied"`
}

// Ledger tracks which barcodes have been counted against which
// requirements of one kit tree. Packet components contribute their
// packet quantity in units per scan; every other scan counts one unit.
// The ledger is rebuilt from the barcode registry on session resume, so
// it never needs its own persistence.
type Ledger struct {
	tree   *bom.Tree
	counts map[int64]int64   // component id -> counted units
	scans  map[int64][]int64 // component id -> counted barcode ids, scan order
	owner  map[int64]int64   // barcode id -> component id it counted for
}

func NewLedger(tree *bom.Tree) *Ledger {
	return &Ledger{
		tree:   tree,
		counts: make(map[int64]int64),
		scans:  make(map[int64][]int64),
		owner:  make(map[int64]int64),
	}
}

func (l *Ledger) units(n bom.Node) int64 {
	if n.IsPacket && n.PacketQuantity > 1 {
		return n.PacketQuantity
	}
	return 1
}

// ApplyScan counts barcodeID against the requirement for componentID.
// A repeat of an already-counted barcode returns ErrDuplicateScan and
// changes nothing; overshoot returns ErrQuantityExceeded.
func (l *Ledger) ApplyScan(componentID, barcodeID int64) error {
	n, ok := l.tree.Node(componentID)
	if !ok {
		return bom.ErrUnknownComponent
	}
	if _, counted := l.owner[barcodeID]; counted {
		return ErrDuplicateScan
	}
	units := l.units(n)
	if l.counts[componentID]+units > n.RequiredQuantity {
		return fmt.Errorf("%w: component %d has %d of %d", ErrQuantityExceeded,
			componentID, l.counts[componentID], n.RequiredQuantity)
	}
	l.counts[componentID] += units
	l.scans[componentID] = append(l.scans[componentID], barcodeID)
	l.owner[barcodeID] = componentID
	return nil
}

// ApplyUndo reverses a counted scan.
func (l *Ledger) ApplyUndo(barcodeID int64) (int64, error) {
	componentID, ok := l.owner[barcodeID]
	if !ok {
		return 0, ErrNotScanned
	}
	n, _ := l.tree.Node(componentID)
	l.counts[componentID] -= l.units(n)
	kept := l.scans[componentID][:0]
	for _, id := range l.scans[componentID] {
		if id != barcodeID {
			kept = append(kept, id)
		}
	}
	l.scans[componentID] = kept
	delete(l.owner, barcodeID)
	return componentID, nil
}

// BarcodesFor returns the barcodes counted against a requirement in
// scan order.
func (l *Ledger) BarcodesFor(componentID int64) []int64 {
	return append([]int64(nil), l.scans[componentID]...)
}

// Counted returns the unit tally for one requirement.
func (l *Ledger) Counted(componentID int64) int64 {
	return l.counts[componentID]
}

// OwnerOf reports which requirement a barcode was counted against.
func (l *Ledger) OwnerOf(barcodeID int64) (int64, bool) {
	id, ok := l.owner[barcodeID]
	return id, ok
}

// filled reports whether the requirement's own unit count is complete,
// ignoring children.
func (l *Ledger) filled(componentID int64) bool {
	n, ok := l.tree.Node(componentID)
	if !ok {
		return false
	}
	return l.counts[componentID] >= n.RequiredQuantity
}

// Satisfied reports whether a requirement is complete: its own units
// are all counted and every sub-requirement is satisfied too.
func (l *Ledger) Satisfied(componentID int64) bool {
	if !l.filled(componentID) {
		return false
	}
	for _, child := range l.tree.Children(componentID) {
		if !l.Satisfied(child) {
			return false
		}
	}
	return true
}

// Complete reports whether every requirement in the tree is satisfied.
func (l *Ledger) Complete() bool {
	for _, root := range l.tree.Roots() {
		if !l.Satisfied(root) {
			return false
		}
	}
	return true
}

// Remaining returns how many units a requirement still needs.
func (l *Ledger) Remaining(componentID int64) int64 {
	n, ok := l.tree.Node(componentID)
	if !ok {
		return 0
	}
	remaining := n.RequiredQuantity - l.counts[componentID]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns per-requirement progress in BOM pre-order.
func (l *Ledger) Snapshot() []Progress {
	flat := l.tree.Flatten()
	out := make([]Progress, 0, len(flat))
	for _, fr := range flat {
		out = append(out, Progress{
			ComponentID:   fr.ComponentID,
			ComponentName: fr.ComponentName,
			Required:      fr.RequiredQuantity,
			Counted:       l.counts[fr.ComponentID],
			Satisfied:     l.Satisfied(fr.ComponentID),
		})
	}
	return out
}

// Unmet returns the requirements still missing units, in pre-order.
func (l *Ledger) Unmet() []Progress {
	unmet := make([]Progress, 0)
	for _, p := range l.Snapshot() {
		if p.Counted < p.Required {
			unmet = append(unmet, p)
		}
	}
	return unmet
}
