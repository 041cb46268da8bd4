package boxes

import (
	"errors"
	"fmt"

	"kitpack/bom"
	"kitpack/models"
)

var (
	ErrNotComponentBarcode   = errors.New("boxes: barcode is not bound to a component")
	ErrAlreadyConsumed       = errors.New("boxes: barcode already belongs to another box")
	ErrNoMatchingRequirement = errors.New("boxes: kit has no requirement for this item")
)

// ChildMatchPolicy picks the requirement a category-matched scan counts
// against when more than one slot in the tree shares the category.
type ChildMatchPolicy func(candidates []bom.FlatRequirement) bom.FlatRequirement

// ChildMatchPreOrder resolves ties by BOM pre-order: the first slot in
// flattened order wins.
func ChildMatchPreOrder(candidates []bom.FlatRequirement) bom.FlatRequirement {
	return candidates[0]
}

// MatchKind says how a scan was bound to a requirement.
type MatchKind string

const (
	// MatchComponent is the direct case: the scanned component itself is
	// a requirement of the kit.
	MatchComponent MatchKind = "COMPONENT"
	// MatchCategory is the slot case: the component is not named by the
	// BOM but its category fills an open child slot.
	MatchCategory MatchKind = "CATEGORY"
)

// Match is a resolved scan: which requirement it counts against.
type Match struct {
	ComponentID int64
	Kind        MatchKind
}

// Classify decides what a scanned barcode means for the box being
// packed. It never mutates anything; the caller applies the returned
// match to the ledger and the registry.
//
// Outcomes:
//   - ErrDuplicateScan for a barcode already counted into this box
//   - ErrAlreadyConsumed for a barcode reserved for or boxed into a
//     different box
//   - a component match when the scanned component is a requirement
//   - a category match for the first open slot sharing the category,
//     ties resolved by policy
//   - ErrNoMatchingRequirement otherwise
func Classify(tree *bom.Tree, ledger *Ledger, b models.Barcode, componentCategoryID int64, boxBarcodeID int64, policy ChildMatchPolicy) (Match, error) {
	if b.ObjectType != models.ObjectTypeComponent {
		return Match{}, fmt.Errorf("%w: %s", ErrNotComponentBarcode, b.Value)
	}
	if b.BoxBarcodeID != nil {
		if *b.BoxBarcodeID == boxBarcodeID {
			return Match{}, ErrDuplicateScan
		}
		return Match{}, fmt.Errorf("%w: %s", ErrAlreadyConsumed, b.Value)
	}
	if b.Status == models.BarcodeStatusBoxed {
		return Match{}, fmt.Errorf("%w: %s", ErrAlreadyConsumed, b.Value)
	}

	return matchRequirement(tree, ledger, b.ObjectID, componentCategoryID, policy)
}

// matchRequirement binds a component scan to a requirement: the
// component itself when the BOM names it, otherwise the first open slot
// sharing its category. Session replay uses it directly, bypassing the
// status checks that only apply to live scans.
func matchRequirement(tree *bom.Tree, ledger *Ledger, componentID, categoryID int64, policy ChildMatchPolicy) (Match, error) {
	if _, ok := tree.Node(componentID); ok {
		return Match{ComponentID: componentID, Kind: MatchComponent}, nil
	}

	if policy == nil {
		policy = ChildMatchPreOrder
	}
	open := make([]bom.FlatRequirement, 0)
	sameCategory := false
	for _, fr := range tree.Flatten() {
		if fr.CategoryID != categoryID {
			continue
		}
		sameCategory = true
		if ledger.Remaining(fr.ComponentID) > 0 {
			open = append(open, fr)
		}
	}
	if len(open) > 0 {
		return Match{ComponentID: policy(open).ComponentID, Kind: MatchCategory}, nil
	}
	if sameCategory {
		return Match{}, fmt.Errorf("%w: category slots are full", ErrQuantityExceeded)
	}
	return Match{}, fmt.Errorf("%w: component %d", ErrNoMatchingRequirement, componentID)
}
