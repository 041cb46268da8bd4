package bom

import (
	"errors"
	"reflect"
	"testing"
)

func node(id, catID int64, name string, qty int64) Node {
	return Node{
		ComponentID:      id,
		ComponentName:    name,
		CategoryID:       catID,
		CategoryName:     name + "-cat",
		RequiredQuantity: qty,
		BarcodePrefix:    "PX",
		PacketQuantity:   1,
	}
}

func buildThreeLevelTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree()
	if err := tree.AddRoot(node(1, 10, "Assembly", 1)); err != nil {
		t.Fatalf("add root: %v", err)
	}
	if err := tree.AddRoot(node(2, 20, "Casing", 2)); err != nil {
		t.Fatalf("add root: %v", err)
	}
	if err := tree.AddChild(1, node(3, 30, "Bracket", 2)); err != nil {
		t.Fatalf("add child: %v", err)
	}
	if err := tree.AddChild(1, node(4, 40, "Harness", 1)); err != nil {
		t.Fatalf("add child: %v", err)
	}
	if err := tree.AddChild(3, node(5, 50, "Screw Pack", 1)); err != nil {
		t.Fatalf("add grandchild: %v", err)
	}
	return tree
}

func TestFlattenPreOrder(t *testing.T) {
	tree := buildThreeLevelTree(t)
	flat := tree.Flatten()

	wantOrder := []int64{1, 3, 5, 4, 2}
	if len(flat) != len(wantOrder) {
		t.Fatalf("expected %d entries, got %d", len(wantOrder), len(flat))
	}
	for i, want := range wantOrder {
		if flat[i].ComponentID != want {
			t.Fatalf("position %d: expected component %d, got %d", i, want, flat[i].ComponentID)
		}
	}

	wantLevels := []int{1, 2, 3, 2, 1}
	for i, want := range wantLevels {
		if flat[i].Level != want {
			t.Fatalf("component %d: expected level %d, got %d", flat[i].ComponentID, want, flat[i].Level)
		}
	}

	if flat[0].ParentComponentID != nil {
		t.Fatalf("root must have nil parent")
	}
	if flat[1].ParentComponentID == nil || *flat[1].ParentComponentID != 1 {
		t.Fatalf("bracket must have parent 1")
	}
	if flat[2].ParentComponentID == nil || *flat[2].ParentComponentID != 3 {
		t.Fatalf("screw pack must have parent 3")
	}
}

func TestFlattenRebuildRoundTrip(t *testing.T) {
	tree := buildThreeLevelTree(t)
	flat := tree.Flatten()

	rebuilt, err := Rebuild(flat)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !reflect.DeepEqual(flat, rebuilt.Flatten()) {
		t.Fatalf("flatten/rebuild round trip lost structure:\n%v\n%v", flat, rebuilt.Flatten())
	}
}

func TestAddChildRejectsDepthBeyondThree(t *testing.T) {
	tree := buildThreeLevelTree(t)
	// Component 5 sits at level 3 already.
	err := tree.AddChild(5, node(6, 60, "Washer", 1))
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
}

func TestAddRejectsDuplicateCategoryAtSiblingLevel(t *testing.T) {
	tree := buildThreeLevelTree(t)

	if err := tree.AddRoot(node(7, 10, "Assembly v2", 1)); !errors.Is(err, ErrDuplicateCategory) {
		t.Fatalf("expected ErrDuplicateCategory at root level, got %v", err)
	}
	if err := tree.AddChild(1, node(8, 30, "Bracket v2", 1)); !errors.Is(err, ErrDuplicateCategory) {
		t.Fatalf("expected ErrDuplicateCategory at child level, got %v", err)
	}
	// Same category is fine under a different parent.
	if err := tree.AddChild(2, node(9, 30, "Bracket v2", 1)); err != nil {
		t.Fatalf("category reuse under other parent should be legal: %v", err)
	}
}

func TestAddRejectsDuplicateComponent(t *testing.T) {
	tree := buildThreeLevelTree(t)
	if err := tree.AddChild(2, node(3, 99, "Bracket again", 1)); !errors.Is(err, ErrDuplicateComponent) {
		t.Fatalf("expected ErrDuplicateComponent, got %v", err)
	}
}

func TestRemoveRequiresCascadeForParents(t *testing.T) {
	tree := buildThreeLevelTree(t)

	if err := tree.Remove(1, false); !errors.Is(err, ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}
	if err := tree.Remove(1, true); err != nil {
		t.Fatalf("cascade remove: %v", err)
	}
	for _, id := range []int64{1, 3, 4, 5} {
		if _, ok := tree.Node(id); ok {
			t.Fatalf("component %d should be gone after cascade", id)
		}
	}
	if _, ok := tree.Node(2); !ok {
		t.Fatalf("sibling root must survive cascade")
	}
}

func TestRemoveLeafKeepsSiblingOrder(t *testing.T) {
	tree := buildThreeLevelTree(t)
	if err := tree.Remove(3, true); err != nil {
		t.Fatalf("remove: %v", err)
	}
	children := tree.Children(1)
	if len(children) != 1 || children[0] != 4 {
		t.Fatalf("expected remaining child [4], got %v", children)
	}
}

func TestRebuildRejectsCorruptSequences(t *testing.T) {
	parent := int64(999)
	cases := []struct {
		name string
		flat []FlatRequirement
	}{
		{"nested without parent", []FlatRequirement{{Node: node(1, 10, "A", 1), Level: 2}}},
		{"unknown parent", []FlatRequirement{
			{Node: node(1, 10, "A", 1), Level: 1},
			{Node: node(2, 20, "B", 1), Level: 2, ParentComponentID: &parent},
		}},
		{"level out of range", []FlatRequirement{{Node: node(1, 10, "A", 1), Level: 4}}},
	}
	for _, tc := range cases {
		if _, err := Rebuild(tc.flat); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
