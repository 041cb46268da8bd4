package bom

import (
	"errors"
	"fmt"
)

// MaxDepth is the deepest level a requirement may sit at. Level 1 is a
// top-level kit requirement; adding a child to a level-3 node is rejected.
const MaxDepth = 3

var (
	ErrDepthExceeded      = errors.New("bom: maximum nesting depth exceeded")
	ErrDuplicateCategory  = errors.New("bom: category already present at this sibling level")
	ErrDuplicateComponent = errors.New("bom: component already present in tree")
	ErrUnknownParent      = errors.New("bom: parent component not in tree")
	ErrUnknownComponent   = errors.New("bom: component not in tree")
	ErrHasChildren        = errors.New("bom: component has sub-components; removal requires cascade")
)

// Node is the payload of one requirement in a kit BOM.
type Node struct {
	ComponentID      int64
	ComponentName    string
	CategoryID       int64
	CategoryName     string
	RequiredQuantity int64
	BarcodePrefix    string
	IsPacket         bool
	PacketQuantity   int64
}

// FlatRequirement is one entry of the pre-order flattened view.
// ParentComponentID is nil for top-level requirements.
type FlatRequirement struct {
	Node
	Level             int
	ParentComponentID *int64
}

// Tree is an arena of requirement nodes indexed by component id. Child
// ids are kept in stored order; the parent index is the reverse edge
// map maintained alongside, never a live pointer.
type Tree struct {
	nodes    map[int64]Node
	children map[int64][]int64
	parents  map[int64]int64
	roots    []int64
}

func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[int64]Node),
		children: make(map[int64][]int64),
		parents:  make(map[int64]int64),
	}
}

// Len returns the number of requirements in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the payload for a component id.
func (t *Tree) Node(componentID int64) (Node, bool) {
	n, ok := t.nodes[componentID]
	return n, ok
}

// Parent returns the parent component id, if the node has one.
func (t *Tree) Parent(componentID int64) (int64, bool) {
	p, ok := t.parents[componentID]
	return p, ok
}

// Children returns the ordered child component ids of a node.
func (t *Tree) Children(componentID int64) []int64 {
	return append([]int64(nil), t.children[componentID]...)
}

// Roots returns the ordered top-level component ids.
func (t *Tree) Roots() []int64 {
	return append([]int64(nil), t.roots...)
}

// Depth returns the 1-based level of a node, or 0 if absent.
func (t *Tree) Depth(componentID int64) int {
	if _, ok := t.nodes[componentID]; !ok {
		return 0
	}
	depth := 1
	for {
		parent, ok := t.parents[componentID]
		if !ok {
			return depth
		}
		componentID = parent
		depth++
	}
}

// AddRoot appends a top-level requirement.
func (t *Tree) AddRoot(n Node) error {
	if _, exists := t.nodes[n.ComponentID]; exists {
		return ErrDuplicateComponent
	}
	for _, id := range t.roots {
		if t.nodes[id].CategoryID == n.CategoryID {
			return fmt.Errorf("%w: category %d", ErrDuplicateCategory, n.CategoryID)
		}
	}
	t.nodes[n.ComponentID] = n
	t.roots = append(t.roots, n.ComponentID)
	return nil
}

// AddChild appends a requirement under parentID. The new node lands at
// the parent's level + 1 and must stay within MaxDepth; its category
// must be unique among its new siblings.
func (t *Tree) AddChild(parentID int64, n Node) error {
	if _, ok := t.nodes[parentID]; !ok {
		return ErrUnknownParent
	}
	if _, exists := t.nodes[n.ComponentID]; exists {
		return ErrDuplicateComponent
	}
	if t.Depth(parentID) >= MaxDepth {
		return ErrDepthExceeded
	}
	for _, sib := range t.children[parentID] {
		if t.nodes[sib].CategoryID == n.CategoryID {
			return fmt.Errorf("%w: category %d", ErrDuplicateCategory, n.CategoryID)
		}
	}
	t.nodes[n.ComponentID] = n
	t.children[parentID] = append(t.children[parentID], n.ComponentID)
	t.parents[n.ComponentID] = parentID
	return nil
}

// Remove deletes a requirement. A node with children is only removed
// when cascade is true, in which case the whole subtree goes.
func (t *Tree) Remove(componentID int64, cascade bool) error {
	if _, ok := t.nodes[componentID]; !ok {
		return ErrUnknownComponent
	}
	if len(t.children[componentID]) > 0 && !cascade {
		return ErrHasChildren
	}
	for _, child := range t.Children(componentID) {
		if err := t.Remove(child, true); err != nil {
			return err
		}
	}
	if parent, ok := t.parents[componentID]; ok {
		t.children[parent] = removeID(t.children[parent], componentID)
		delete(t.parents, componentID)
	} else {
		t.roots = removeID(t.roots, componentID)
	}
	delete(t.children, componentID)
	delete(t.nodes, componentID)
	return nil
}

// Flatten produces the pre-order view: roots in stored order, each
// followed by its subtree, Level incremented per edge.
func (t *Tree) Flatten() []FlatRequirement {
	flat := make([]FlatRequirement, 0, len(t.nodes))
	for _, root := range t.roots {
		flat = t.flattenInto(flat, root, 1, nil)
	}
	return flat
}

func (t *Tree) flattenInto(flat []FlatRequirement, id int64, level int, parent *int64) []FlatRequirement {
	flat = append(flat, FlatRequirement{
		Node:              t.nodes[id],
		Level:             level,
		ParentComponentID: parent,
	})
	parentID := id
	for _, child := range t.children[id] {
		flat = t.flattenInto(flat, child, level+1, &parentID)
	}
	return flat
}

// Rebuild reconstructs a tree from a pre-order flattened sequence.
// Flatten and Rebuild round-trip losslessly.
func Rebuild(flat []FlatRequirement) (*Tree, error) {
	t := NewTree()
	for _, fr := range flat {
		if fr.Level < 1 || fr.Level > MaxDepth {
			return nil, fmt.Errorf("bom: invalid level %d for component %d", fr.Level, fr.ComponentID)
		}
		if fr.Level == 1 {
			if fr.ParentComponentID != nil {
				return nil, fmt.Errorf("bom: top-level component %d has a parent", fr.ComponentID)
			}
			if err := t.AddRoot(fr.Node); err != nil {
				return nil, err
			}
			continue
		}
		if fr.ParentComponentID == nil {
			return nil, fmt.Errorf("bom: nested component %d has no parent", fr.ComponentID)
		}
		if err := t.AddChild(*fr.ParentComponentID, fr.Node); err != nil {
			return nil, err
		}
		if got := t.Depth(fr.ComponentID); got != fr.Level {
			return nil, fmt.Errorf("bom: component %d level mismatch: flat says %d, tree says %d", fr.ComponentID, fr.Level, got)
		}
	}
	return t, nil
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
