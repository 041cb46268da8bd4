package bom

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/uptrace/bun"

	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/sqlite"
	"kitpack/models"
)

var (
	ErrKitNotFound = errors.New("bom: kit not found")
	// ErrKitLocked is returned for structural BOM edits while a packing
	// session against the kit is still OPEN.
	ErrKitLocked      = errors.New("bom: kit has open packing sessions")
	ErrComponentInUse = errors.New("bom: component is referenced elsewhere")
)

type bomRow struct {
	ComponentID       int64  `bun:"component_id"`
	ComponentName     string `bun:"component_name"`
	CategoryID        int64  `bun:"category_id"`
	CategoryName      string `bun:"category_name"`
	ParentComponentID *int64 `bun:"parent_component_id"`
	RequiredQuantity  int64  `bun:"required_quantity"`
	BarcodePrefix     string `bun:"barcode_prefix"`
	IsPacket          bool   `bun:"is_packet"`
	PacketQuantity    int64  `bun:"packet_quantity"`
}

// LoadKitTree loads the full BOM of a kit in one read transaction.
func LoadKitTree(ctx context.Context, db *sqlite.DB, kitID int64) (*Tree, error) {
	var tree *Tree
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		tree, err = LoadKitTreeTx(ctx, tx, kitID)
		return err
	})
	return tree, err
}

// LoadKitTreeTx builds the requirement tree from kit_components rows
// inside the caller transaction. Rows are attached in sibling position
// order; children whose parent row has not been seen yet are retried
// until the set drains, so row ordering across levels does not matter.
func LoadKitTreeTx(ctx context.Context, tx bun.Tx, kitID int64) (*Tree, error) {
	if err := kitExistsTx(ctx, tx, kitID); err != nil {
		return nil, err
	}

	rows := make([]bomRow, 0)
	err := tx.NewRaw(`
SELECT kc.component_id, c.name AS component_name, kc.category_id, cat.name AS category_name,
       kc.parent_component_id, kc.required_quantity, kc.barcode_prefix,
       c.is_packet, c.packet_quantity
FROM kit_components kc
JOIN components c ON c.id = kc.component_id
JOIN categories cat ON cat.id = kc.category_id
WHERE kc.kit_id = ?
ORDER BY kc.position, kc.id`, kitID).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	tree := NewTree()
	pending := rows
	for len(pending) > 0 {
		next := pending[:0:0]
		progressed := false
		for _, row := range pending {
			n := Node{
				ComponentID:      row.ComponentID,
				ComponentName:    row.ComponentName,
				CategoryID:       row.CategoryID,
				CategoryName:     row.CategoryName,
				RequiredQuantity: row.RequiredQuantity,
				BarcodePrefix:    row.BarcodePrefix,
				IsPacket:         row.IsPacket,
				PacketQuantity:   row.PacketQuantity,
			}
			switch {
			case row.ParentComponentID == nil:
				if err := tree.AddRoot(n); err != nil {
					return nil, fmt.Errorf("kit %d component %d: %w", kitID, row.ComponentID, err)
				}
				progressed = true
			default:
				if _, ok := tree.Node(*row.ParentComponentID); !ok {
					next = append(next, row)
					continue
				}
				if err := tree.AddChild(*row.ParentComponentID, n); err != nil {
					return nil, fmt.Errorf("kit %d component %d: %w", kitID, row.ComponentID, err)
				}
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("kit %d: %d kit_components rows have no reachable parent", kitID, len(next))
		}
		pending = next
	}
	return tree, nil
}

// Requirements returns the flattened BOM view of a kit.
func Requirements(ctx context.Context, db *sqlite.DB, kitID int64) (KitRequirements, error) {
	var out KitRequirements
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var kit models.Kit
		if err := tx.NewSelect().Model(&kit).Where("id = ?", kitID).Limit(1).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrKitNotFound
			}
			return err
		}
		tree, err := LoadKitTreeTx(ctx, tx, kitID)
		if err != nil {
			return err
		}
		out = KitRequirements{
			KitID:        kit.ID,
			KitName:      kit.Name,
			Requirements: ViewsFromFlat(tree.Flatten()),
		}
		return nil
	})
	return out, err
}

// ListKits returns all kits ordered by name.
func ListKits(ctx context.Context, db *sqlite.DB) ([]models.Kit, error) {
	kits := make([]models.Kit, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&kits).OrderExpr("name, id").Scan(ctx)
	})
	return kits, err
}

// CreateKit inserts a new empty kit.
func CreateKit(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, name, description string) (models.Kit, error) {
	var kit models.Kit
	name = strings.TrimSpace(name)
	if name == "" {
		return kit, fmt.Errorf("kit name is required")
	}
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		kit = models.Kit{Name: name, Description: strings.TrimSpace(description)}
		if _, err := tx.NewInsert().Model(&kit).Exec(ctx); err != nil {
			return err
		}
		return aud.Write(ctx, tx, actorID, audit.ActionKitEdit, "kit", strconv.FormatInt(kit.ID, 10), nil, kit)
	})
	return kit, err
}

// AddComponent adds a requirement to a kit, either top-level or nested
// under ParentComponentID. The component itself is created inline when
// no ComponentID is given; the category is resolved by name and created
// on first use. Structure rules are enforced through the in-memory tree
// before the row is written.
func AddComponent(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, input AddComponentInput) (RequirementView, error) {
	var view RequirementView
	if input.RequiredQuantity < 1 {
		return view, fmt.Errorf("required quantity must be at least 1")
	}
	prefix := strings.ToUpper(strings.TrimSpace(input.BarcodePrefix))
	if prefix == "" {
		return view, fmt.Errorf("barcode prefix is required")
	}

	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureKitEditableTx(ctx, tx, input.KitID); err != nil {
			return err
		}

		component, err := resolveComponentTx(ctx, tx, input.Component)
		if err != nil {
			return err
		}

		tree, err := LoadKitTreeTx(ctx, tx, input.KitID)
		if err != nil {
			return err
		}
		node := Node{
			ComponentID:      component.ID,
			ComponentName:    component.Name,
			CategoryID:       component.CategoryID,
			CategoryName:     input.Component.Category,
			RequiredQuantity: input.RequiredQuantity,
			BarcodePrefix:    prefix,
			IsPacket:         component.IsPacket,
			PacketQuantity:   component.PacketQuantity,
		}
		if input.ParentComponentID > 0 {
			err = tree.AddChild(input.ParentComponentID, node)
		} else {
			err = tree.AddRoot(node)
		}
		if err != nil {
			return err
		}

		position, err := nextSiblingPositionTx(ctx, tx, input.KitID, input.ParentComponentID)
		if err != nil {
			return err
		}
		kc := models.KitComponent{
			KitID:            input.KitID,
			ComponentID:      component.ID,
			CategoryID:       component.CategoryID,
			RequiredQuantity: input.RequiredQuantity,
			BarcodePrefix:    prefix,
			Position:         position,
		}
		if input.ParentComponentID > 0 {
			parent := input.ParentComponentID
			kc.ParentComponentID = &parent
		}
		if _, err := tx.NewInsert().Model(&kc).Exec(ctx); err != nil {
			return err
		}

		level := tree.Depth(component.ID)
		view = RequirementView{
			ComponentID:       component.ID,
			ComponentName:     component.Name,
			CategoryID:        component.CategoryID,
			CategoryName:      node.CategoryName,
			RequiredQuantity:  input.RequiredQuantity,
			BarcodePrefix:     prefix,
			IsPacket:          component.IsPacket,
			PacketQuantity:    component.PacketQuantity,
			Level:             level,
			ParentComponentID: kc.ParentComponentID,
		}
		return aud.Write(ctx, tx, actorID, audit.ActionKitEdit, "kit_component", strconv.FormatInt(kc.ID, 10), nil, kc)
	})
	return view, err
}

// UpdateComponentQuantity changes the required quantity of one BOM row.
func UpdateComponentQuantity(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, kitID, componentID, quantity int64) error {
	if quantity < 1 {
		return fmt.Errorf("required quantity must be at least 1")
	}
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureKitEditableTx(ctx, tx, kitID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE kit_components SET required_quantity = ? WHERE kit_id = ? AND component_id = ?`,
			quantity, kitID, componentID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrUnknownComponent
		}
		return aud.Write(ctx, tx, actorID, audit.ActionKitEdit, "kit_component",
			fmt.Sprintf("%d/%d", kitID, componentID), nil,
			map[string]int64{"required_quantity": quantity})
	})
}

// RemoveComponent removes a requirement from a kit. A requirement with
// sub-requirements needs cascade, which removes the whole subtree.
// With deleteGlobally the component rows themselves are deleted too,
// which fails with ErrComponentInUse when another kit or a barcode
// still references them.
func RemoveComponent(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, kitID, componentID int64, cascade, deleteGlobally bool) error {
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureKitEditableTx(ctx, tx, kitID); err != nil {
			return err
		}
		tree, err := LoadKitTreeTx(ctx, tx, kitID)
		if err != nil {
			return err
		}
		removed := subtreeIDs(tree, componentID)
		if err := tree.Remove(componentID, cascade); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM kit_components WHERE kit_id = ? AND component_id IN (?)`,
			kitID, bun.In(removed)); err != nil {
			return err
		}

		if deleteGlobally {
			for _, id := range removed {
				if err := deleteComponentGloballyTx(ctx, tx, id); err != nil {
					return err
				}
			}
		}
		return aud.Write(ctx, tx, actorID, audit.ActionKitEdit, "kit_component",
			fmt.Sprintf("%d/%d", kitID, componentID),
			map[string]any{"removed_component_ids": removed, "delete_globally": deleteGlobally}, nil)
	})
}

func kitExistsTx(ctx context.Context, tx bun.Tx, kitID int64) error {
	var count int
	if err := tx.NewRaw(`SELECT COUNT(1) FROM kits WHERE id = ?`, kitID).Scan(ctx, &count); err != nil {
		return err
	}
	if count == 0 {
		return ErrKitNotFound
	}
	return nil
}

func ensureKitEditableTx(ctx context.Context, tx bun.Tx, kitID int64) error {
	if err := kitExistsTx(ctx, tx, kitID); err != nil {
		return err
	}
	var open int
	err := tx.NewRaw(`SELECT COUNT(1) FROM packing_sessions WHERE kit_id = ? AND status = ?`,
		kitID, models.SessionStatusOpen).Scan(ctx, &open)
	if err != nil {
		return err
	}
	if open > 0 {
		return ErrKitLocked
	}
	return nil
}

func resolveComponentTx(ctx context.Context, tx bun.Tx, input ComponentInput) (models.Component, error) {
	var component models.Component
	if input.ComponentID > 0 {
		err := tx.NewSelect().Model(&component).Where("id = ?", input.ComponentID).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return component, ErrUnknownComponent
		}
		return component, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return component, fmt.Errorf("component name is required")
	}
	categoryID, err := resolveCategoryTx(ctx, tx, input.Category)
	if err != nil {
		return component, err
	}
	packetQty := input.PacketQuantity
	if !input.IsPacket || packetQty < 1 {
		packetQty = 1
	}
	component = models.Component{
		Name:           name,
		CategoryID:     categoryID,
		Description:    strings.TrimSpace(input.Description),
		IsPacket:       input.IsPacket,
		PacketQuantity: packetQty,
	}
	_, err = tx.NewInsert().Model(&component).Exec(ctx)
	return component, err
}

func resolveCategoryTx(ctx context.Context, tx bun.Tx, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("category name is required")
	}
	var category models.Category
	err := tx.NewSelect().Model(&category).Where("name = ?", name).Limit(1).Scan(ctx)
	if err == nil {
		return category.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	category = models.Category{Name: name}
	if _, err := tx.NewInsert().Model(&category).Exec(ctx); err != nil {
		return 0, err
	}
	return category.ID, nil
}

func nextSiblingPositionTx(ctx context.Context, tx bun.Tx, kitID, parentComponentID int64) (int64, error) {
	var max int64
	var err error
	if parentComponentID > 0 {
		err = tx.NewRaw(`SELECT COALESCE(MAX(position), 0) FROM kit_components WHERE kit_id = ? AND parent_component_id = ?`,
			kitID, parentComponentID).Scan(ctx, &max)
	} else {
		err = tx.NewRaw(`SELECT COALESCE(MAX(position), 0) FROM kit_components WHERE kit_id = ? AND parent_component_id IS NULL`,
			kitID).Scan(ctx, &max)
	}
	return max + 1, err
}

func deleteComponentGloballyTx(ctx context.Context, tx bun.Tx, componentID int64) error {
	var refs int
	err := tx.NewRaw(`
SELECT (SELECT COUNT(1) FROM kit_components WHERE component_id = ?)
     + (SELECT COUNT(1) FROM barcodes WHERE object_type = ? AND object_id = ?)`,
		componentID, models.ObjectTypeComponent, componentID).Scan(ctx, &refs)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: component %d", ErrComponentInUse, componentID)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM components WHERE id = ?`, componentID)
	return err
}

// subtreeIDs collects a node and its descendants in pre-order. Callers
// use it before Remove mutates the tree.
func subtreeIDs(t *Tree, componentID int64) []int64 {
	if _, ok := t.Node(componentID); !ok {
		return nil
	}
	ids := []int64{componentID}
	for _, child := range t.Children(componentID) {
		ids = append(ids, subtreeIDs(t, child)...)
	}
	return ids
}
