package scans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"kitpack/barcodes"
	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/sqlite"
	"kitpack/models"
)

// childRequirement is one sub-requirement of a chain parent, derived
// from the component hierarchy across every BOM the parent appears in.
type childRequirement struct {
	ComponentID      int64  `bun:"component_id"`
	ComponentName    string `bun:"component_name"`
	RequiredQuantity int64  `bun:"required_quantity"`
	IsPacket         bool   `bun:"is_packet"`
	PacketQuantity   int64  `bun:"packet_quantity"`
}

// childRequirementsTx resolves what assembles under a component,
// independent of any kit context. When kits disagree on a quantity the
// most demanding one wins.
func childRequirementsTx(ctx context.Context, tx bun.Tx, parentComponentID int64) ([]childRequirement, error) {
	reqs := make([]childRequirement, 0)
	err := tx.NewRaw(`
SELECT kc.component_id, c.name AS component_name, MAX(kc.required_quantity) AS required_quantity,
       c.is_packet, c.packet_quantity
FROM kit_components kc
JOIN components c ON c.id = kc.component_id
WHERE kc.parent_component_id = ?
GROUP BY kc.component_id
ORDER BY MIN(kc.position), kc.component_id`, parentComponentID).Scan(ctx, &reqs)
	return reqs, err
}

// SubmitBatch applies an assembly scan chain in one transaction: the
// parent barcode is scanned first, then each child barcode in order,
// linked to the parent. The chain carries no kit context; the parent's
// own sub-requirements decide what the batch must contain. The batch is
// all-or-nothing; if any child requirement of the parent is left short
// the whole chain rolls back with MissingChildError.
//
// A chain for a component without sub-requirements is just the one
// barcode.
func SubmitBatch(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, input BatchInput) (BatchResult, error) {
	var result BatchResult
	if len(input.Barcodes) == 0 {
		return result, ErrEmptyBatch
	}

	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		parent, err := barcodes.ResolveTx(ctx, tx, input.Barcodes[0])
		if err != nil {
			return err
		}
		if parent.ObjectType != models.ObjectTypeComponent {
			return fmt.Errorf("%w: %s", ErrNotComponentBarcode, parent.Value)
		}
		parentName, err := componentNameTx(ctx, tx, parent.ObjectID)
		if err != nil {
			return err
		}
		childReqs, err := childRequirementsTx(ctx, tx, parent.ObjectID)
		if err != nil {
			return err
		}
		if err := barcodes.ApplyEventTx(ctx, tx, &parent, barcodes.EventScan, actorID, nil); err != nil {
			return err
		}

		counted := make(map[int64]int64, len(childReqs))
		children := make([]models.Barcode, 0, len(input.Barcodes)-1)

		for _, value := range input.Barcodes[1:] {
			child, err := barcodes.ResolveTx(ctx, tx, value)
			if err != nil {
				return err
			}
			req, ok := childOf(childReqs, child.ObjectID)
			if !ok {
				return fmt.Errorf("%w: %s does not assemble under %s", ErrNotAChild, child.Value, parentName)
			}
			units := int64(1)
			if req.IsPacket && req.PacketQuantity > 1 {
				units = req.PacketQuantity
			}
			if counted[req.ComponentID]+units > req.RequiredQuantity {
				return fmt.Errorf("%w: %s", ErrChildOvershoot, req.ComponentName)
			}
			counted[req.ComponentID] += units

			if err := barcodes.ApplyEventTx(ctx, tx, &child, barcodes.EventScan, actorID, nil); err != nil {
				return err
			}
			if err := barcodes.LinkParentTx(ctx, tx, child.ID, parent.ID); err != nil {
				return err
			}
			child.ParentBarcodeID = &parent.ID
			children = append(children, child)
		}

		missing := make([]MissingChild, 0)
		for _, req := range childReqs {
			if counted[req.ComponentID] < req.RequiredQuantity {
				missing = append(missing, MissingChild{
					ComponentID:   req.ComponentID,
					ComponentName: req.ComponentName,
					Required:      req.RequiredQuantity,
					Counted:       counted[req.ComponentID],
				})
			}
		}
		if len(missing) > 0 {
			return &MissingChildError{Missing: missing}
		}

		if err := aud.Write(ctx, tx, actorID, audit.ActionBarcodeScan, "scan_batch",
			strconv.FormatInt(parent.ID, 10), nil,
			map[string]any{"parent": parent.Value, "children": len(children)}); err != nil {
			return err
		}
		result = BatchResult{Parent: parent, Children: children}
		return nil
	})
	return result, err
}

func childOf(childReqs []childRequirement, componentID int64) (childRequirement, bool) {
	for _, req := range childReqs {
		if req.ComponentID == componentID {
			return req, true
		}
	}
	return childRequirement{}, false
}

func componentNameTx(ctx context.Context, tx bun.Tx, componentID int64) (string, error) {
	var name string
	err := tx.NewRaw(`SELECT name FROM components WHERE id = ?`, componentID).Scan(ctx, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("component %d not found", componentID)
	}
	return name, err
}

// ScanRecord is one row of the scan history.
type ScanRecord struct {
	BarcodeID     int64      `bun:"barcode_id" json:"barcode_id"`
	Value         string     `bun:"value" json:"value"`
	ComponentID   int64      `bun:"component_id" json:"component_id"`
	ComponentName string     `bun:"component_name" json:"component_name"`
	Status        string     `bun:"status" json:"status"`
	ScannedBy     *int64     `bun:"scanned_by" json:"scanned_by,omitempty"`
	ScannedAt     *time.Time `bun:"scanned_at" json:"scanned_at,omitempty"`
}

// ListRecent returns the latest scans, newest first.
func ListRecent(ctx context.Context, db *sqlite.DB, limit int) ([]ScanRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	records := make([]ScanRecord, 0, limit)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT b.id AS barcode_id, b.value, b.object_id AS component_id, c.name AS component_name,
       b.status, b.scanned_by, b.scanned_at
FROM barcodes b
JOIN components c ON c.id = b.object_id
WHERE b.object_type = ? AND b.scanned_at IS NOT NULL
ORDER BY b.scanned_at DESC, b.id DESC
LIMIT ?`, models.ObjectTypeComponent, limit).Scan(ctx, &records)
	})
	return records, err
}
