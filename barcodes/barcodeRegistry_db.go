package barcodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/sqlite"
	"kitpack/models"
)

var (
	ErrUnknownBarcode = errors.New("barcodes: barcode not found")
	// ErrStatusConflict means the guarded status update matched no row:
	// another writer moved the barcode first.
	ErrStatusConflict = errors.New("barcodes: barcode status changed concurrently")
	ErrAlreadyBoxed   = errors.New("barcodes: barcode belongs to a box; remove it from the box first")
)

// Resolve loads a barcode by its printed value.
func Resolve(ctx context.Context, db *sqlite.DB, value string) (models.Barcode, error) {
	var b models.Barcode
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		b, err = ResolveTx(ctx, tx, value)
		return err
	})
	return b, err
}

// ResolveTx loads a barcode by value inside the caller transaction.
func ResolveTx(ctx context.Context, tx bun.Tx, value string) (models.Barcode, error) {
	var b models.Barcode
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return b, ErrUnknownBarcode
	}
	err := tx.NewSelect().Model(&b).Where("value = ?", value).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("%w: %s", ErrUnknownBarcode, value)
	}
	return b, err
}

// Generate mints count fresh CREATED barcodes bound to one object.
// Values are PREFIX-XXXXXXXX with a random uppercase suffix; a collision
// on the unique value column retries with a new suffix.
func Generate(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, input GenerateInput) ([]models.Barcode, error) {
	prefix := strings.ToUpper(strings.TrimSpace(input.Prefix))
	if prefix == "" {
		return nil, fmt.Errorf("barcode prefix is required")
	}
	if input.ObjectType != models.ObjectTypeComponent && input.ObjectType != models.ObjectTypeBox {
		return nil, fmt.Errorf("invalid object type %q", input.ObjectType)
	}
	if input.ObjectID <= 0 {
		return nil, fmt.Errorf("object id is required")
	}
	count := input.Count
	if count < 1 {
		count = 1
	}
	if count > 500 {
		return nil, fmt.Errorf("at most 500 barcodes per batch")
	}

	generated := make([]models.Barcode, 0, count)
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		for i := 0; i < count; i++ {
			b, err := insertFreshTx(ctx, tx, prefix, input.ObjectType, input.ObjectID)
			if err != nil {
				return err
			}
			generated = append(generated, b)
		}
		return aud.Write(ctx, tx, actorID, audit.ActionBarcodeGenerate, "barcode_batch",
			fmt.Sprintf("%s/%d", input.ObjectType, input.ObjectID),
			nil, map[string]any{"prefix": prefix, "count": count})
	})
	if err != nil {
		return nil, err
	}
	return generated, nil
}

func insertFreshTx(ctx context.Context, tx bun.Tx, prefix, objectType string, objectID int64) (models.Barcode, error) {
	for attempt := 0; attempt < 5; attempt++ {
		value := prefix + "-" + newSuffix()
		b := models.Barcode{
			Value:      value,
			ObjectType: objectType,
			ObjectID:   objectID,
			Status:     models.BarcodeStatusCreated,
		}
		_, err := tx.NewInsert().Model(&b).Exec(ctx)
		if err == nil {
			return b, nil
		}
		if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.Barcode{}, err
		}
	}
	return models.Barcode{}, fmt.Errorf("unable to mint a unique barcode value for prefix %s", prefix)
}

func newSuffix() string {
	id := uuid.New()
	return strings.ToUpper(id.String()[:8])
}

// ApplyEventTx moves a barcode through the state machine with a guarded
// update keyed on the status the caller observed. boxBarcodeID is only
// consulted for EventBox. On success b reflects the new state.
func ApplyEventTx(ctx context.Context, tx bun.Tx, b *models.Barcode, ev Event, actorID int64, boxBarcodeID *int64) error {
	next, err := Transition(b.Status, ev)
	if err != nil {
		return err
	}

	var res sql.Result
	switch ev {
	case EventScan:
		res, err = tx.ExecContext(ctx, `
UPDATE barcodes SET status = ?, scanned_at = CURRENT_TIMESTAMP, scanned_by = ?
WHERE id = ? AND status = ?`, next, actorID, b.ID, b.Status)
	case EventUnscan:
		res, err = tx.ExecContext(ctx, `
UPDATE barcodes SET status = ?, scanned_at = NULL, scanned_by = NULL, parent_barcode_id = NULL,
       box_barcode_id = NULL, boxed_at = NULL
WHERE id = ? AND status = ?`, next, b.ID, b.Status)
	case EventBox:
		if boxBarcodeID == nil {
			return fmt.Errorf("box barcode id is required to box barcode %d", b.ID)
		}
		res, err = tx.ExecContext(ctx, `
UPDATE barcodes SET status = ?, box_barcode_id = ?, boxed_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = ?`, next, *boxBarcodeID, b.ID, b.Status)
	case EventUnbox:
		res, err = tx.ExecContext(ctx, `
UPDATE barcodes SET status = ?, box_barcode_id = NULL, boxed_at = NULL
WHERE id = ? AND status = ?`, next, b.ID, b.Status)
	default:
		return fmt.Errorf("unhandled event %s", ev)
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: barcode %s", ErrStatusConflict, b.Value)
	}

	b.Status = next
	switch ev {
	case EventScan:
		b.ScannedBy = &actorID
	case EventUnscan:
		b.ScannedBy = nil
		b.ParentBarcodeID = nil
		b.BoxBarcodeID = nil
		b.BoxedAt = nil
	case EventBox:
		b.BoxBarcodeID = boxBarcodeID
	case EventUnbox:
		b.BoxBarcodeID = nil
		b.BoxedAt = nil
	}
	return nil
}

// AssignBoxTx reserves a SCANNED barcode for a box. The status stays
// SCANNED until the packing session completes; the guard refuses a
// barcode already reserved elsewhere.
func AssignBoxTx(ctx context.Context, tx bun.Tx, b *models.Barcode, boxBarcodeID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE barcodes SET box_barcode_id = ? WHERE id = ? AND status = ? AND box_barcode_id IS NULL`,
		boxBarcodeID, b.ID, models.BarcodeStatusScanned)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: barcode %s", ErrStatusConflict, b.Value)
	}
	b.BoxBarcodeID = &boxBarcodeID
	return nil
}

// BoxAssignedTx boxes every barcode reserved for a box in one sweep.
// Session completion calls it once all requirements are satisfied, so
// items either all reach BOXED or none do.
func BoxAssignedTx(ctx context.Context, tx bun.Tx, boxBarcodeID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
UPDATE barcodes SET status = ?, boxed_at = CURRENT_TIMESTAMP
WHERE box_barcode_id = ? AND object_type = ? AND status = ?`,
		models.BarcodeStatusBoxed, boxBarcodeID, models.ObjectTypeComponent, models.BarcodeStatusScanned)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LinkParentTx binds a scanned child unit to its parent assembly
// barcode.
func LinkParentTx(ctx context.Context, tx bun.Tx, childBarcodeID, parentBarcodeID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE barcodes SET parent_barcode_id = ? WHERE id = ? AND parent_barcode_id IS NULL`,
		parentBarcodeID, childBarcodeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: barcode %d already linked", ErrStatusConflict, childBarcodeID)
	}
	return nil
}

// unlinkChildrenTx releases children bound to a parent barcode. Used
// when the parent is unscanned.
func unlinkChildrenTx(ctx context.Context, tx bun.Tx, parentBarcodeID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE barcodes SET parent_barcode_id = NULL WHERE parent_barcode_id = ?`, parentBarcodeID)
	return err
}

// Scan marks a component barcode SCANNED in the standalone scan flow.
func Scan(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, value string) (models.Barcode, error) {
	var b models.Barcode
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		b, err = ResolveTx(ctx, tx, value)
		if err != nil {
			return err
		}
		if b.Status == models.BarcodeStatusBoxed {
			return fmt.Errorf("%w: %s", ErrAlreadyBoxed, b.Value)
		}
		before := b
		if err := ApplyEventTx(ctx, tx, &b, EventScan, actorID, nil); err != nil {
			return err
		}
		return aud.Write(ctx, tx, actorID, audit.ActionBarcodeScan, "barcode",
			strconv.FormatInt(b.ID, 10), before, b)
	})
	return b, err
}

// Unscan rolls a SCANNED barcode back to CREATED and releases any
// children linked to it. A BOXED barcode has to leave its box through
// the packing session, not here.
func Unscan(ctx context.Context, db *sqlite.DB, aud *audit.Service, actorID int64, value string) (models.Barcode, error) {
	var b models.Barcode
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		b, err = ResolveTx(ctx, tx, value)
		if err != nil {
			return err
		}
		if b.Status == models.BarcodeStatusBoxed || b.BoxBarcodeID != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyBoxed, b.Value)
		}
		before := b
		if err := ApplyEventTx(ctx, tx, &b, EventUnscan, actorID, nil); err != nil {
			return err
		}
		if err := unlinkChildrenTx(ctx, tx, b.ID); err != nil {
			return err
		}
		return aud.Write(ctx, tx, actorID, audit.ActionBarcodeUnscan, "barcode",
			strconv.FormatInt(b.ID, 10), before, b)
	})
	return b, err
}

// PreviewScan resolves a barcode without changing anything: the bound
// component, current status, and the child requirements the component
// carries in its kits.
func PreviewScan(ctx context.Context, db *sqlite.DB, value string) (Preview, error) {
	var preview Preview
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		b, err := ResolveTx(ctx, tx, value)
		if err != nil {
			return err
		}
		preview = Preview{Barcode: b}
		if b.ObjectType != models.ObjectTypeComponent {
			return nil
		}
		var component models.Component
		if err := tx.NewSelect().Model(&component).Where("id = ?", b.ObjectID).Limit(1).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("barcode %s is bound to missing component %d", b.Value, b.ObjectID)
			}
			return err
		}
		preview.Component = &component

		children := make([]ChildRequirement, 0)
		err = tx.NewRaw(`
SELECT kc.kit_id, kc.component_id, c.name AS component_name, cat.name AS category_name,
       kc.required_quantity, kc.barcode_prefix
FROM kit_components kc
JOIN components c ON c.id = kc.component_id
JOIN categories cat ON cat.id = kc.category_id
WHERE kc.parent_component_id = ?
ORDER BY kc.kit_id, kc.position`, b.ObjectID).Scan(ctx, &children)
		if err != nil {
			return err
		}
		preview.ChildRequirements = children
		return nil
	})
	return preview, err
}

// ListScannedNotBoxed returns component barcodes waiting to be packed.
func ListScannedNotBoxed(ctx context.Context, db *sqlite.DB) ([]ScannedItem, error) {
	items := make([]ScannedItem, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT b.id AS barcode_id, b.value, b.object_id AS component_id, c.name AS component_name,
       b.scanned_at, b.parent_barcode_id
FROM barcodes b
JOIN components c ON c.id = b.object_id
WHERE b.object_type = ? AND b.status = ? AND b.box_barcode_id IS NULL
ORDER BY b.scanned_at, b.id`, models.ObjectTypeComponent, models.BarcodeStatusScanned).Scan(ctx, &items)
	})
	return items, err
}

// ListByBoxTx returns the item barcodes reserved for or boxed into a
// box, in scan order. Session resume replays this list.
func ListByBoxTx(ctx context.Context, tx bun.Tx, boxBarcodeID int64) ([]models.Barcode, error) {
	list := make([]models.Barcode, 0)
	err := tx.NewSelect().Model(&list).
		Where("box_barcode_id = ?", boxBarcodeID).
		Where("object_type = ?", models.ObjectTypeComponent).
		OrderExpr("scanned_at, id").
		Scan(ctx)
	return list, err
}

// ListByObject returns all barcodes bound to one object.
func ListByObject(ctx context.Context, db *sqlite.DB, objectType string, objectID int64) ([]models.Barcode, error) {
	list := make([]models.Barcode, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&list).
			Where("object_type = ?", objectType).
			Where("object_id = ?", objectID).
			OrderExpr("id").
			Scan(ctx)
	})
	return list, err
}
