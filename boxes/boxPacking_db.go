package boxes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"kitpack/barcodes"
	"kitpack/bom"
	"kitpack/models"
)

func loadSessionByBoxTx(ctx context.Context, tx bun.Tx, boxBarcodeID int64) (models.PackingSession, error) {
	var session models.PackingSession
	err := tx.NewSelect().Model(&session).Where("box_barcode_id = ?", boxBarcodeID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return session, ErrSessionNotFound
	}
	return session, err
}

func insertSessionTx(ctx context.Context, tx bun.Tx, session *models.PackingSession) error {
	_, err := tx.NewInsert().Model(session).Exec(ctx)
	return err
}

// bumpVersionTx advances the optimistic version, guarded on the version
// the caller loaded.
func bumpVersionTx(ctx context.Context, tx bun.Tx, sessionID, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE packing_sessions SET version = version + 1 WHERE id = ? AND version = ? AND status = ?`,
		sessionID, expectedVersion, models.SessionStatusOpen)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %d", ErrConcurrentModification, sessionID)
	}
	return nil
}

// completeSessionTx flips the session OPEN -> COMPLETE, guarded on both
// status and version.
func completeSessionTx(ctx context.Context, tx bun.Tx, sessionID, expectedVersion, actorID int64) error {
	res, err := tx.ExecContext(ctx, `
UPDATE packing_sessions
SET status = ?, version = version + 1, packed_by = ?, completed_at = CURRENT_TIMESTAMP
WHERE id = ? AND version = ? AND status = ?`,
		models.SessionStatusComplete, actorID, sessionID, expectedVersion, models.SessionStatusOpen)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %d", ErrConcurrentModification, sessionID)
	}
	return nil
}

// rebuildLedgerTx reconstructs the session ledger by replaying the
// barcodes reserved for or boxed into the box, in scan order. The BOM
// cannot change while the session is open, so every replayed scan must
// still match.
func rebuildLedgerTx(ctx context.Context, tx bun.Tx, tree *bom.Tree, boxBarcodeID int64, policy ChildMatchPolicy) (*Ledger, []PackedItem, error) {
	boxed, err := barcodes.ListByBoxTx(ctx, tx, boxBarcodeID)
	if err != nil {
		return nil, nil, err
	}

	ledger := NewLedger(tree)
	items := make([]PackedItem, 0, len(boxed))
	components, err := componentNamesTx(ctx, tx, boxed)
	if err != nil {
		return nil, nil, err
	}

	for _, b := range boxed {
		comp := components[b.ObjectID]
		match, err := matchRequirement(tree, ledger, b.ObjectID, comp.CategoryID, policy)
		if err != nil {
			return nil, nil, fmt.Errorf("replay barcode %s: %w", b.Value, err)
		}
		if err := ledger.ApplyScan(match.ComponentID, b.ID); err != nil {
			return nil, nil, fmt.Errorf("replay barcode %s: %w", b.Value, err)
		}
		items = append(items, PackedItem{
			BarcodeID:     b.ID,
			Value:         b.Value,
			ComponentID:   b.ObjectID,
			ComponentName: comp.Name,
			CountedFor:    match.ComponentID,
			BoxedAt:       b.BoxedAt,
		})
	}
	return ledger, items, nil
}

func componentNamesTx(ctx context.Context, tx bun.Tx, boxed []models.Barcode) (map[int64]models.Component, error) {
	out := make(map[int64]models.Component)
	ids := make([]int64, 0, len(boxed))
	for _, b := range boxed {
		if b.ObjectType != models.ObjectTypeComponent {
			continue
		}
		if _, seen := out[b.ObjectID]; seen {
			continue
		}
		out[b.ObjectID] = models.Component{}
		ids = append(ids, b.ObjectID)
	}
	if len(ids) == 0 {
		return out, nil
	}
	rows := make([]models.Component, 0, len(ids))
	if err := tx.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

func loadComponentTx(ctx context.Context, tx bun.Tx, componentID int64) (models.Component, error) {
	var c models.Component
	err := tx.NewSelect().Model(&c).Where("id = ?", componentID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("component %d not found", componentID)
	}
	return c, err
}

// adoptChildrenTx links counted child barcodes without a parent to a
// freshly counted parent barcode.
func adoptChildrenTx(ctx context.Context, tx bun.Tx, parentBarcodeID int64, childBarcodeIDs []int64) error {
	if len(childBarcodeIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE barcodes SET parent_barcode_id = ? WHERE id IN (?) AND parent_barcode_id IS NULL`,
		parentBarcodeID, bun.In(childBarcodeIDs))
	return err
}

// releaseLinksTx clears parent links touching a barcode leaving the
// box, both its own link and any children bound to it.
func releaseLinksTx(ctx context.Context, tx bun.Tx, barcodeID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE barcodes SET parent_barcode_id = NULL WHERE id = ? OR parent_barcode_id = ?`,
		barcodeID, barcodeID)
	return err
}
