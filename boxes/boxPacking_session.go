package boxes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"kitpack/barcodes"
	"kitpack/bom"
	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/cache"
	"kitpack/infrastructure/metrics"
	"kitpack/infrastructure/sqlite"
	"kitpack/models"
)

// Coordinator serializes all writes to one packing session behind a
// per-box mutex and keeps the durable session row, the barcode
// registry and the in-memory ledger in step. Progress is never stored:
// it is replayed from the registry on every write, which makes resume
// after a crash the same code path as a normal scan.
type Coordinator struct {
	db      *sqlite.DB
	aud     *audit.Service
	metrics *metrics.Metrics
	store   cache.SessionStore
	ttl     time.Duration
	policy  ChildMatchPolicy

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewCoordinator(db *sqlite.DB, aud *audit.Service, m *metrics.Metrics, store cache.SessionStore, ttl time.Duration) *Coordinator {
	return &Coordinator{
		db:      db,
		aud:     aud,
		metrics: m,
		store:   store,
		ttl:     ttl,
		policy:  ChildMatchPreOrder,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// lockBox takes the per-box writer lock and returns its release.
func (c *Coordinator) lockBox(boxBarcodeID int64) func() {
	c.mu.Lock()
	l, ok := c.locks[boxBarcodeID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[boxBarcodeID] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// dropLock forgets the mutex of a box that can take no further writes.
// A waiter that slips through on the old mutex is still safe: every
// session update is guarded on status and version.
func (c *Coordinator) dropLock(boxBarcodeID int64) {
	c.mu.Lock()
	delete(c.locks, boxBarcodeID)
	c.mu.Unlock()
}

func (c *Coordinator) resolveBox(ctx context.Context, value string) (models.Barcode, error) {
	box, err := barcodes.Resolve(ctx, c.db, value)
	if err != nil {
		return box, err
	}
	if box.ObjectType != models.ObjectTypeBox {
		return box, fmt.Errorf("%w: %s", ErrNotABox, box.Value)
	}
	return box, nil
}

// Start opens a packing session for a box barcode, or resumes the open
// one. A box whose previous session completed is refused; boxes are
// single-use.
func (c *Coordinator) Start(ctx context.Context, actorID int64, input StartInput) (StatusView, error) {
	box, err := c.resolveBox(ctx, input.BoxBarcode)
	if err != nil {
		return StatusView{}, err
	}
	unlock := c.lockBox(box.ID)
	defer unlock()

	var view StatusView
	err = c.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		session, err := loadSessionByBoxTx(ctx, tx, box.ID)
		switch {
		case err == nil:
			if session.Status == models.SessionStatusComplete {
				return fmt.Errorf("%w: %s", ErrBoxAlreadyPacked, box.Value)
			}
			if input.KitID != 0 && input.KitID != session.KitID {
				return fmt.Errorf("%w: session is for kit %d", ErrKitMismatch, session.KitID)
			}
			view, err = c.buildViewTx(ctx, tx, session, box)
			if err != nil {
				return err
			}
			view.Existing = true
			return nil
		case err == ErrSessionNotFound:
			if input.KitID <= 0 {
				return bom.ErrKitNotFound
			}
			if _, err := bom.LoadKitTreeTx(ctx, tx, input.KitID); err != nil {
				return err
			}
			if err := barcodes.ApplyEventTx(ctx, tx, &box, barcodes.EventScan, actorID, nil); err != nil {
				return err
			}
			session = models.PackingSession{
				BoxBarcodeID: box.ID,
				KitID:        input.KitID,
				Status:       models.SessionStatusOpen,
				Version:      1,
			}
			if err := insertSessionTx(ctx, tx, &session); err != nil {
				return err
			}
			if err := c.aud.Write(ctx, tx, actorID, audit.ActionSessionStart, "packing_session",
				strconv.FormatInt(session.ID, 10), nil, session); err != nil {
				return err
			}
			view, err = c.buildViewTx(ctx, tx, session, box)
			return err
		default:
			return err
		}
	})
	if err != nil {
		if errors.Is(err, ErrBoxAlreadyPacked) {
			c.dropLock(box.ID)
		}
		return StatusView{}, err
	}
	if !view.Existing {
		c.metrics.SessionEvent("start")
	}
	c.cachePut(ctx, box.Value, view)
	return view, nil
}

// Scan counts one item barcode into the box: the item is marked
// SCANNED and reserved for the box, but stays unboxed until Complete.
// A repeat of a barcode already in this box is an idempotent no-op
// returning current state.
func (c *Coordinator) Scan(ctx context.Context, actorID int64, input ScanInput) (StatusView, error) {
	box, err := c.resolveBox(ctx, input.BoxBarcode)
	if err != nil {
		return StatusView{}, err
	}
	unlock := c.lockBox(box.ID)
	defer unlock()

	var view StatusView
	duplicate := false
	err = c.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		session, err := c.openSessionTx(ctx, tx, box.ID)
		if err != nil {
			return err
		}
		tree, err := bom.LoadKitTreeTx(ctx, tx, session.KitID)
		if err != nil {
			return err
		}
		ledger, _, err := rebuildLedgerTx(ctx, tx, tree, box.ID, c.policy)
		if err != nil {
			return err
		}

		item, err := barcodes.ResolveTx(ctx, tx, input.ItemBarcode)
		if err != nil {
			return err
		}
		component, err := loadComponentTx(ctx, tx, item.ObjectID)
		if item.ObjectType == models.ObjectTypeComponent && err != nil {
			return err
		}

		match, err := Classify(tree, ledger, item, component.CategoryID, box.ID, c.policy)
		if err == ErrDuplicateScan {
			duplicate = true
			view, err = c.buildViewTx(ctx, tx, session, box)
			return err
		}
		if err != nil {
			return err
		}
		if err := ledger.ApplyScan(match.ComponentID, item.ID); err != nil {
			return err
		}

		before := item
		if item.Status == models.BarcodeStatusCreated {
			if err := barcodes.ApplyEventTx(ctx, tx, &item, barcodes.EventScan, actorID, nil); err != nil {
				return err
			}
		}
		if err := barcodes.AssignBoxTx(ctx, tx, &item, box.ID); err != nil {
			return err
		}
		if err := c.linkFamilyTx(ctx, tx, tree, ledger, match.ComponentID, item.ID); err != nil {
			return err
		}
		if err := bumpVersionTx(ctx, tx, session.ID, session.Version); err != nil {
			return err
		}
		session.Version++
		if err := c.aud.Write(ctx, tx, actorID, audit.ActionSessionScan, "barcode",
			strconv.FormatInt(item.ID, 10), before, item); err != nil {
			return err
		}
		view, err = c.buildViewTx(ctx, tx, session, box)
		return err
	})
	if err != nil {
		if isScanRejection(err) {
			c.metrics.ScanRejected("box")
		}
		return StatusView{}, err
	}
	if !duplicate {
		c.metrics.ScanAccepted("box")
	}
	c.cachePut(ctx, box.Value, view)
	return view, nil
}

// linkFamilyTx maintains parent/child barcode links for an item that
// just counted against countedFor: the item is bound to its parent
// requirement's barcode when that is already in the box, and counted
// children scanned before their parent are adopted by the item.
func (c *Coordinator) linkFamilyTx(ctx context.Context, tx bun.Tx, tree *bom.Tree, ledger *Ledger, countedFor, barcodeID int64) error {
	if parentID, ok := tree.Parent(countedFor); ok {
		if parentBarcodes := ledger.BarcodesFor(parentID); len(parentBarcodes) > 0 {
			if err := adoptChildrenTx(ctx, tx, parentBarcodes[0], []int64{barcodeID}); err != nil {
				return err
			}
		}
	}
	for _, childID := range tree.Children(countedFor) {
		if err := adoptChildrenTx(ctx, tx, barcodeID, ledger.BarcodesFor(childID)); err != nil {
			return err
		}
	}
	return nil
}

// isScanRejection separates the reconciliation taxonomy from
// infrastructure failures, so the rejected-scans counter only reflects
// scans the domain actually refused.
func isScanRejection(err error) bool {
	for _, target := range []error{
		barcodes.ErrUnknownBarcode,
		barcodes.ErrInvalidTransition,
		ErrNotComponentBarcode,
		ErrAlreadyConsumed,
		ErrNoMatchingRequirement,
		ErrQuantityExceeded,
		ErrSessionNotFound,
		ErrSessionClosed,
		ErrNotABox,
		ErrKitMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RemoveItem takes a counted barcode back out of the box, reopening the
// requirement it counted for. The barcode returns all the way to
// CREATED so it can be scanned fresh anywhere.
func (c *Coordinator) RemoveItem(ctx context.Context, actorID int64, input ScanInput) (StatusView, error) {
	box, err := c.resolveBox(ctx, input.BoxBarcode)
	if err != nil {
		return StatusView{}, err
	}
	unlock := c.lockBox(box.ID)
	defer unlock()

	var view StatusView
	err = c.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		session, err := c.openSessionTx(ctx, tx, box.ID)
		if err != nil {
			return err
		}
		tree, err := bom.LoadKitTreeTx(ctx, tx, session.KitID)
		if err != nil {
			return err
		}
		ledger, _, err := rebuildLedgerTx(ctx, tx, tree, box.ID, c.policy)
		if err != nil {
			return err
		}

		item, err := barcodes.ResolveTx(ctx, tx, input.ItemBarcode)
		if err != nil {
			return err
		}
		if item.Status != models.BarcodeStatusScanned || item.BoxBarcodeID == nil || *item.BoxBarcodeID != box.ID {
			return fmt.Errorf("%w: %s", ErrNotScanned, item.Value)
		}
		if _, err := ledger.ApplyUndo(item.ID); err != nil {
			return err
		}

		before := item
		if err := barcodes.ApplyEventTx(ctx, tx, &item, barcodes.EventUnscan, actorID, nil); err != nil {
			return err
		}
		if err := releaseLinksTx(ctx, tx, item.ID); err != nil {
			return err
		}
		if err := bumpVersionTx(ctx, tx, session.ID, session.Version); err != nil {
			return err
		}
		session.Version++
		if err := c.aud.Write(ctx, tx, actorID, audit.ActionSessionRemove, "barcode",
			strconv.FormatInt(item.ID, 10), before, item); err != nil {
			return err
		}
		view, err = c.buildViewTx(ctx, tx, session, box)
		return err
	})
	if err != nil {
		return StatusView{}, err
	}
	c.cachePut(ctx, box.Value, view)
	return view, nil
}

// Complete closes the session. All-or-nothing: every requirement must
// be satisfied, otherwise IncompleteError lists what is missing and
// nothing changes. On success every reserved item barcode and the box
// barcode itself move to BOXED inside one transaction.
func (c *Coordinator) Complete(ctx context.Context, actorID int64, boxBarcode string) (StatusView, error) {
	box, err := c.resolveBox(ctx, boxBarcode)
	if err != nil {
		return StatusView{}, err
	}
	unlock := c.lockBox(box.ID)
	defer unlock()

	var view StatusView
	err = c.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		session, err := c.openSessionTx(ctx, tx, box.ID)
		if err != nil {
			return err
		}
		tree, err := bom.LoadKitTreeTx(ctx, tx, session.KitID)
		if err != nil {
			return err
		}
		ledger, items, err := rebuildLedgerTx(ctx, tx, tree, box.ID, c.policy)
		if err != nil {
			return err
		}
		if !ledger.Complete() {
			return &IncompleteError{Unmet: ledger.Unmet()}
		}

		boxed, err := barcodes.BoxAssignedTx(ctx, tx, box.ID)
		if err != nil {
			return err
		}
		if boxed != int64(len(items)) {
			return fmt.Errorf("%w: box %s", ErrConcurrentModification, box.Value)
		}
		if err := barcodes.ApplyEventTx(ctx, tx, &box, barcodes.EventBox, actorID, &box.ID); err != nil {
			return err
		}
		if err := completeSessionTx(ctx, tx, session.ID, session.Version, actorID); err != nil {
			return err
		}
		if err := c.aud.Write(ctx, tx, actorID, audit.ActionSessionComplete, "packing_session",
			strconv.FormatInt(session.ID, 10), nil,
			map[string]any{"box_barcode": box.Value, "items": len(items)}); err != nil {
			return err
		}
		session.Status = models.SessionStatusComplete
		session.Version++
		ledger, items, err = rebuildLedgerTx(ctx, tx, tree, box.ID, c.policy)
		if err != nil {
			return err
		}
		view = buildView(session, box, ledger, items)
		return nil
	})
	if err != nil {
		return StatusView{}, err
	}
	c.metrics.SessionEvent("complete")
	c.store.Delete(ctx, box.Value)
	c.dropLock(box.ID)
	return view, nil
}

// Status reconstructs the current state of a box, open or completed.
// The session cache answers repeated polls; any write refreshes it.
func (c *Coordinator) Status(ctx context.Context, boxBarcode string) (StatusView, error) {
	box, err := c.resolveBox(ctx, boxBarcode)
	if err != nil {
		return StatusView{}, err
	}
	if raw, ok := c.store.Get(ctx, box.Value); ok {
		var cached StatusView
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	var view StatusView
	err = c.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		session, err := loadSessionByBoxTx(ctx, tx, box.ID)
		if err != nil {
			return err
		}
		view, err = c.buildViewTx(ctx, tx, session, box)
		return err
	})
	if err != nil {
		return StatusView{}, err
	}
	c.cachePut(ctx, box.Value, view)
	return view, nil
}

func (c *Coordinator) openSessionTx(ctx context.Context, tx bun.Tx, boxBarcodeID int64) (models.PackingSession, error) {
	session, err := loadSessionByBoxTx(ctx, tx, boxBarcodeID)
	if err != nil {
		return session, err
	}
	if session.Status != models.SessionStatusOpen {
		return session, fmt.Errorf("%w: session %d", ErrSessionClosed, session.ID)
	}
	return session, nil
}

func (c *Coordinator) buildViewTx(ctx context.Context, tx bun.Tx, session models.PackingSession, box models.Barcode) (StatusView, error) {
	tree, err := bom.LoadKitTreeTx(ctx, tx, session.KitID)
	if err != nil {
		return StatusView{}, err
	}
	ledger, items, err := rebuildLedgerTx(ctx, tx, tree, box.ID, c.policy)
	if err != nil {
		return StatusView{}, err
	}
	return buildView(session, box, ledger, items), nil
}

func buildView(session models.PackingSession, box models.Barcode, ledger *Ledger, items []PackedItem) StatusView {
	return StatusView{
		SessionID:  session.ID,
		BoxBarcode: box.Value,
		KitID:      session.KitID,
		Status:     session.Status,
		Version:    session.Version,
		Complete:   ledger.Complete(),
		Progress:   ledger.Snapshot(),
		Unmet:      ledger.Unmet(),
		Items:      items,
	}
}

func (c *Coordinator) cachePut(ctx context.Context, boxValue string, view StatusView) {
	raw, err := json.Marshal(view)
	if err != nil {
		slog.Warn("marshal session snapshot", slog.String("error", err.Error()))
		return
	}
	c.store.Put(ctx, boxValue, raw, c.ttl)
}
