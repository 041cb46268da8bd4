package barcodes

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/uptrace/bun"

	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/sqlite"
	"kitpack/models"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "barcodes-test.db")
	db, err := sqlite.OpenDB(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	migrationsDir := filepath.Join(filepath.Dir(file), "..", "infrastructure", "sqlite", "migrations")
	if err := sqlite.ApplyMigrations(context.Background(), db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func seedComponent(t *testing.T, db *sqlite.DB, name string) int64 {
	t.Helper()
	var id int64
	err := db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name+" cat"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO components (name, category_id) SELECT ?, id FROM categories WHERE name = ?`,
			name, name+" cat"); err != nil {
			return err
		}
		return tx.NewRaw(`SELECT id FROM components WHERE name = ? ORDER BY id DESC LIMIT 1`, name).Scan(ctx, &id)
	})
	if err != nil {
		t.Fatalf("seed component: %v", err)
	}
	return id
}

func TestGenerateMintsUniquePrefixedValues(t *testing.T) {
	db := openTestDB(t)
	componentID := seedComponent(t, db, "Motor")

	generated, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeComponent,
		ObjectID:   componentID,
		Prefix:     "mtr",
		Count:      5,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(generated) != 5 {
		t.Fatalf("expected 5 barcodes, got %d", len(generated))
	}
	seen := make(map[string]bool)
	for _, b := range generated {
		if !strings.HasPrefix(b.Value, "MTR-") {
			t.Fatalf("expected MTR- prefix, got %s", b.Value)
		}
		if b.Status != models.BarcodeStatusCreated {
			t.Fatalf("fresh barcode must be CREATED, got %s", b.Status)
		}
		if seen[b.Value] {
			t.Fatalf("duplicate value %s", b.Value)
		}
		seen[b.Value] = true
	}
}

func TestScanUnscanRoundTrip(t *testing.T) {
	db := openTestDB(t)
	componentID := seedComponent(t, db, "Bracket")
	generated, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeComponent, ObjectID: componentID, Prefix: "BRK", Count: 1,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	value := generated[0].Value

	b, err := Scan(context.Background(), db, audit.NewService(), 7, value)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if b.Status != models.BarcodeStatusScanned {
		t.Fatalf("expected SCANNED, got %s", b.Status)
	}
	if b.ScannedBy == nil || *b.ScannedBy != 7 {
		t.Fatalf("scanned_by must record the actor")
	}

	// Double scan is an invalid transition.
	if _, err := Scan(context.Background(), db, audit.NewService(), 7, value); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double scan, got %v", err)
	}

	b, err = Unscan(context.Background(), db, audit.NewService(), 7, value)
	if err != nil {
		t.Fatalf("unscan: %v", err)
	}
	if b.Status != models.BarcodeStatusCreated {
		t.Fatalf("expected CREATED after unscan, got %s", b.Status)
	}

	stored, err := Resolve(context.Background(), db, value)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if stored.ScannedBy != nil || stored.ScannedAt != nil {
		t.Fatalf("unscan must clear scan bookkeeping: %+v", stored)
	}
}

func TestUnscanReleasesLinkedChildren(t *testing.T) {
	db := openTestDB(t)
	parentComponent := seedComponent(t, db, "Assembly")
	childComponent := seedComponent(t, db, "Screw Pack")

	parent, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeComponent, ObjectID: parentComponent, Prefix: "ASM", Count: 1,
	})
	if err != nil {
		t.Fatalf("generate parent: %v", err)
	}
	child, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeComponent, ObjectID: childComponent, Prefix: "SCR", Count: 1,
	})
	if err != nil {
		t.Fatalf("generate child: %v", err)
	}

	if _, err := Scan(context.Background(), db, audit.NewService(), 1, parent[0].Value); err != nil {
		t.Fatalf("scan parent: %v", err)
	}
	if _, err := Scan(context.Background(), db, audit.NewService(), 1, child[0].Value); err != nil {
		t.Fatalf("scan child: %v", err)
	}
	err = db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		return LinkParentTx(ctx, tx, child[0].ID, parent[0].ID)
	})
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	if _, err := Unscan(context.Background(), db, audit.NewService(), 1, parent[0].Value); err != nil {
		t.Fatalf("unscan parent: %v", err)
	}
	stored, err := Resolve(context.Background(), db, child[0].Value)
	if err != nil {
		t.Fatalf("resolve child: %v", err)
	}
	if stored.ParentBarcodeID != nil {
		t.Fatalf("child must be released when parent is unscanned")
	}
	if stored.Status != models.BarcodeStatusScanned {
		t.Fatalf("child keeps its own scan status, got %s", stored.Status)
	}
}

func TestBoxedBarcodeRejectsScanAndUnscan(t *testing.T) {
	db := openTestDB(t)
	componentID := seedComponent(t, db, "Casing")
	generated, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeComponent, ObjectID: componentID, Prefix: "CAS", Count: 1,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	value := generated[0].Value

	err = db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE barcodes SET status = 'BOXED', box_barcode_id = id WHERE value = ?`, value)
		return err
	})
	if err != nil {
		t.Fatalf("force boxed: %v", err)
	}

	if _, err := Scan(context.Background(), db, audit.NewService(), 1, value); !errors.Is(err, ErrAlreadyBoxed) {
		t.Fatalf("expected ErrAlreadyBoxed on scan, got %v", err)
	}
	if _, err := Unscan(context.Background(), db, audit.NewService(), 1, value); !errors.Is(err, ErrAlreadyBoxed) {
		t.Fatalf("expected ErrAlreadyBoxed on unscan, got %v", err)
	}
}

func TestBoxReservationLifecycle(t *testing.T) {
	db := openTestDB(t)
	componentID := seedComponent(t, db, "Gasket")
	items, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeComponent, ObjectID: componentID, Prefix: "GSK", Count: 1,
	})
	if err != nil {
		t.Fatalf("generate item: %v", err)
	}
	boxes, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeBox, ObjectID: 1, Prefix: "BOX", Count: 2,
	})
	if err != nil {
		t.Fatalf("generate boxes: %v", err)
	}

	if _, err := Scan(context.Background(), db, audit.NewService(), 1, items[0].Value); err != nil {
		t.Fatalf("scan: %v", err)
	}
	err = db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		b, err := ResolveTx(ctx, tx, items[0].Value)
		if err != nil {
			return err
		}
		return AssignBoxTx(ctx, tx, &b, boxes[0].ID)
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	// A reserved barcode stays SCANNED but is no longer free.
	stored, err := Resolve(context.Background(), db, items[0].Value)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if stored.Status != models.BarcodeStatusScanned || stored.BoxBarcodeID == nil || *stored.BoxBarcodeID != boxes[0].ID {
		t.Fatalf("expected SCANNED reservation for the first box: %+v", stored)
	}
	if _, err := Unscan(context.Background(), db, audit.NewService(), 1, items[0].Value); !errors.Is(err, ErrAlreadyBoxed) {
		t.Fatalf("expected ErrAlreadyBoxed unscanning a reserved barcode, got %v", err)
	}
	err = db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		b, err := ResolveTx(ctx, tx, items[0].Value)
		if err != nil {
			return err
		}
		return AssignBoxTx(ctx, tx, &b, boxes[1].ID)
	})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict reserving for a second box, got %v", err)
	}

	// The completion sweep boxes everything reserved for the box.
	var swept int64
	err = db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		var err error
		swept, err = BoxAssignedTx(ctx, tx, boxes[0].ID)
		return err
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept barcode, got %d", swept)
	}
	stored, err = Resolve(context.Background(), db, items[0].Value)
	if err != nil {
		t.Fatalf("resolve after sweep: %v", err)
	}
	if stored.Status != models.BarcodeStatusBoxed || stored.BoxedAt == nil {
		t.Fatalf("expected BOXED with boxed_at after sweep: %+v", stored)
	}
}

func TestScannedNotBoxedListsOnlyPending(t *testing.T) {
	db := openTestDB(t)
	componentID := seedComponent(t, db, "Harness")
	generated, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeComponent, ObjectID: componentID, Prefix: "HRN", Count: 3,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Scan(context.Background(), db, audit.NewService(), 1, generated[0].Value); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := Scan(context.Background(), db, audit.NewService(), 1, generated[1].Value); err != nil {
		t.Fatalf("scan: %v", err)
	}

	items, err := ListScannedNotBoxed(context.Background(), db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 pending items, got %d", len(items))
	}
	if items[0].ComponentName != "Harness" {
		t.Fatalf("expected component name join, got %q", items[0].ComponentName)
	}

	// An item reserved for an open box is no longer pending.
	boxes, err := Generate(context.Background(), db, audit.NewService(), 1, GenerateInput{
		ObjectType: models.ObjectTypeBox, ObjectID: 1, Prefix: "BOX", Count: 1,
	})
	if err != nil {
		t.Fatalf("generate box: %v", err)
	}
	err = db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		b, err := ResolveTx(ctx, tx, generated[1].Value)
		if err != nil {
			return err
		}
		return AssignBoxTx(ctx, tx, &b, boxes[0].ID)
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	items, err = ListScannedNotBoxed(context.Background(), db)
	if err != nil {
		t.Fatalf("list after assign: %v", err)
	}
	if len(items) != 1 || items[0].Value != generated[0].Value {
		t.Fatalf("reserved item must drop out of the pending list: %+v", items)
	}
}

func TestResolveUnknownValue(t *testing.T) {
	db := openTestDB(t)
	if _, err := Resolve(context.Background(), db, "NOPE-123"); !errors.Is(err, ErrUnknownBarcode) {
		t.Fatalf("expected ErrUnknownBarcode, got %v", err)
	}
}
