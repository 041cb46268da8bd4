package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"kitpack/barcodes"
	"kitpack/bom"
	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/sqlite"
	"kitpack/models"
)

// Seeds a demo kit with a nested BOM plus a handful of barcodes so the
// API can be exercised straight after first boot.
func main() {
	migrationsDir, err := resolveMigrationsDir()
	if err != nil {
		log.Fatalf("resolve migrations dir: %v", err)
	}

	defaultDBPath := filepath.Join(filepath.Dir(filepath.Dir(filepath.Dir(migrationsDir))), "kitpack.db")
	dbPath := getenv("SQLITE_PATH", defaultDBPath)

	db, err := sqlite.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := sqlite.ApplyMigrations(context.Background(), db, migrationsDir); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	aud := audit.NewService()

	kit, err := bom.CreateKit(ctx, db, aud, 0, "Demo Pump Kit", "Demo kit with a nested BOM")
	if err != nil {
		log.Fatalf("create kit: %v", err)
	}

	add := func(parentID int64, comp bom.ComponentInput, qty int64, prefix string) bom.RequirementView {
		view, err := bom.AddComponent(ctx, db, aud, 0, bom.AddComponentInput{
			KitID:             kit.ID,
			ParentComponentID: parentID,
			Component:         comp,
			RequiredQuantity:  qty,
			BarcodePrefix:     prefix,
		})
		if err != nil {
			log.Fatalf("add %s: %v", comp.Name, err)
		}
		return view
	}

	pump := add(0, bom.ComponentInput{Name: "Pump Assembly", Category: "Assemblies"}, 1, "PMP")
	add(pump.ComponentID, bom.ComponentInput{Name: "Impeller", Category: "Impellers"}, 1, "IMP")
	add(pump.ComponentID, bom.ComponentInput{Name: "Bolt Pack", Category: "Fasteners", IsPacket: true, PacketQuantity: 6}, 6, "BLT")
	add(0, bom.ComponentInput{Name: "Housing", Category: "Housings"}, 1, "HSG")

	for _, req := range []bom.RequirementView{pump} {
		if _, err := barcodes.Generate(ctx, db, aud, 0, barcodes.GenerateInput{
			ObjectType: models.ObjectTypeComponent,
			ObjectID:   req.ComponentID,
			Prefix:     req.BarcodePrefix,
			Count:      3,
		}); err != nil {
			log.Fatalf("generate component barcodes: %v", err)
		}
	}
	boxBarcodes, err := barcodes.Generate(ctx, db, aud, 0, barcodes.GenerateInput{
		ObjectType: models.ObjectTypeBox,
		ObjectID:   kit.ID,
		Prefix:     "BOX",
		Count:      2,
	})
	if err != nil {
		log.Fatalf("generate box barcodes: %v", err)
	}

	fmt.Printf("seeded kit %q (id=%d) with box barcodes %s and %s\n",
		kit.Name, kit.ID, boxBarcodes[0].Value, boxBarcodes[1].Value)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func resolveMigrationsDir() (string, error) {
	candidates := []string{
		filepath.Join("infrastructure", "sqlite", "migrations"),
		filepath.Join("..", "..", "infrastructure", "sqlite", "migrations"),
	}

	if _, file, _, ok := runtime.Caller(0); ok {
		candidates = append(candidates, filepath.Join(filepath.Dir(file), "..", "..", "infrastructure", "sqlite", "migrations"))
	}

	tried := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		absPath, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		tried = append(tried, absPath)

		info, err := os.Stat(absPath)
		if err != nil {
			continue
		}
		if info.IsDir() {
			return absPath, nil
		}
	}

	return "", fmt.Errorf("migrations dir not found; tried: %s", strings.Join(tried, ", "))
}
