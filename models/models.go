package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Barcode lifecycle statuses. The only legal transitions are
// CREATED -> SCANNED -> BOXED, with SCANNED -> CREATED (unscan) and
// BOXED -> SCANNED (box removal) as the rollback edges.
const (
	BarcodeStatusCreated = "CREATED"
	BarcodeStatusScanned = "SCANNED"
	BarcodeStatusBoxed   = "BOXED"
)

// Barcode object bindings.
const (
	ObjectTypeComponent = "COMPONENT"
	ObjectTypeBox       = "BOX"
)

// Packing session statuses.
const (
	SessionStatusOpen     = "OPEN"
	SessionStatusComplete = "COMPLETE"
)

// Category groups components; a category may appear at most once per
// sibling level of a kit BOM.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:cat"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull,unique"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Component is a physical part that barcodes are bound to. A packet
// component represents multiple logical units behind a single scan.
type Component struct {
	bun.BaseModel `bun:"table:components,alias:c"`

	ID             int64     `bun:"id,pk,autoincrement"`
	Name           string    `bun:"name,notnull"`
	CategoryID     int64     `bun:"category_id,notnull"`
	Description    string    `bun:"description"`
	IsPacket       bool      `bun:"is_packet,notnull,default:false"`
	PacketQuantity int64     `bun:"packet_quantity,notnull,default:1"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Kit owns an ordered BOM of component requirements.
type Kit struct {
	bun.BaseModel `bun:"table:kits,alias:k"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Name        string    `bun:"name,notnull,unique"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// KitComponent is one BOM edge: a requirement for a component within a
// kit, optionally nested under a parent component (depth <= 3).
// Sibling order is the stored Position.
type KitComponent struct {
	bun.BaseModel `bun:"table:kit_components,alias:kc"`

	ID                int64     `bun:"id,pk,autoincrement"`
	KitID             int64     `bun:"kit_id,notnull"`
	ComponentID       int64     `bun:"component_id,notnull"`
	CategoryID        int64     `bun:"category_id,notnull"`
	ParentComponentID *int64    `bun:"parent_component_id"`
	RequiredQuantity  int64     `bun:"required_quantity,notnull"`
	BarcodePrefix     string    `bun:"barcode_prefix,notnull"`
	Position          int64     `bun:"position,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Barcode is one physical label. Value is globally unique; the record is
// bound to exactly one object (component or box). BoxBarcodeID links a
// packed item to the box barcode it was reconciled into, and
// ParentBarcodeID links a consumed child unit to its parent assembly.
type Barcode struct {
	bun.BaseModel `bun:"table:barcodes,alias:b"`

	ID              int64      `bun:"id,pk,autoincrement"`
	Value           string     `bun:"value,notnull,unique"`
	ObjectType      string     `bun:"object_type,notnull"`
	ObjectID        int64      `bun:"object_id,notnull"`
	Status          string     `bun:"status,notnull,default:'CREATED'"`
	ParentBarcodeID *int64     `bun:"parent_barcode_id"`
	BoxBarcodeID    *int64     `bun:"box_barcode_id"`
	ScannedBy       *int64     `bun:"scanned_by"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	ScannedAt       *time.Time `bun:"scanned_at"`
	BoxedAt         *time.Time `bun:"boxed_at"`
}

// PackingSession is the durable anchor of one box-packing run. Progress
// itself is reconstructed by replaying barcodes linked to the box; the
// row carries identity, status and an optimistic-concurrency version.
type PackingSession struct {
	bun.BaseModel `bun:"table:packing_sessions,alias:ps"`

	ID           int64      `bun:"id,pk,autoincrement"`
	BoxBarcodeID int64      `bun:"box_barcode_id,notnull,unique"`
	KitID        int64      `bun:"kit_id,notnull"`
	Status       string     `bun:"status,notnull,default:'OPEN'"`
	Version      int64      `bun:"version,notnull,default:1"`
	PackedBy     *int64     `bun:"packed_by"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	CompletedAt  *time.Time `bun:"completed_at"`
}

// AuditLog captures immutable change history for key operations.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         int64     `bun:"id,pk,autoincrement"`
	ActorID    int64     `bun:"actor_id,notnull"`
	Action     string    `bun:"action,notnull"`
	EntityType string    `bun:"entity_type,notnull"`
	EntityID   string    `bun:"entity_id,notnull"`
	BeforeJSON string    `bun:"before_json"`
	AfterJSON  string    `bun:"after_json"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
