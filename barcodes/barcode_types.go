package barcodes

import (
	"time"

	"kitpack/models"
)

// GenerateInput describes a batch of barcodes to mint for one object.
type GenerateInput struct {
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
	Prefix     string `json:"prefix"`
	Count      int    `json:"count"`
}

// ChildRequirement is one sub-requirement a parent component carries in
// a kit BOM.
type ChildRequirement struct {
	KitID            int64  `bun:"kit_id" json:"kit_id"`
	ComponentID      int64  `bun:"component_id" json:"component_id"`
	ComponentName    string `bun:"component_name" json:"component_name"`
	CategoryName     string `bun:"category_name" json:"category_name"`
	RequiredQuantity int64  `bun:"required_quantity" json:"required_quantity"`
	BarcodePrefix    string `bun:"barcode_prefix" json:"barcode_prefix"`
}

// Preview is the read-only answer to a scan lookup.
type Preview struct {
	Barcode           models.Barcode     `json:"barcode"`
	Component         *models.Component  `json:"component,omitempty"`
	ChildRequirements []ChildRequirement `json:"child_requirements,omitempty"`
}

// ScannedItem is a scanned component barcode not yet packed.
type ScannedItem struct {
	BarcodeID       int64      `bun:"barcode_id" json:"barcode_id"`
	Value           string     `bun:"value" json:"value"`
	ComponentID     int64      `bun:"component_id" json:"component_id"`
	ComponentName   string     `bun:"component_name" json:"component_name"`
	ScannedAt       *time.Time `bun:"scanned_at" json:"scanned_at,omitempty"`
	ParentBarcodeID *int64     `bun:"parent_barcode_id" json:"parent_barcode_id,omitempty"`
}
