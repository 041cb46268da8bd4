package bom

// ComponentInput describes a component being created or reused while a
// requirement is added to a kit.
type ComponentInput struct {
	ComponentID    int64  `json:"component_id,omitempty"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Description    string `json:"description,omitempty"`
	IsPacket       bool   `json:"is_packet,omitempty"`
	PacketQuantity int64  `json:"packet_quantity,omitempty"`
}

// AddComponentInput is the payload for adding a requirement to a kit,
// either top-level or under a parent component.
type AddComponentInput struct {
	KitID             int64          `json:"kit_id"`
	ParentComponentID int64          `json:"parent_component_id,omitempty"`
	Component         ComponentInput `json:"component"`
	RequiredQuantity  int64          `json:"required_quantity"`
	BarcodePrefix     string         `json:"barcode_prefix"`
}

// RequirementView is one flattened BOM row as served to callers.
type RequirementView struct {
	ComponentID       int64  `json:"component_id"`
	ComponentName     string `json:"component_name"`
	CategoryID        int64  `json:"category_id"`
	CategoryName      string `json:"category_name"`
	RequiredQuantity  int64  `json:"required_quantity"`
	BarcodePrefix     string `json:"barcode_prefix"`
	IsPacket          bool   `json:"is_packet"`
	PacketQuantity    int64  `json:"packet_quantity"`
	Level             int    `json:"level"`
	ParentComponentID *int64 `json:"parent_component_id,omitempty"`
}

// KitRequirements is the full BOM view of one kit.
type KitRequirements struct {
	KitID        int64             `json:"kit_id"`
	KitName      string            `json:"kit_name"`
	Requirements []RequirementView `json:"requirements"`
}

// ViewsFromFlat converts a flattened tree into serveable rows.
func ViewsFromFlat(flat []FlatRequirement) []RequirementView {
	views := make([]RequirementView, 0, len(flat))
	for _, fr := range flat {
		views = append(views, RequirementView{
			ComponentID:       fr.ComponentID,
			ComponentName:     fr.ComponentName,
			CategoryID:        fr.CategoryID,
			CategoryName:      fr.CategoryName,
			RequiredQuantity:  fr.RequiredQuantity,
			BarcodePrefix:     fr.BarcodePrefix,
			IsPacket:          fr.IsPacket,
			PacketQuantity:    fr.PacketQuantity,
			Level:             fr.Level,
			ParentComponentID: fr.ParentComponentID,
		})
	}
	return views
}
