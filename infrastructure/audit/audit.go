package audit

import (
	"context"
	"encoding/json"

	"github.com/uptrace/bun"

	"kitpack/models"
)

// Actions written by the scan and packing flows.
const (
	ActionBarcodeGenerate = "barcode.generate"
	ActionBarcodeScan     = "barcode.scan"
	ActionBarcodeUnscan   = "barcode.unscan"
	ActionSessionStart    = "session.start"
	ActionSessionScan     = "session.scan"
	ActionSessionRemove   = "session.remove_item"
	ActionSessionComplete = "session.complete"
	ActionKitEdit         = "kit.edit"
)

// Service writes audit records inside the caller transaction.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Write(ctx context.Context, tx bun.Tx, actorID int64, action, entityType, entityID string, before, after any) error {
	beforeJSON, err := marshal(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshal(after)
	if err != nil {
		return err
	}
	log := &models.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		BeforeJSON: beforeJSON,
		AfterJSON:  afterJSON,
	}
	_, err = tx.NewInsert().Model(log).Exec(ctx)
	return err
}

func marshal(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
