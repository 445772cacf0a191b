package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/smallbiznis/ordersync/internal/order/domain"
)

// DraftSchemaVersion is bumped whenever the snapshot layout changes.
const DraftSchemaVersion = 1

type draftEnvelope struct {
	SchemaVersion int `json:"schema_version"`
	domain.Order
	Version     int64 `json:"version"`
	IsPersisted bool  `json:"is_persisted"`
	Dirty       bool  `json:"dirty"`
	Finalized   bool  `json:"finalized"`
}

// Serialize encodes o as a snapshot FromDraft can read back.
func Serialize(o domain.Order) ([]byte, error) {
	env := draftEnvelope{
		SchemaVersion: DraftSchemaVersion,
		Order:         o,
		Version:       o.Version(),
		IsPersisted:   o.IsPersisted(),
		Dirty:         o.IsDirty(),
		Finalized:     o.IsFinalized(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("serialize order %s: %w", o.ID, err)
	}
	return raw, nil
}
