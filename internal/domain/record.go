package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is one tenant-scoped business document: a customer, invoice,
// product or employee row. Typed columns cover identity and lifecycle;
// everything entity-specific lives in the Properties document.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	EntityType string         `json:"entity_type"`
	Properties map[string]any `json:"properties"`
	Deleted    bool           `json:"deleted"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewRecord creates a record with a fresh identity.
func NewRecord(tenantID uuid.UUID, entityType string, properties map[string]any) Record {
	now := time.Now()
	return Record{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityType: entityType,
		Properties: copyProperties(properties),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *Record) PropertiesJSON() (json.RawMessage, error) {
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	return json.Marshal(r.Properties)
}

// PropertiesFromJSON decodes a JSONB properties document.
func PropertiesFromJSON(raw json.RawMessage) (map[string]any, error) {
	var properties map[string]any
	err := json.Unmarshal(raw, &properties)
	return properties, err
}

// AsRow flattens a record into the map shape list endpoints return.
func (r Record) AsRow() map[string]any {
	row := make(map[string]any, len(r.Properties)+4)
	for k, v := range r.Properties {
		row[k] = v
	}
	row["id"] = r.ID.String()
	row["tenant_id"] = r.TenantID.String()
	row["created_at"] = r.CreatedAt.Format(time.RFC3339)
	row["updated_at"] = r.UpdatedAt.Format(time.RFC3339)
	return row
}

func copyProperties(properties map[string]any) map[string]any {
	out := make(map[string]any, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	return out
}
