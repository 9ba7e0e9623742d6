package domain

import (
	"fmt"

	"github.com/opsgrid/backoffice/internal/query"
)

// Catalog holds the static per-entity engine configuration: field
// schemas, sort/projection allow-lists, search setup and expansion maps.
// It is built once at startup; the engine never introspects schemas at
// runtime.
type Catalog struct {
	entities map[string]query.EntityConfig
}

// NewCatalog builds the configuration for the entity types the backend
// serves.
func NewCatalog() *Catalog {
	c := &Catalog{entities: make(map[string]query.EntityConfig)}

	c.register(query.EntityConfig{
		Name: "customers",
		Schema: query.FieldSchema{
			"name":       query.FieldTypeString,
			"email":      query.FieldTypeString,
			"segment":    query.FieldTypeString,
			"balance":    query.FieldTypeNumber,
			"active":     query.FieldTypeBoolean,
			"created_at": query.FieldTypeDate,
		},
		AllowedSortFields: []string{"name", "segment", "balance", "created_at"},
		AllowedFields:     []string{"name", "email", "segment", "balance", "active"},
		SearchFields:      []string{"name", "email"},
		SoftDelete:        true,
	})

	c.register(query.EntityConfig{
		Name: "invoices",
		Schema: query.FieldSchema{
			"number":      query.FieldTypeString,
			"status":      query.FieldTypeString,
			"amount":      query.FieldTypeNumber,
			"currency":    query.FieldTypeString,
			"customer_id": query.FieldTypeIdentifier,
			"issued_at":   query.FieldTypeDate,
			"due_at":      query.FieldTypeDate,
			"created_at":  query.FieldTypeDate,
		},
		AllowedSortFields: []string{"number", "status", "amount", "issued_at", "due_at", "created_at"},
		AllowedFields:     []string{"number", "status", "amount", "currency", "customer_id", "issued_at", "due_at"},
		SearchFields:      []string{"number"},
		SoftDelete:        true,
		Expansions: query.ExpansionMap{
			"customer": {
				RefField:    "customer_id",
				TargetType:  "customers",
				Fields:      []string{"name", "email", "segment"},
				TenantScope: true,
			},
		},
	})

	c.register(query.EntityConfig{
		Name: "products",
		Schema: query.FieldSchema{
			"sku":        query.FieldTypeString,
			"name":       query.FieldTypeString,
			"category":   query.FieldTypeString,
			"price":      query.FieldTypeNumber,
			"stock":      query.FieldTypeNumber,
			"created_at": query.FieldTypeDate,
		},
		AllowedSortFields: []string{"sku", "name", "category", "price", "stock", "created_at"},
		AllowedFields:     []string{"sku", "name", "category", "price", "stock"},
		SearchFields:      []string{"sku", "name"},
		HasTextIndex:      true,
		SoftDelete:        true,
	})

	c.register(query.EntityConfig{
		Name: "employees",
		Schema: query.FieldSchema{
			"name":       query.FieldTypeString,
			"email":      query.FieldTypeString,
			"department": query.FieldTypeString,
			"salary":     query.FieldTypeNumber,
			"manager_id": query.FieldTypeIdentifier,
			"hired_at":   query.FieldTypeDate,
			"created_at": query.FieldTypeDate,
		},
		AllowedSortFields: []string{"name", "department", "hired_at", "created_at"},
		// Salary is deliberately absent: it must not be projectable or
		// sortable through list endpoints.
		AllowedFields: []string{"name", "email", "department", "hired_at"},
		SearchFields:  []string{"name", "email"},
		SoftDelete:    true,
		Expansions: query.ExpansionMap{
			"manager": {
				RefField:    "manager_id",
				TargetType:  "employees",
				Fields:      []string{"name", "email", "department"},
				TenantScope: true,
			},
		},
	})

	return c
}

func (c *Catalog) register(cfg query.EntityConfig) {
	c.entities[cfg.Name] = cfg
}

// Lookup returns the configuration for an entity type.
func (c *Catalog) Lookup(entity string) (query.EntityConfig, error) {
	cfg, ok := c.entities[entity]
	if !ok {
		return query.EntityConfig{}, fmt.Errorf("unknown entity type %q", entity)
	}
	return cfg, nil
}

// Names lists the registered entity types.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entities))
	for name := range c.entities {
		names = append(names, name)
	}
	return names
}
