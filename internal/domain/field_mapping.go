package domain

import (
	"encoding/json"
	"time"
)

// Client is the tenant owning mappings and imports.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// FieldMapping is a client-authored rule set translating file columns into system fields.
// Rules is kept as raw JSON and parsed by the mapping engine once per processing run.
type FieldMapping struct {
	ID        int64           `json:"id"`
	ClientID  int64           `json:"client_id"`
	Name      string          `json:"name"`
	Rules     json.RawMessage `json:"rules"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FieldType enumerates the value types a system field may declare.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeDateTime FieldType = "datetime"
)

// SystemField describes one target column of imported records.
type SystemField struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
}

// FieldCatalog indexes system fields by name.
type FieldCatalog map[string]SystemField

// TypeOf returns the declared type for a field, if any.
func (c FieldCatalog) TypeOf(name string) (FieldType, bool) {
	field, ok := c[name]
	if !ok || field.Type == "" {
		return "", false
	}
	return field.Type, true
}

// NewFieldCatalog builds a catalog from a list of fields.
func NewFieldCatalog(fields ...SystemField) FieldCatalog {
	catalog := make(FieldCatalog, len(fields))
	for _, field := range fields {
		catalog[field.Name] = field
	}
	return catalog
}

// OrderFields is the system field catalog for imported orders.
var OrderFields = NewFieldCatalog(
	SystemField{Name: "order_number", Type: FieldTypeString, Description: "external order identifier"},
	SystemField{Name: "order_date", Type: FieldTypeDateTime},
	SystemField{Name: "customer_name", Type: FieldTypeString},
	SystemField{Name: "customer_phone", Type: FieldTypeString},
	SystemField{Name: "customer_email", Type: FieldTypeString},
	SystemField{Name: "delivery_address", Type: FieldTypeString},
	SystemField{Name: "product_name", Type: FieldTypeString},
	SystemField{Name: "sku", Type: FieldTypeString},
	SystemField{Name: "quantity", Type: FieldTypeInteger},
	SystemField{Name: "price", Type: FieldTypeFloat},
	SystemField{Name: "revenue", Type: FieldTypeFloat},
	SystemField{Name: "currency", Type: FieldTypeString},
	SystemField{Name: "status", Type: FieldTypeString},
	SystemField{Name: "shipped_at", Type: FieldTypeDateTime},
	SystemField{Name: "comment", Type: FieldTypeString},
)
