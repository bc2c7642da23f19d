// Package domain defines the persistent real-estate entities, the typed
// errors returned by entity operations, and the region abstractions that
// durable storage backends implement.
package domain

import (
	"encoding/json"
	"fmt"
)

// EntityType identifies the kind of record held by an entity store.
type EntityType string

// Supported entity kinds. Each kind lives in its own storage region.
const (
	// EntityProperty identifies a property record.
	EntityProperty EntityType = "property"
	// EntityTenant identifies a tenant record.
	EntityTenant EntityType = "tenant"
	// EntityLeaseAgreement identifies a lease agreement record.
	EntityLeaseAgreement EntityType = "lease_agreement"
)

// DisplayName returns the human-readable label used in error messages.
func (e EntityType) DisplayName() string {
	switch e {
	case EntityProperty:
		return "Property"
	case EntityTenant:
		return "Tenant"
	case EntityLeaseAgreement:
		return "Lease agreement"
	default:
		return string(e)
	}
}

// PropertyType enumerates the categories a property can belong to.
type PropertyType string

// Canonical property categories.
const (
	PropertyTypeHouse      PropertyType = "House"
	PropertyTypeApartment  PropertyType = "Apartment"
	PropertyTypeCommercial PropertyType = "Commercial"
)

// PropertyTypes lists every valid property category in declaration order.
func PropertyTypes() []PropertyType {
	return []PropertyType{PropertyTypeHouse, PropertyTypeApartment, PropertyTypeCommercial}
}

// Valid reports whether t is one of the declared categories.
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyTypeHouse, PropertyTypeApartment, PropertyTypeCommercial:
		return true
	default:
		return false
	}
}

// ParsePropertyType converts a raw category name into a PropertyType.
func ParsePropertyType(raw string) (PropertyType, error) {
	t := PropertyType(raw)
	if !t.Valid() {
		return "", InvalidInput(fmt.Sprintf("unknown property type %q", raw))
	}
	return t, nil
}

// UnmarshalJSON rejects category names outside the enumeration.
func (t *PropertyType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePropertyType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Property is a managed real-estate asset.
type Property struct {
	ID           uint64       `json:"id"`
	Address      string       `json:"address"`
	PropertyType PropertyType `json:"property_type"`
	Description  string       `json:"description"`
}

// Tenant is a person or organisation that can hold leases.
type Tenant struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// LeaseAgreement binds a tenant to a property for a time span. PropertyID and
// TenantID are plain references; nothing guarantees the records exist.
type LeaseAgreement struct {
	ID         uint64 `json:"id"`
	PropertyID uint64 `json:"property_id"`
	TenantID   uint64 `json:"tenant_id"`
	StartDate  uint64 `json:"start_date"` // Unix seconds
	EndDate    uint64 `json:"end_date"`   // Unix seconds
}

// LeaseTerms carries the mutable fields of a lease agreement.
type LeaseTerms struct {
	PropertyID uint64 `json:"property_id"`
	TenantID   uint64 `json:"tenant_id"`
	StartDate  uint64 `json:"start_date"`
	EndDate    uint64 `json:"end_date"`
}

// Terms returns the mutable fields of the agreement.
func (l LeaseAgreement) Terms() LeaseTerms {
	return LeaseTerms{
		PropertyID: l.PropertyID,
		TenantID:   l.TenantID,
		StartDate:  l.StartDate,
		EndDate:    l.EndDate,
	}
}

// Apply replaces every non-id field with the supplied terms.
func (l *LeaseAgreement) Apply(terms LeaseTerms) {
	l.PropertyID = terms.PropertyID
	l.TenantID = terms.TenantID
	l.StartDate = terms.StartDate
	l.EndDate = terms.EndDate
}
