package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// AddProperty creates a property under a freshly issued id.
func (s *Service) AddProperty(ctx context.Context, address string, propertyType domain.PropertyType, description string) (domain.Property, error) {
	var created domain.Property
	err := s.run(ctx, OpAddProperty, domain.EntityProperty, true, func() (uint64, error) {
		if err := validPropertyType(propertyType); err != nil {
			return 0, err
		}
		var (
			id  uint64
			err error
		)
		created, id, err = create(s, s.properties, func(id uint64) domain.Property {
			return domain.Property{ID: id, Address: address, PropertyType: propertyType, Description: description}
		})
		return id, err
	})
	return created, err
}

// UpdateProperty replaces every field of the property except its id.
func (s *Service) UpdateProperty(ctx context.Context, id uint64, address string, propertyType domain.PropertyType, description string) (domain.Property, error) {
	var updated domain.Property
	err := s.run(ctx, OpUpdateProperty, domain.EntityProperty, true, func() (uint64, error) {
		if err := validPropertyType(propertyType); err != nil {
			return id, err
		}
		var err error
		updated, err = update(s.properties, id, func(p *domain.Property) {
			p.Address = address
			p.PropertyType = propertyType
			p.Description = description
		})
		return id, err
	})
	return updated, err
}

// DeleteProperty removes the property. Leases referring to it are untouched.
func (s *Service) DeleteProperty(ctx context.Context, id uint64) error {
	return s.run(ctx, OpDeleteProperty, domain.EntityProperty, true, func() (uint64, error) {
		return id, remove(s.properties, id)
	})
}

// GetProperty returns the property stored under id.
func (s *Service) GetProperty(ctx context.Context, id uint64) (domain.Property, error) {
	var found domain.Property
	err := s.run(ctx, OpGetProperty, domain.EntityProperty, false, func() (uint64, error) {
		var err error
		found, err = get(s.properties, id)
		return id, err
	})
	return found, err
}

// ListProperties returns all properties in ascending id order.
func (s *Service) ListProperties(ctx context.Context) ([]domain.Property, error) {
	var out []domain.Property
	err := s.run(ctx, OpListProperties, domain.EntityProperty, false, func() (uint64, error) {
		var err error
		out, err = s.properties.List()
		return 0, err
	})
	return out, err
}

func validPropertyType(t domain.PropertyType) error {
	if !t.Valid() {
		return domain.InvalidInput(fmt.Sprintf("unknown property type %q", string(t)))
	}
	return nil
}
