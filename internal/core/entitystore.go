package core

import (
	"encoding/json"
	"fmt"

	"estatecore/pkg/domain"
)

// EntityStore is a typed view over one region. Records are stored as JSON
// and bounded by domain.MaxRecordSize.
type EntityStore[T any] struct {
	entity domain.EntityType
	region domain.OrderedMap
}

// NewEntityStore binds entity records of type T to region.
func NewEntityStore[T any](entity domain.EntityType, region domain.OrderedMap) *EntityStore[T] {
	return &EntityStore[T]{entity: entity, region: region}
}

// Entity reports the kind of record held by the store.
func (s *EntityStore[T]) Entity() domain.EntityType { return s.entity }

// Get decodes the record stored under id. A missing id is reported through
// the boolean, not as an error.
func (s *EntityStore[T]) Get(id uint64) (T, bool, error) {
	var zero T
	raw, ok, err := s.region.Get(id)
	if err != nil {
		return zero, false, fmt.Errorf("load %s %d: %w", s.entity, id, err)
	}
	if !ok {
		return zero, false, nil
	}
	v, err := s.decode(id, raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Insert encodes value and stores it under id, replacing any previous record.
// Nothing is written if the encoded record exceeds domain.MaxRecordSize.
func (s *EntityStore[T]) Insert(id uint64, value T) error {
	raw, err := s.encode(id, value)
	if err != nil {
		return err
	}
	if err := s.region.Insert(id, raw); err != nil {
		return fmt.Errorf("store %s %d: %w", s.entity, id, err)
	}
	return nil
}

// stage encodes value for a later write without touching the region.
func (s *EntityStore[T]) stage(id uint64, value T) (stagedRecord, error) {
	raw, err := s.encode(id, value)
	if err != nil {
		return stagedRecord{}, err
	}
	return stagedRecord{entity: s.entity, region: s.region, id: id, raw: raw}, nil
}

// stagedRecord is an encoded record that already passed the size check.
type stagedRecord struct {
	entity domain.EntityType
	region domain.OrderedMap
	id     uint64
	raw    []byte
}

func (r stagedRecord) write() error {
	if err := r.region.Insert(r.id, r.raw); err != nil {
		return fmt.Errorf("store %s %d: %w", r.entity, r.id, err)
	}
	return nil
}

func (r stagedRecord) undo() error {
	if _, _, err := r.region.Remove(r.id); err != nil {
		return fmt.Errorf("remove %s %d: %w", r.entity, r.id, err)
	}
	return nil
}

// Remove deletes the record under id and returns it.
func (s *EntityStore[T]) Remove(id uint64) (T, bool, error) {
	var zero T
	raw, ok, err := s.region.Remove(id)
	if err != nil {
		return zero, false, fmt.Errorf("remove %s %d: %w", s.entity, id, err)
	}
	if !ok {
		return zero, false, nil
	}
	v, err := s.decode(id, raw)
	if err != nil {
		// the record is gone either way; report it as removed
		return zero, true, err
	}
	return v, true, nil
}

// List returns every record in ascending id order.
func (s *EntityStore[T]) List() ([]T, error) {
	out := make([]T, 0, s.region.Len())
	var decodeErr error
	err := s.region.Ascend(func(id uint64, raw []byte) bool {
		v, err := s.decode(id, raw)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, v)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.entity, err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *EntityStore[T]) Len() int { return s.region.Len() }

func (s *EntityStore[T]) encode(id uint64, value T) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s %d: %w", s.entity, id, err)
	}
	if len(raw) > domain.MaxRecordSize {
		return nil, &domain.RecordTooLargeError{Entity: s.entity, ID: id, Size: len(raw), Max: domain.MaxRecordSize}
	}
	return raw, nil
}

func (s *EntityStore[T]) decode(id uint64, raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s %d: %w", s.entity, id, err)
	}
	return v, nil
}
