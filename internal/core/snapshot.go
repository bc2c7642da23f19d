package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estatecore/pkg/domain"
)

// SnapshotVersion is the layout version written into exported snapshots.
const SnapshotVersion = 1

// ErrStoreNotEmpty is returned when a snapshot is imported into a store that
// already holds records.
var ErrStoreNotEmpty = errors.New("store is not empty")

// ErrInvalidSnapshot is matched by every *InvalidSnapshotError.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// InvalidSnapshotError reports a snapshot record whose id cannot be restored.
// Nothing is written when it is returned.
type InvalidSnapshotError struct {
	Entity domain.EntityType
	ID     uint64
	Reason string
}

func (e *InvalidSnapshotError) Error() string {
	return fmt.Sprintf("invalid snapshot: %s %d: %s", e.Entity, e.ID, e.Reason)
}

// Is reports whether target is ErrInvalidSnapshot.
func (e *InvalidSnapshotError) Is(target error) bool { return target == ErrInvalidSnapshot }

// Snapshot is a consistent copy of the counter and every entity record.
type Snapshot struct {
	Version         int                     `json:"version"`
	TakenAt         time.Time               `json:"taken_at"`
	Counter         uint64                  `json:"counter"`
	Properties      []domain.Property       `json:"properties"`
	Tenants         []domain.Tenant         `json:"tenants"`
	LeaseAgreements []domain.LeaseAgreement `json:"lease_agreements"`
}

// Records reports how many entity records the snapshot holds.
func (s Snapshot) Records() int {
	return len(s.Properties) + len(s.Tenants) + len(s.LeaseAgreements)
}

// ExportSnapshot copies the store under the write lock so no mutation can
// interleave with the export.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.run(ctx, OpExportSnapshot, "", true, func() (uint64, error) {
		counter, err := s.counter.Current()
		if err != nil {
			return 0, fmt.Errorf("read id counter: %w", err)
		}
		props, err := s.properties.List()
		if err != nil {
			return 0, err
		}
		tenants, err := s.tenants.List()
		if err != nil {
			return 0, err
		}
		leases, err := s.leases.List()
		if err != nil {
			return 0, err
		}
		snap = Snapshot{
			Version:         SnapshotVersion,
			TakenAt:         s.clock.Now(),
			Counter:         counter,
			Properties:      props,
			Tenants:         tenants,
			LeaseAgreements: leases,
		}
		return 0, nil
	})
	return snap, err
}

// ImportSnapshot loads snap into an empty store. The counter ends at the
// larger of the snapshot counter and the highest imported id. Every record is
// encoded and checked before the first write; if a write fails the records
// already written are removed and the counter is left untouched.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	return s.run(ctx, OpImportSnapshot, "", true, func() (uint64, error) {
		if snap.Version != SnapshotVersion {
			return 0, fmt.Errorf("unsupported snapshot version %d", snap.Version)
		}
		if s.properties.Len()+s.tenants.Len()+s.leases.Len() > 0 {
			return 0, ErrStoreNotEmpty
		}
		if current, err := s.counter.Current(); err != nil {
			return 0, fmt.Errorf("read id counter: %w", err)
		} else if current > 0 {
			return 0, ErrStoreNotEmpty
		}

		records, highest, err := s.stageSnapshot(snap)
		if err != nil {
			return 0, err
		}
		for i, rec := range records {
			if err := rec.write(); err != nil {
				s.rollbackImport(records[:i])
				return 0, err
			}
		}
		if err := s.counter.advanceTo(highest); err != nil {
			s.rollbackImport(records)
			return 0, fmt.Errorf("persist id counter: %w", err)
		}
		return 0, nil
	})
}

// stageSnapshot checks ids and encodes every record of snap. It returns the
// staged records and the value the counter must reach.
func (s *Service) stageSnapshot(snap Snapshot) ([]stagedRecord, uint64, error) {
	highest := snap.Counter
	owners := make(map[uint64]domain.EntityType, snap.Records())
	records := make([]stagedRecord, 0, snap.Records())
	claim := func(entity domain.EntityType, id uint64) error {
		if id == 0 {
			return &InvalidSnapshotError{Entity: entity, ID: id, Reason: "id 0 is never issued"}
		}
		if prev, ok := owners[id]; ok {
			return &InvalidSnapshotError{Entity: entity, ID: id, Reason: fmt.Sprintf("id already used by %s", prev)}
		}
		owners[id] = entity
		if id > highest {
			highest = id
		}
		return nil
	}
	add := func(rec stagedRecord, err error) error {
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	}

	for _, p := range snap.Properties {
		if err := claim(domain.EntityProperty, p.ID); err != nil {
			return nil, 0, err
		}
		if err := add(s.properties.stage(p.ID, p)); err != nil {
			return nil, 0, err
		}
	}
	for _, t := range snap.Tenants {
		if err := claim(domain.EntityTenant, t.ID); err != nil {
			return nil, 0, err
		}
		if err := add(s.tenants.stage(t.ID, t)); err != nil {
			return nil, 0, err
		}
	}
	for _, l := range snap.LeaseAgreements {
		if err := claim(domain.EntityLeaseAgreement, l.ID); err != nil {
			return nil, 0, err
		}
		if err := add(s.leases.stage(l.ID, l)); err != nil {
			return nil, 0, err
		}
	}
	return records, highest, nil
}

func (s *Service) rollbackImport(written []stagedRecord) {
	for i := len(written) - 1; i >= 0; i-- {
		if err := written[i].undo(); err != nil {
			s.logger.Error("roll back snapshot import", "entity", string(written[i].entity), "id", written[i].id, "error", err)
		}
	}
}
