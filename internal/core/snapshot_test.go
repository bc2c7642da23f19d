package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
)

func seedService(t *testing.T) *Service {
	t.Helper()
	svc := NewInMemoryService()
	ctx := context.Background()
	if _, err := svc.AddProperty(ctx, "1 Main", domain.PropertyTypeHouse, "corner"); err != nil {
		t.Fatalf("add property: %v", err)
	}
	if _, err := svc.AddTenant(ctx, "Alice"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if _, err := svc.CreateLeaseAgreement(ctx, domain.LeaseTerms{PropertyID: 1, TenantID: 2, StartDate: 1, EndDate: 2}); err != nil {
		t.Fatalf("create lease: %v", err)
	}
	if _, err := svc.AddTenant(ctx, "Bob"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if err := svc.DeleteTenant(ctx, 4); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	return svc
}

// assertEmptyStore fails unless svc holds no records and has issued no ids.
func assertEmptyStore(t *testing.T, svc *Service) {
	t.Helper()
	if n := svc.properties.Len() + svc.tenants.Len() + svc.leases.Len(); n != 0 {
		t.Fatalf("expected empty store, found %d records", n)
	}
	if current, err := svc.counter.Current(); err != nil || current != 0 {
		t.Fatalf("expected untouched counter, got %d err=%v", current, err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := seedService(t)
	ctx := context.Background()
	snap, err := src.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if snap.Version != SnapshotVersion || snap.Counter != 4 || snap.Records() != 3 {
		t.Fatalf("unexpected snapshot version=%d counter=%d records=%d", snap.Version, snap.Counter, snap.Records())
	}

	dst := NewInMemoryService()
	if err := dst.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	lease, err := dst.GetLeaseAgreement(ctx, 3)
	if err != nil {
		t.Fatalf("get lease: %v", err)
	}
	if lease.TenantID != 2 {
		t.Fatalf("expected tenant 2 on restored lease, got %d", lease.TenantID)
	}
	next, err := dst.AddTenant(ctx, "Carol")
	if err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if next.ID != 5 {
		t.Fatalf("restored counter must keep ids monotonic, got id %d", next.ID)
	}
}

func TestImportRequiresEmptyStore(t *testing.T) {
	src := seedService(t)
	ctx := context.Background()
	snap, err := src.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := src.ImportSnapshot(ctx, snap); !errors.Is(err, ErrStoreNotEmpty) {
		t.Fatalf("expected ErrStoreNotEmpty, got %v", err)
	}

	used := NewInMemoryService()
	if _, err := used.AddTenant(ctx, "x"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if err := used.DeleteTenant(ctx, 1); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	if err := used.ImportSnapshot(ctx, snap); !errors.Is(err, ErrStoreNotEmpty) {
		t.Fatalf("a store that issued ids is not empty, got %v", err)
	}
}

func TestImportRaisesCounterToHighestID(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()
	snap := Snapshot{
		Version: SnapshotVersion,
		Counter: 2,
		Tenants: []domain.Tenant{{ID: 9, Name: "late"}},
	}
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	p, err := svc.AddProperty(ctx, "a", domain.PropertyTypeHouse, "")
	if err != nil {
		t.Fatalf("add property: %v", err)
	}
	if p.ID != 10 {
		t.Fatalf("expected id 10, got %d", p.ID)
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	err := NewInMemoryService().ImportSnapshot(context.Background(), Snapshot{Version: 99})
	if err == nil || !strings.Contains(err.Error(), "unsupported snapshot version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestImportOversizeRecordWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()
	snap := Snapshot{
		Version:    SnapshotVersion,
		Properties: []domain.Property{{ID: 1, Address: "1 Main", PropertyType: domain.PropertyTypeHouse}},
		Tenants:    []domain.Tenant{{ID: 2, Name: strings.Repeat("n", 2000)}},
	}

	err := svc.ImportSnapshot(ctx, snap)
	var tooLarge *domain.RecordTooLargeError
	if !errors.As(err, &tooLarge) || tooLarge.ID != 2 {
		t.Fatalf("expected RecordTooLargeError for tenant 2, got %v", err)
	}
	assertEmptyStore(t, svc)
	if _, err := svc.GetProperty(ctx, 1); !domain.IsNotFound(err) {
		t.Fatalf("property 1 must not survive a failed import, got %v", err)
	}

	snap.Tenants[0].Name = "Bob"
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("retry after fixing the snapshot: %v", err)
	}
	tenant, err := svc.AddTenant(ctx, "Carol")
	if err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if tenant.ID != 3 {
		t.Fatalf("expected fresh id 3 after restore, got %d", tenant.ID)
	}
}

func TestImportRejectsInvalidIDs(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		id   uint64
	}{
		{
			name: "zero id",
			snap: Snapshot{Properties: []domain.Property{{ID: 0, PropertyType: domain.PropertyTypeHouse}}},
			id:   0,
		},
		{
			name: "id shared across kinds",
			snap: Snapshot{
				Properties: []domain.Property{{ID: 5, PropertyType: domain.PropertyTypeHouse}},
				Tenants:    []domain.Tenant{{ID: 5, Name: "dup"}},
			},
			id: 5,
		},
		{
			name: "id repeated within a kind",
			snap: Snapshot{
				LeaseAgreements: []domain.LeaseAgreement{{ID: 7}, {ID: 7}},
			},
			id: 7,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewInMemoryService()
			tc.snap.Version = SnapshotVersion
			err := svc.ImportSnapshot(context.Background(), tc.snap)
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
			}
			var invalid *InvalidSnapshotError
			if !errors.As(err, &invalid) || invalid.ID != tc.id {
				t.Fatalf("expected InvalidSnapshotError for id %d, got %v", tc.id, err)
			}
			assertEmptyStore(t, svc)
		})
	}
}

type failingInsertRegion struct {
	domain.OrderedMap
}

func (failingInsertRegion) Insert(uint64, []byte) error { return errors.New("disk full") }

type failingInsertStore struct {
	domain.PersistentStore
	failOn domain.RegionID
}

func (f failingInsertStore) Region(id domain.RegionID) (domain.OrderedMap, error) {
	region, err := f.PersistentStore.Region(id)
	if err != nil || id != f.failOn {
		return region, err
	}
	return failingInsertRegion{OrderedMap: region}, nil
}

func TestImportRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(failingInsertStore{PersistentStore: memory.NewStore(), failOn: domain.RegionLeases})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	snap := Snapshot{
		Version:         SnapshotVersion,
		Counter:         3,
		Properties:      []domain.Property{{ID: 1, PropertyType: domain.PropertyTypeApartment}},
		Tenants:         []domain.Tenant{{ID: 2, Name: "Alice"}},
		LeaseAgreements: []domain.LeaseAgreement{{ID: 3, PropertyID: 1, TenantID: 2}},
	}

	err = svc.ImportSnapshot(ctx, snap)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write failure, got %v", err)
	}
	assertEmptyStore(t, svc)

	tenant, err := svc.AddTenant(ctx, "Bob")
	if err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if tenant.ID != 1 {
		t.Fatalf("expected id 1 on the still-empty store, got %d", tenant.ID)
	}
}
