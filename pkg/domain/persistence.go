package domain

// MaxRecordSize bounds the serialized size of a single entity record in bytes.
const MaxRecordSize = 1024

// RegionID addresses one durable region of a PersistentStore. Region ids must
// stay stable across restarts for stored data to remain addressable.
type RegionID uint8

// Fixed region layout.
const (
	RegionCounter    RegionID = 0
	RegionProperties RegionID = 1
	RegionLeases     RegionID = 2
	RegionTenants    RegionID = 3
)

// Cell is a durable scalar.
type Cell interface {
	Get() (uint64, error)
	Set(value uint64) error
}

// OrderedMap is a durable map from uint64 keys to opaque values, iterated in
// ascending key order.
type OrderedMap interface {
	Get(key uint64) ([]byte, bool, error)
	// Insert creates or overwrites the value stored under key.
	Insert(key uint64, value []byte) error
	// Remove deletes key, returning the previous value when it existed.
	Remove(key uint64) ([]byte, bool, error)
	// Ascend calls fn for each entry in key order until fn returns false.
	Ascend(fn func(key uint64, value []byte) bool) error
	Len() int
}

// PersistentStore is the minimal abstraction over durable backends: it hands
// out counter cells and ordered-map regions by fixed id. Requesting the same
// id twice returns a handle to the same underlying data.
type PersistentStore interface {
	Counter(id RegionID) (Cell, error)
	Region(id RegionID) (OrderedMap, error)
	Close() error
}
