// Package backup exports service snapshots to a blob store and restores them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"estatecore/internal/blob"
	"estatecore/internal/core"

	"github.com/dustin/go-humanize"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "backups"

// keyLayout produces lexically sortable backup names.
const keyLayout = "20060102T150405.000000000Z"

// ErrStoreNotEmpty is returned by Restore when the target already holds data.
var ErrStoreNotEmpty = core.ErrStoreNotEmpty

// ErrBackupNotFound is returned by Restore when the key does not exist.
var ErrBackupNotFound = errors.New("backup not found")

// Service is the part of core.Service a Manager needs.
type Service interface {
	ExportSnapshot(ctx context.Context) (core.Snapshot, error)
	ImportSnapshot(ctx context.Context, snap core.Snapshot) error
}

// Manager writes snapshots as JSON blobs under a key prefix.
type Manager struct {
	svc    Service
	store  blob.Store
	prefix string
	logger core.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(m *Manager) {
		if p := strings.Trim(prefix, "/"); p != "" {
			m.prefix = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the clock used to name backups.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a Manager.
func NewManager(svc Service, store blob.Store, opts ...Option) *Manager {
	m := &Manager{
		svc:    svc,
		store:  store,
		prefix: DefaultPrefix,
		logger: discard{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create exports a snapshot and stores it as <prefix>/<UTC timestamp>.json.
func (m *Manager) Create(ctx context.Context) (blob.Info, error) {
	snap, err := m.svc.ExportSnapshot(ctx)
	if err != nil {
		return blob.Info{}, fmt.Errorf("export snapshot: %w", err)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := path.Join(m.prefix, m.now().UTC().Format(keyLayout)+".json")
	info, err := m.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"records": strconv.Itoa(snap.Records()),
			"counter": strconv.FormatUint(snap.Counter, 10),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store backup %s: %w", key, err)
	}
	m.logger.Info("backup created",
		"key", info.Key,
		"driver", string(m.store.Driver()),
		"records", snap.Records(),
		"size", humanize.Bytes(uint64(len(payload))),
	)
	return info, nil
}

// List returns the stored backups, oldest first.
func (m *Manager) List(ctx context.Context) ([]blob.Info, error) {
	infos, err := m.store.List(ctx, m.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			out = append(out, info)
		}
	}
	return out, nil
}

// Latest returns the most recent backup, or false when there is none.
func (m *Manager) Latest(ctx context.Context) (blob.Info, bool, error) {
	infos, err := m.List(ctx)
	if err != nil || len(infos) == 0 {
		return blob.Info{}, false, err
	}
	return infos[len(infos)-1], true, nil
}

// Restore loads the backup stored under key into the service. The service
// store must be empty.
func (m *Manager) Restore(ctx context.Context, key string) (core.Snapshot, error) {
	info, rc, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return core.Snapshot{}, fmt.Errorf("%w: %s", ErrBackupNotFound, key)
		}
		return core.Snapshot{}, fmt.Errorf("read backup %s: %w", key, err)
	}
	defer rc.Close()

	var snap core.Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode backup %s: %w", key, err)
	}
	if err := m.svc.ImportSnapshot(ctx, snap); err != nil {
		return core.Snapshot{}, err
	}
	m.logger.Info("backup restored",
		"key", info.Key,
		"records", snap.Records(),
		"counter", snap.Counter,
		"taken", humanize.Time(snap.TakenAt),
	)
	return snap, nil
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
