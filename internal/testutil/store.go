package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/t77yq/tabsched/internal/model"
	"github.com/t77yq/tabsched/internal/storage"
)

// MemStore is an in-memory storage.ScheduleStore for tests
type MemStore struct {
	mu         sync.Mutex
	schedules  map[string]*model.Schedule
	order      []string
	settings   *model.Settings
	categories []string
	folders    []string
	backups    []*storage.Backup
	lastBackup time.Time
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{schedules: make(map[string]*model.Schedule)}
}

// Seed replaces the store contents with copies of the given schedules
func (m *MemStore) Seed(schedules ...*model.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = make(map[string]*model.Schedule, len(schedules))
	m.order = nil
	for _, s := range schedules {
		c := clone(s)
		m.schedules[c.ID] = c
		m.order = append(m.order, c.ID)
	}
}

func (m *MemStore) LoadAll(ctx context.Context) ([]*model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Schedule, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clone(m.schedules[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *MemStore) ReplaceAll(ctx context.Context, schedules []*model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = make(map[string]*model.Schedule, len(schedules))
	m.order = nil
	for _, s := range schedules {
		c := clone(s)
		m.schedules[c.ID] = c
		m.order = append(m.order, c.ID)
	}
	return nil
}

func (m *MemStore) Get(ctx context.Context, id string) (*model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	return clone(s), nil
}

func (m *MemStore) Save(ctx context.Context, s *model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.schedules[s.ID] = clone(s)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemStore) LoadSettings(ctx context.Context) (model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return model.DefaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *MemStore) SaveSettings(ctx context.Context, settings model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &settings
	return nil
}

func (m *MemStore) LoadCategories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.categories...), nil
}

func (m *MemStore) LoadFolders(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.folders...), nil
}

func (m *MemStore) SaveCategories(ctx context.Context, categories []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append([]string(nil), categories...)
	return nil
}

func (m *MemStore) SaveFolders(ctx context.Context, folders []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders = append([]string(nil), folders...)
	return nil
}

func (m *MemStore) SaveBackup(ctx context.Context, payload json.RawMessage, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups = append(m.backups, &storage.Backup{
		ID:        fmt.Sprintf("backup-%d", createdAt.UnixNano()),
		CreatedAt: createdAt,
		Payload:   append(json.RawMessage(nil), payload...),
	})
	return nil
}

func (m *MemStore) ListBackups(ctx context.Context, limit int) ([]*storage.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := append([]*storage.Backup(nil), m.backups...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

func (m *MemStore) PruneBackups(ctx context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.backups) <= keep {
		return nil
	}
	sort.Slice(m.backups, func(i, j int) bool { return m.backups[i].CreatedAt.After(m.backups[j].CreatedAt) })
	m.backups = m.backups[:keep]
	return nil
}

func (m *MemStore) LastBackupAt(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBackup, nil
}

func (m *MemStore) SetLastBackupAt(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBackup = at
	return nil
}

func clone(s *model.Schedule) *model.Schedule {
	c := *s
	c.OpenedAt = cloneTime(s.OpenedAt)
	c.UnlockedAt = cloneTime(s.UnlockedAt)
	c.AutoRelockAt = cloneTime(s.AutoRelockAt)
	c.ExpirationDate = cloneTime(s.ExpirationDate)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
