package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/model"
)

// Backup is a stored snapshot of the full schedule set
type Backup struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// ScheduleStore defines the persistence contract the engine depends on.
// Callers treat it as read-modify-write over a full snapshot; no atomicity
// is assumed beyond a single call, which is why the health-repair pass
// reconciles partial writes on the next startup.
type ScheduleStore interface {
	// LoadAll returns the full schedule set ordered by sort order
	LoadAll(ctx context.Context) ([]*model.Schedule, error)

	// ReplaceAll atomically replaces the full schedule set
	ReplaceAll(ctx context.Context, schedules []*model.Schedule) error

	// Get returns a single schedule, or nil when the id is unknown
	Get(ctx context.Context, id string) (*model.Schedule, error)

	// Save inserts or updates a single schedule
	Save(ctx context.Context, s *model.Schedule) error

	// Delete removes a single schedule
	Delete(ctx context.Context, id string) error

	// LoadSettings returns the persisted user settings, defaulted when unset
	LoadSettings(ctx context.Context) (model.Settings, error)

	// SaveSettings persists the user settings
	SaveSettings(ctx context.Context, settings model.Settings) error

	// LoadCategories and LoadFolders return the user's grouping labels
	LoadCategories(ctx context.Context) ([]string, error)
	LoadFolders(ctx context.Context) ([]string, error)
	SaveCategories(ctx context.Context, categories []string) error
	SaveFolders(ctx context.Context, folders []string) error

	// SaveBackup stores a snapshot payload; ListBackups returns the most
	// recent first; PruneBackups drops all but the newest keep entries
	SaveBackup(ctx context.Context, payload json.RawMessage, createdAt time.Time) error
	ListBackups(ctx context.Context, limit int) ([]*Backup, error)
	PruneBackups(ctx context.Context, keep int) error

	// LastBackupAt returns the time of the last automatic backup, zero when none
	LastBackupAt(ctx context.Context) (time.Time, error)
	SetLastBackupAt(ctx context.Context, at time.Time) error
}

// SQLiteScheduleStore implements ScheduleStore using SQLite
type SQLiteScheduleStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteScheduleStore opens (or creates) the schedule database at dbPath
func NewSQLiteScheduleStore(logger *zap.Logger, dbPath string) (*SQLiteScheduleStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteScheduleStore{
		logger: logger,
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteScheduleStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			name TEXT,
			category TEXT,
			folder TEXT,
			notes TEXT,
			due_time DATETIME NOT NULL,
			recurring INTEGER NOT NULL DEFAULT 0,
			repeat_policy TEXT,
			opened INTEGER NOT NULL DEFAULT 0,
			opened_at DATETIME,
			manually_unlocked INTEGER NOT NULL DEFAULT 0,
			unlocked_at DATETIME,
			lock_minutes INTEGER NOT NULL DEFAULT 0,
			auto_relock_at DATETIME,
			missed INTEGER NOT NULL DEFAULT 0,
			reminder_sent INTEGER NOT NULL DEFAULT 0,
			open_count INTEGER NOT NULL DEFAULT 0,
			expiration_date DATETIME,
			play_sound INTEGER NOT NULL DEFAULT 0,
			chain_to TEXT,
			chain_delay_minutes INTEGER NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_due_time ON schedules(due_time);
		CREATE INDEX IF NOT EXISTS idx_schedules_category ON schedules(category);

		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS backups (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

const scheduleColumns = `id, target, name, category, folder, notes, due_time, recurring,
	repeat_policy, opened, opened_at, manually_unlocked, unlocked_at, lock_minutes,
	auto_relock_at, missed, reminder_sent, open_count, expiration_date, play_sound,
	chain_to, chain_delay_minutes, sort_order, created_at`

// LoadAll implements ScheduleStore.LoadAll
func (s *SQLiteScheduleStore) LoadAll(ctx context.Context) ([]*model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules ORDER BY sort_order, created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*model.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return schedules, nil
}

// ReplaceAll implements ScheduleStore.ReplaceAll
func (s *SQLiteScheduleStore) ReplaceAll(ctx context.Context, schedules []*model.Schedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM schedules"); err != nil {
		return fmt.Errorf("failed to clear schedules: %w", err)
	}
	for _, schedule := range schedules {
		if err := upsertSchedule(ctx, tx, schedule); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedules: %w", err)
	}
	return nil
}

// Get implements ScheduleStore.Get
func (s *SQLiteScheduleStore) Get(ctx context.Context, id string) (*model.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", id)
	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return schedule, err
}

// Save implements ScheduleStore.Save
func (s *SQLiteScheduleStore) Save(ctx context.Context, schedule *model.Schedule) error {
	return upsertSchedule(ctx, s.db, schedule)
}

// Delete implements ScheduleStore.Delete
func (s *SQLiteScheduleStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

// LoadSettings implements ScheduleStore.LoadSettings
func (s *SQLiteScheduleStore) LoadSettings(ctx context.Context) (model.Settings, error) {
	raw, err := s.getKV(ctx, "settings")
	if err != nil {
		return model.Settings{}, err
	}
	if raw == "" {
		return model.DefaultSettings(), nil
	}

	var settings model.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return model.Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	settings.Normalize()
	return settings, nil
}

// SaveSettings implements ScheduleStore.SaveSettings
func (s *SQLiteScheduleStore) SaveSettings(ctx context.Context, settings model.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return s.setKV(ctx, "settings", string(data))
}

// LoadCategories implements ScheduleStore.LoadCategories
func (s *SQLiteScheduleStore) LoadCategories(ctx context.Context) ([]string, error) {
	return s.getStringList(ctx, "categories")
}

// LoadFolders implements ScheduleStore.LoadFolders
func (s *SQLiteScheduleStore) LoadFolders(ctx context.Context) ([]string, error) {
	return s.getStringList(ctx, "folders")
}

// SaveCategories implements ScheduleStore.SaveCategories
func (s *SQLiteScheduleStore) SaveCategories(ctx context.Context, categories []string) error {
	return s.setStringList(ctx, "categories", categories)
}

// SaveFolders implements ScheduleStore.SaveFolders
func (s *SQLiteScheduleStore) SaveFolders(ctx context.Context, folders []string) error {
	return s.setStringList(ctx, "folders", folders)
}

// SaveBackup implements ScheduleStore.SaveBackup
func (s *SQLiteScheduleStore) SaveBackup(ctx context.Context, payload json.RawMessage, createdAt time.Time) error {
	id := fmt.Sprintf("backup-%d", createdAt.UnixNano())
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO backups (id, created_at, payload) VALUES (?, ?, ?)",
		id, createdAt, string(payload)); err != nil {
		return fmt.Errorf("failed to store backup: %w", err)
	}
	return nil
}

// ListBackups implements ScheduleStore.ListBackups
func (s *SQLiteScheduleStore) ListBackups(ctx context.Context, limit int) ([]*Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, payload FROM backups ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		var b Backup
		var payload string
		if err := rows.Scan(&b.ID, &b.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		b.Payload = json.RawMessage(payload)
		backups = append(backups, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return backups, nil
}

// PruneBackups implements ScheduleStore.PruneBackups
func (s *SQLiteScheduleStore) PruneBackups(ctx context.Context, keep int) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM backups WHERE id NOT IN (
			SELECT id FROM backups ORDER BY created_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune backups: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		s.logger.Info("Pruned old backups",
			zap.Int64("deleted", affected),
			zap.Int("kept", keep))
	}
	return nil
}

// LastBackupAt implements ScheduleStore.LastBackupAt
func (s *SQLiteScheduleStore) LastBackupAt(ctx context.Context) (time.Time, error) {
	raw, err := s.getKV(ctx, "last_backup_at")
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last backup time: %w", err)
	}
	return at, nil
}

// SetLastBackupAt implements ScheduleStore.SetLastBackupAt
func (s *SQLiteScheduleStore) SetLastBackupAt(ctx context.Context, at time.Time) error {
	return s.setKV(ctx, "last_backup_at", at.Format(time.RFC3339Nano))
}

// Close closes the database connection
func (s *SQLiteScheduleStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteScheduleStore) getKV(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteScheduleStore) setKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteScheduleStore) getStringList(ctx context.Context, key string) ([]string, error) {
	raw, err := s.getKV(ctx, key)
	if err != nil || raw == "" {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return list, nil
}

func (s *SQLiteScheduleStore) setStringList(ctx context.Context, key string, list []string) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.setKV(ctx, key, string(data))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertSchedule(ctx context.Context, db execer, schedule *model.Schedule) error {
	repeat, err := json.Marshal(schedule.Repeat)
	if err != nil {
		return fmt.Errorf("failed to marshal repeat policy: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target = excluded.target,
			name = excluded.name,
			category = excluded.category,
			folder = excluded.folder,
			notes = excluded.notes,
			due_time = excluded.due_time,
			recurring = excluded.recurring,
			repeat_policy = excluded.repeat_policy,
			opened = excluded.opened,
			opened_at = excluded.opened_at,
			manually_unlocked = excluded.manually_unlocked,
			unlocked_at = excluded.unlocked_at,
			lock_minutes = excluded.lock_minutes,
			auto_relock_at = excluded.auto_relock_at,
			missed = excluded.missed,
			reminder_sent = excluded.reminder_sent,
			open_count = excluded.open_count,
			expiration_date = excluded.expiration_date,
			play_sound = excluded.play_sound,
			chain_to = excluded.chain_to,
			chain_delay_minutes = excluded.chain_delay_minutes,
			sort_order = excluded.sort_order,
			created_at = excluded.created_at`,
		schedule.ID,
		schedule.Target,
		schedule.Name,
		schedule.Category,
		schedule.Folder,
		schedule.Notes,
		schedule.DueTime,
		schedule.Recurring,
		string(repeat),
		schedule.Opened,
		nullTime(schedule.OpenedAt),
		schedule.ManuallyUnlocked,
		nullTime(schedule.UnlockedAt),
		schedule.LockMinutes,
		nullTime(schedule.AutoRelockAt),
		schedule.Missed,
		schedule.ReminderSent,
		schedule.OpenCount,
		nullTime(schedule.ExpirationDate),
		schedule.PlaySound,
		nullString(schedule.ChainTo),
		schedule.ChainDelayMinutes,
		schedule.SortOrder,
		schedule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store schedule %s: %w", schedule.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	var schedule model.Schedule
	var repeat sql.NullString
	var name, category, folder, notes, chainTo sql.NullString
	var openedAt, unlockedAt, autoRelockAt, expirationDate sql.NullTime

	err := row.Scan(
		&schedule.ID,
		&schedule.Target,
		&name,
		&category,
		&folder,
		&notes,
		&schedule.DueTime,
		&schedule.Recurring,
		&repeat,
		&schedule.Opened,
		&openedAt,
		&schedule.ManuallyUnlocked,
		&unlockedAt,
		&schedule.LockMinutes,
		&autoRelockAt,
		&schedule.Missed,
		&schedule.ReminderSent,
		&schedule.OpenCount,
		&expirationDate,
		&schedule.PlaySound,
		&chainTo,
		&schedule.ChainDelayMinutes,
		&schedule.SortOrder,
		&schedule.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	schedule.Name = name.String
	schedule.Category = category.String
	schedule.Folder = folder.String
	schedule.Notes = notes.String
	schedule.ChainTo = chainTo.String
	if repeat.Valid && repeat.String != "" {
		if err := json.Unmarshal([]byte(repeat.String), &schedule.Repeat); err != nil {
			return nil, fmt.Errorf("failed to unmarshal repeat policy: %w", err)
		}
	}
	if openedAt.Valid {
		t := openedAt.Time
		schedule.OpenedAt = &t
	}
	if unlockedAt.Valid {
		t := unlockedAt.Time
		schedule.UnlockedAt = &t
	}
	if autoRelockAt.Valid {
		t := autoRelockAt.Time
		schedule.AutoRelockAt = &t
	}
	if expirationDate.Valid {
		t := expirationDate.Time
		schedule.ExpirationDate = &t
	}

	return &schedule, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
