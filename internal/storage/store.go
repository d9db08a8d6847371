package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ProfileRow represents a player profile in the database.
type ProfileRow struct {
	ID        string
	Name      string
	Mode      string
	CreatedAt time.Time
	LastSeen  time.Time
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			mode       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_seen  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS kv (
			profile_id TEXT NOT NULL REFERENCES profiles(id),
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (profile_id, key)
		);
	`)
	return err
}

// CreateProfile inserts a new profile.
func (s *Store) CreateProfile(id, name, mode string) error {
	_, err := s.db.Exec(
		"INSERT INTO profiles (id, name, mode) VALUES (?, ?, ?)",
		id, name, mode,
	)
	return err
}

// GetProfile retrieves a profile by id.
func (s *Store) GetProfile(id string) (*ProfileRow, error) {
	row := s.db.QueryRow("SELECT id, name, mode, created_at, last_seen FROM profiles WHERE id = ?", id)
	var pr ProfileRow
	if err := row.Scan(&pr.ID, &pr.Name, &pr.Mode, &pr.CreatedAt, &pr.LastSeen); err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListProfiles returns every profile, most recently seen first.
func (s *Store) ListProfiles() ([]ProfileRow, error) {
	rows, err := s.db.Query("SELECT id, name, mode, created_at, last_seen FROM profiles ORDER BY last_seen DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ProfileRow
	for rows.Next() {
		var pr ProfileRow
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Mode, &pr.CreatedAt, &pr.LastSeen); err != nil {
			return nil, err
		}
		result = append(result, pr)
	}
	return result, rows.Err()
}

// TouchProfile bumps a profile's last_seen.
func (s *Store) TouchProfile(id string) error {
	_, err := s.db.Exec("UPDATE profiles SET last_seen = CURRENT_TIMESTAMP WHERE id = ?", id)
	return err
}

// Put upserts one key for a profile.
func (s *Store) Put(profileID, key, value string) error {
	return s.PutMany(profileID, map[string]string{key: value})
}

// PutMany upserts several keys in one transaction, so readers see all of
// them or none.
func (s *Store) PutMany(profileID string, values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for k, v := range values {
		_, err := tx.Exec(`
			INSERT INTO kv (profile_id, key, value, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(profile_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, profileID, k, v)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("put %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Get retrieves one key. It returns sql.ErrNoRows when the key is absent.
func (s *Store) Get(profileID, key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE profile_id = ? AND key = ?", profileID, key).Scan(&value)
	return value, err
}

// DeleteAll removes every key of a profile.
func (s *Store) DeleteAll(profileID string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE profile_id = ?", profileID)
	return err
}

// DeleteProfile removes a profile and its keys.
func (s *Store) DeleteProfile(id string) error {
	if err := s.DeleteAll(id); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM profiles WHERE id = ?", id)
	return err
}

// Scoped returns a key-value view bound to one profile.
func (s *Store) Scoped(profileID string) *Scope {
	return &Scope{store: s, profileID: profileID}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Scope is a Store restricted to one profile's keys.
type Scope struct {
	store     *Store
	profileID string
}

func (sc *Scope) PutMany(values map[string]string) error {
	return sc.store.PutMany(sc.profileID, values)
}

func (sc *Scope) Get(key string) (string, error) {
	return sc.store.Get(sc.profileID, key)
}

func (sc *Scope) DeleteAll() error {
	return sc.store.DeleteAll(sc.profileID)
}
