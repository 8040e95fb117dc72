// Package mapdb persists map sessions, grid tiles and localisation results
// in SQLite.
package mapdb

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/banshee-data/stereogrid/internal/monitoring"
	"github.com/banshee-data/stereogrid/internal/stereo/grid"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MapDB wraps the SQLite handle. It implements grid.TileStore.
type MapDB struct {
	*sql.DB
}

var _ grid.TileStore = (*MapDB)(nil)

// Open opens (creating if needed) the database at path and applies every
// pending migration. Use ":memory:" for a throwaway database.
func Open(path string) (*MapDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection keeps per-connection pragmas and :memory: databases
	// consistent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	mdb := &MapDB{db}
	if err := mdb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("opened map database %s", path)
	return mdb, nil
}

// MigrateUp runs all pending migrations up to the latest version.
func (db *MapDB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (db *MapDB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *MapDB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Session is one mapping or localisation run.
type Session struct {
	ID        string
	Name      string
	Mode      string
	CreatedAt time.Time
	Params    map[string]interface{}
}

// CreateSession inserts a new session with a fresh ID.
func (db *MapDB) CreateSession(name, mode string, params map[string]interface{}) (*Session, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session params: %w", err)
	}
	s := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Mode:      mode,
		CreatedAt: time.Now(),
		Params:    params,
	}
	_, err = db.Exec(`INSERT INTO map_session (session_id, name, mode, created_unix_nanos, params_json) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Mode, s.CreatedAt.UnixNano(), string(paramsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// GetSession returns a session by ID, or sql.ErrNoRows.
func (db *MapDB) GetSession(id string) (*Session, error) {
	return scanSession(db.QueryRow(`SELECT session_id, name, mode, created_unix_nanos, params_json FROM map_session WHERE session_id = ?`, id))
}

// LatestSession returns the most recently created session with the given
// name and mode, or sql.ErrNoRows.
func (db *MapDB) LatestSession(name, mode string) (*Session, error) {
	return scanSession(db.QueryRow(`SELECT session_id, name, mode, created_unix_nanos, params_json FROM map_session
		WHERE name = ? AND mode = ? ORDER BY created_unix_nanos DESC LIMIT 1`, name, mode))
}

// ListSessions returns every session, newest first.
func (db *MapDB) ListSessions() ([]*Session, error) {
	rows, err := db.Query(`SELECT session_id, name, mode, created_unix_nanos, params_json FROM map_session ORDER BY created_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s          Session
		createdNs  int64
		paramsJSON string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Mode, &createdNs, &paramsJSON); err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, createdNs)
	if err := json.Unmarshal([]byte(paramsJSON), &s.Params); err != nil {
		return nil, fmt.Errorf("failed to parse session params: %w", err)
	}
	return &s, nil
}

// SaveTile stores an encoded tile gzip-compressed, replacing any tile
// previously saved at the same session, centre and box origin.
func (db *MapDB) SaveTile(sessionID string, rec grid.TileRecord) error {
	blob, err := compress(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to compress tile: %w", err)
	}
	_, err = db.Exec(`INSERT INTO map_tile (session_id, centre_x, centre_y, centre_z, cell_size_mm, box_tx, box_ty, box_bx, box_by, tile_blob, updated_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, centre_x, centre_y, centre_z, box_tx, box_ty) DO UPDATE SET
			cell_size_mm = excluded.cell_size_mm, box_bx = excluded.box_bx, box_by = excluded.box_by,
			tile_blob = excluded.tile_blob, updated_unix_nanos = excluded.updated_unix_nanos`,
		sessionID, rec.Centre.X, rec.Centre.Y, rec.Centre.Z, rec.CellSizeMM, rec.TX, rec.TY, rec.BX, rec.BY, blob, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save tile: %w", err)
	}
	return nil
}

// LoadTiles returns every tile saved for the session at the given centre.
func (db *MapDB) LoadTiles(sessionID string, centre r3.Vector) ([]grid.TileRecord, error) {
	rows, err := db.Query(`SELECT cell_size_mm, box_tx, box_ty, box_bx, box_by, tile_blob FROM map_tile
		WHERE session_id = ? AND centre_x = ? AND centre_y = ? AND centre_z = ? ORDER BY box_ty, box_tx`,
		sessionID, centre.X, centre.Y, centre.Z)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	var out []grid.TileRecord
	for rows.Next() {
		rec := grid.TileRecord{Centre: centre}
		var blob []byte
		if err := rows.Scan(&rec.CellSizeMM, &rec.TX, &rec.TY, &rec.BX, &rec.BY, &blob); err != nil {
			return nil, err
		}
		if rec.Data, err = decompress(blob); err != nil {
			return nil, fmt.Errorf("failed to decompress tile (%d,%d): %w", rec.TX, rec.TY, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TileCentres returns the distinct grid centres saved for a session.
func (db *MapDB) TileCentres(sessionID string) ([]r3.Vector, error) {
	rows, err := db.Query(`SELECT DISTINCT centre_x, centre_y, centre_z FROM map_tile WHERE session_id = ? ORDER BY centre_x, centre_y, centre_z`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []r3.Vector
	for rows.Next() {
		var v r3.Vector
		if err := rows.Scan(&v.X, &v.Y, &v.Z); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LocalisationRecord is one persisted localisation result. A nil Score
// means no evidence matched.
type LocalisationRecord struct {
	PathIndex int
	GridIndex int
	OffsetX   float64
	OffsetY   float64
	OffsetPan float64
	Score     *float64
	Swapped   bool
}

// InsertLocalisation appends a localisation result to the session log.
func (db *MapDB) InsertLocalisation(sessionID string, r LocalisationRecord) error {
	_, err := db.Exec(`INSERT INTO localisation_log (session_id, path_index, grid_index, offset_x, offset_y, offset_pan, score, swapped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.PathIndex, r.GridIndex, r.OffsetX, r.OffsetY, r.OffsetPan, r.Score, r.Swapped)
	if err != nil {
		return fmt.Errorf("failed to insert localisation: %w", err)
	}
	return nil
}

// Localisations returns a session's localisation log in path order.
func (db *MapDB) Localisations(sessionID string) ([]LocalisationRecord, error) {
	rows, err := db.Query(`SELECT path_index, grid_index, offset_x, offset_y, offset_pan, score, swapped
		FROM localisation_log WHERE session_id = ? ORDER BY path_index, entry_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LocalisationRecord
	for rows.Next() {
		var (
			r     LocalisationRecord
			score sql.NullFloat64
		)
		if err := rows.Scan(&r.PathIndex, &r.GridIndex, &r.OffsetX, &r.OffsetY, &r.OffsetPan, &score, &r.Swapped); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			r.Score = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty tile blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
