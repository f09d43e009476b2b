package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"cdchanger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database is the persistent album metadata cache, keyed by MusicBrainz
// disc ID. It is safe for concurrent use because the underlying *sql.DB is
// concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Entry
	now    func() time.Time

	// Prepared statements for the lookups done on every disc load
	getAlbumStmt  *sql.Stmt
	getTracksStmt *sql.Stmt
	touchStmt     *sql.Stmt
}

// CachedAlbum is a summary row of the cache.
type CachedAlbum struct {
	DiscID     string
	Title      string
	Artist     string
	Tracks     int
	UpdatedAt  time.Time
	LastUsedAt time.Time
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. Caller should Close() it
// when finished.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	log := logger.WithField("component", "database")

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One player writes at a time; keep the pool small
	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			log.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: log,
		now:    time.Now,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	log.WithField("db_path", dbPath).Debug("Database initialized")
	return db, nil
}

// createTables creates tables and indices if they do not already exist, then
// executes any migrations. This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	albumsTable := `
	CREATE TABLE IF NOT EXISTS albums (
		disc_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	tracksTable := `
	CREATE TABLE IF NOT EXISTS album_tracks (
		disc_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (disc_id) REFERENCES albums(disc_id) ON DELETE CASCADE,
		PRIMARY KEY (disc_id, number)
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist, title);",
		"CREATE INDEX IF NOT EXISTS idx_albums_updated ON albums(updated_at);",
	}

	for _, table := range []string{albumsTable, tracksTable} {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return db.runMigrations()
}

// runMigrations performs incremental schema updates in-place. Each migration
// should be idempotent and safe to re-run.
func (db *Database) runMigrations() error {
	// Migration 1: remember when a cached album was last used, so old
	// entries can be told apart in listings
	var columnExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('albums')
		WHERE name = 'last_used_at'`).Scan(&columnExists)
	if err != nil {
		return err
	}

	if !columnExists {
		if _, err := db.conn.Exec("ALTER TABLE albums ADD COLUMN last_used_at DATETIME"); err != nil {
			return err
		}
		db.logger.Info("Added last_used_at column to albums table")
	}

	return nil
}

func (db *Database) prepareStatements() error {
	var err error

	db.getAlbumStmt, err = db.conn.Prepare(`
		SELECT title, artist FROM albums WHERE disc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get album statement: %w", err)
	}

	db.getTracksStmt, err = db.conn.Prepare(`
		SELECT number, title, artist FROM album_tracks WHERE disc_id = ? ORDER BY number`)
	if err != nil {
		return fmt.Errorf("failed to prepare get tracks statement: %w", err)
	}

	db.touchStmt, err = db.conn.Prepare(`
		UPDATE albums SET last_used_at = ? WHERE disc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare touch statement: %w", err)
	}

	return nil
}

// LoadMetadata returns the cached metadata for a disc. The boolean is false
// when the disc isn't cached.
func (db *Database) LoadMetadata(ctx context.Context, discID string) (models.AlbumMetadata, bool, error) {
	var md models.AlbumMetadata
	err := db.getAlbumStmt.QueryRowContext(ctx, discID).Scan(&md.Title, &md.Artist)
	if errors.Is(err, sql.ErrNoRows) {
		return md, false, nil
	}
	if err != nil {
		return md, false, fmt.Errorf("failed to load album %s: %w", discID, err)
	}

	rows, err := db.getTracksStmt.QueryContext(ctx, discID)
	if err != nil {
		return md, false, fmt.Errorf("failed to load tracks of %s: %w", discID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var tm models.TrackMetadata
		if err := rows.Scan(&tm.Number, &tm.Title, &tm.Artist); err != nil {
			return md, false, err
		}
		md.Tracks = append(md.Tracks, tm)
	}
	if err := rows.Err(); err != nil {
		return md, false, err
	}

	if _, err := db.touchStmt.ExecContext(ctx, db.now(), discID); err != nil {
		db.logger.WithError(err).WithField("disc_id", discID).Warn("Failed to update last use")
	}
	return md, true, nil
}

// SaveMetadata inserts or replaces the metadata of a disc.
func (db *Database) SaveMetadata(ctx context.Context, discID string, md models.AlbumMetadata) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := db.now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO albums (disc_id, title, artist, created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(disc_id) DO UPDATE SET
			title=excluded.title,
			artist=excluded.artist,
			updated_at=excluded.updated_at,
			last_used_at=excluded.last_used_at
	`, discID, md.Title, md.Artist, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to save album %s: %w", discID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM album_tracks WHERE disc_id = ?", discID); err != nil {
		return err
	}
	for _, tm := range md.Tracks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO album_tracks (disc_id, number, title, artist) VALUES (?, ?, ?, ?)`,
			discID, tm.Number, tm.Title, tm.Artist)
		if err != nil {
			return fmt.Errorf("failed to save track %d of %s: %w", tm.Number, discID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	db.logger.WithFields(logrus.Fields{
		"disc_id": discID,
		"title":   md.Title,
		"tracks":  len(md.Tracks),
	}).Debug("Cached album metadata")
	return nil
}

// ListAlbums returns every cached album ordered by artist and title.
func (db *Database) ListAlbums(ctx context.Context) ([]CachedAlbum, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.disc_id, a.title, a.artist, a.updated_at, a.last_used_at,
			(SELECT COUNT(*) FROM album_tracks t WHERE t.disc_id = a.disc_id)
		FROM albums a
		ORDER BY a.artist, a.title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var albums []CachedAlbum
	for rows.Next() {
		var a CachedAlbum
		var lastUsed sql.NullTime
		if err := rows.Scan(&a.DiscID, &a.Title, &a.Artist, &a.UpdatedAt, &lastUsed, &a.Tracks); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			a.LastUsedAt = lastUsed.Time
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// DeleteAlbum removes one disc from the cache.
func (db *Database) DeleteAlbum(ctx context.Context, discID string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM albums WHERE disc_id = ?", discID)
	return err
}

// Clear removes every cached album and returns how many there were.
func (db *Database) Clear(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM albums")
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	db.logger.WithField("albums_deleted", rowsAffected).Info("Cleared metadata cache")
	return rowsAffected, nil
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.getAlbumStmt,
		db.getTracksStmt,
		db.touchStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
