package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteArea persists an area in a single SQLite table.
type SQLiteArea struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

// NewSQLiteArea opens (and creates if needed) the area database at dbPath.
func NewSQLiteArea(dbPath string, logger *logrus.Logger) (*SQLiteArea, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	area := &SQLiteArea{db: db, path: dbPath, logger: logger}
	if err := area.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize local store schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("Local store SQLite area initialized")
	return area, nil
}

// initSchema creates the local_storage table if it doesn't exist
func (a *SQLiteArea) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := a.db.Exec(schema)
	return err
}

func (a *SQLiteArea) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := a.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (a *SQLiteArea) Set(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO local_storage (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (a *SQLiteArea) Remove(ctx context.Context, key string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, key)
	return err
}

func (a *SQLiteArea) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT key FROM local_storage
		WHERE substr(key, 1, length(?1)) = ?1
		ORDER BY key
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (a *SQLiteArea) URL() string {
	return "sqlite://" + a.path
}

func (a *SQLiteArea) Close() error {
	return a.db.Close()
}

var _ Area = (*SQLiteArea)(nil)
