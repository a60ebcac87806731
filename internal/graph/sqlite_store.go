package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed Store. Each namespace node is one row of the
// nodes table; Multi runs inside a single transaction, so a failed batch
// leaves the file untouched.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// querier is the subset of *sql.DB and *sql.Tx the node operations need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLiteStore opens (or creates) the namespace database at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection: transactions and plain reads never race each other
	// for the write lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		name TEXT NOT NULL,
		data BLOB,
		version INTEGER NOT NULL DEFAULT 0,
		mtime INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_parent_name ON nodes(parent_id, name);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(
		"INSERT OR IGNORE INTO nodes (id, parent_id, name, data, mtime) VALUES ('/', NULL, '', NULL, ?)",
		time.Now().UnixNano(),
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create root: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, path string) (bool, error) {
	p, err := Canonical(path)
	if err != nil {
		return false, err
	}
	return exists(ctx, s.db, p)
}

func exists(ctx context.Context, q querier, p string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM nodes WHERE id = ?", p).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", p, err)
	}
	return true, nil
}

// GetData implements Store.
func (s *SQLiteStore) GetData(ctx context.Context, path string) ([]byte, error) {
	p, err := Canonical(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, "SELECT data FROM nodes WHERE id = ?", p).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get data %s: %w", p, err)
	}
	return data, nil
}

// GetChildren implements Store. Names come back sorted.
func (s *SQLiteStore) GetChildren(ctx context.Context, path string) ([]string, error) {
	p, err := Canonical(path)
	if err != nil {
		return nil, err
	}
	ok, err := exists(ctx, s.db, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return children(ctx, s.db, p)
}

func children(ctx context.Context, q querier, p string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM nodes WHERE parent_id = ? ORDER BY name", p)
	if err != nil {
		return nil, fmt.Errorf("list children %s: %w", p, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, path string, data []byte) error {
	return s.Multi(ctx, []Op{CreateOp(path, data)})
}

// SetData implements Store.
func (s *SQLiteStore) SetData(ctx context.Context, path string, data []byte) error {
	return s.Multi(ctx, []Op{SetDataOp(path, data)})
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	return s.Multi(ctx, []Op{DeleteOp(path)})
}

// Multi implements Store.
func (s *SQLiteStore) Multi(ctx context.Context, ops []Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin multi: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	now := time.Now().UnixNano()
	for i, op := range ops {
		p, err := Canonical(op.Path)
		if err == nil {
			err = applySQL(ctx, tx, op.Kind, p, op.Data, now)
		}
		if err != nil {
			return &OpError{Index: i, Op: op, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit multi: %w", err)
	}
	return nil
}

func applySQL(ctx context.Context, q querier, kind OpKind, p string, data []byte, now int64) error {
	switch kind {
	case OpCreate:
		if ok, err := exists(ctx, q, p); err != nil {
			return err
		} else if ok {
			return ErrNodeExists
		}
		parent := Parent(p)
		if ok, err := exists(ctx, q, parent); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}
		if data == nil {
			data = []byte{}
		}
		_, err := q.ExecContext(ctx,
			"INSERT INTO nodes (id, parent_id, name, data, version, mtime) VALUES (?, ?, ?, ?, 0, ?)",
			p, parent, Base(p), data, now,
		)
		if err != nil {
			return fmt.Errorf("insert %s: %w", p, err)
		}
	case OpSetData:
		if data == nil {
			data = []byte{}
		}
		res, err := q.ExecContext(ctx,
			"UPDATE nodes SET data = ?, version = version + 1, mtime = ? WHERE id = ?",
			data, now, p,
		)
		if err != nil {
			return fmt.Errorf("update %s: %w", p, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
	case OpDelete:
		if p == "/" {
			return ErrBadPath
		}
		names, err := children(ctx, q, p)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			return ErrNotEmpty
		}
		res, err := q.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", p)
		if err != nil {
			return fmt.Errorf("delete %s: %w", p, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
	default:
		return fmt.Errorf("unknown op kind %v", kind)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DBPath returns the path of the backing database file.
func (s *SQLiteStore) DBPath() string {
	return s.dbPath
}

// Verify interface compliance at compile time.
var _ Store = (*SQLiteStore)(nil)
