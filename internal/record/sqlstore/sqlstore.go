// Package sqlstore implements record.Store on a SQL database. Every
// collection shares one document table keyed by (collection, id); rows are
// stored as JSON so any table of the assessment schema fits without
// migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chequeo/internal/record"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection VARCHAR(64) NOT NULL,
	id BIGINT NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

type Store struct {
	db *sql.DB
}

// Open connects to the database, checks connectivity and creates the
// records table when missing.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverMySQL && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases alive and
		// serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, c record.Collection, id int64) (record.Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM records WHERE collection = ? AND id = ?", c.Name, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &record.NotFoundError{Collection: c.Name, ID: id}
	}
	if err != nil {
		return nil, record.NewStoreError("get", c, id, err)
	}
	return decode(c, id, body)
}

// List loads the collection ordered by key and applies f in process.
func (s *Store) List(ctx context.Context, c record.Collection, f record.Filter) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, body FROM records WHERE collection = ? ORDER BY id", c.Name)
	if err != nil {
		return nil, record.NewStoreError("list", c, 0, err)
	}
	defer rows.Close()

	result := []record.Record{}
	for rows.Next() {
		var (
			id   int64
			body string
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, record.NewStoreError("list", c, 0, err)
		}
		r, err := decode(c, id, body)
		if err != nil {
			return nil, err
		}
		if record.Matches(r, f) {
			result = append(result, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, record.NewStoreError("list", c, 0, err)
	}
	return result, nil
}

// Create stores fields under the key they carry, or under the next free
// key of the collection.
func (s *Store) Create(ctx context.Context, c record.Collection, fields record.Record) (record.Record, error) {
	r := copyRecord(fields)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, record.NewStoreError("create", c, 0, err)
	}
	defer tx.Rollback()

	id, ok := record.IDOf(c, r)
	if !ok || id <= 0 {
		err = tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(id), 0) + 1 FROM records WHERE collection = ?", c.Name).Scan(&id)
		if err != nil {
			return nil, record.NewStoreError("create", c, 0, err)
		}
	}
	r[c.Key] = id

	body, err := json.Marshal(r)
	if err != nil {
		return nil, record.NewStoreError("create", c, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO records (collection, id, body) VALUES (?, ?, ?)", c.Name, id, string(body)); err != nil {
		return nil, record.NewStoreError("create", c, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, record.NewStoreError("create", c, id, err)
	}
	return decode(c, id, string(body))
}

// Update merges fields into the stored row. The key cannot change.
func (s *Store) Update(ctx context.Context, c record.Collection, id int64, fields record.Record) (record.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, record.NewStoreError("update", c, id, err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT body FROM records WHERE collection = ? AND id = ?", c.Name, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &record.NotFoundError{Collection: c.Name, ID: id}
	}
	if err != nil {
		return nil, record.NewStoreError("update", c, id, err)
	}

	r, err := decode(c, id, current)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		r[k] = v
	}
	r[c.Key] = id

	body, err := json.Marshal(r)
	if err != nil {
		return nil, record.NewStoreError("update", c, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE records SET body = ? WHERE collection = ? AND id = ?", string(body), c.Name, id); err != nil {
		return nil, record.NewStoreError("update", c, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, record.NewStoreError("update", c, id, err)
	}
	return decode(c, id, string(body))
}

func (s *Store) Delete(ctx context.Context, c record.Collection, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ? AND id = ?", c.Name, id)
	if err != nil {
		return record.NewStoreError("delete", c, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return record.NewStoreError("delete", c, id, err)
	}
	if n == 0 {
		return &record.NotFoundError{Collection: c.Name, ID: id}
	}
	return nil
}

func decode(c record.Collection, id int64, body string) (record.Record, error) {
	r := record.Record{}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, record.NewStoreError("decode", c, id, err)
	}
	if r == nil {
		r = record.Record{}
	}
	return r, nil
}

func copyRecord(r record.Record) record.Record {
	out := make(record.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
