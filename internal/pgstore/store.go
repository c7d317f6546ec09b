// Package pgstore loads decoded tapes into PostgreSQL with COPY.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"github.com/GeoNet/kit/cfg"
	"github.com/lib/pq"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/export"
)

const errorUniqueViolation pq.ErrorCode = "23505"

// ErrDuplicateFile is returned when a tape with the same id or digest was
// already loaded.
var ErrDuplicateFile = errors.New("pgstore: file already loaded")

//go:embed schema.sql
var schema string

// Schema returns the DDL for the frame tables.
func Schema() string {
	return schema
}

type Store struct {
	db *sql.DB
}

// Open connects using DB_* environment configuration.
func Open() (*Store, error) {
	p, err := cfg.PostgresEnv()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", p.Connection())
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetMaxOpenConns(p.MaxOpen)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// File identifies a tape being loaded.
type File struct {
	ID     int
	Name   string
	Format alsep.Format
	Sha256 string
}

// BatchSource yields decoded batches; *alsep.TapeReader satisfies it.
type BatchSource interface {
	Next() (alsep.Batch, error)
}

// LoadResult counts what a load wrote.
type LoadResult struct {
	Batches   int
	Rows      int
	Truncated bool
}

// Load registers f and copies every frame row of src inside one
// transaction. A partial trailing block ends the load without failing it.
func (s *Store) Load(ctx context.Context, f File, src BatchSource, lsg bool) (LoadResult, error) {
	var res LoadResult
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer txn.Rollback()

	_, err = txn.ExecContext(ctx,
		`INSERT INTO tbl_file (file_id, name, format, sha256) VALUES ($1, $2, $3, $4)`,
		f.ID, f.Name, f.Format.String(), f.Sha256)
	if err != nil {
		if IsUniqueViolation(err) {
			return res, fmt.Errorf("%w: %s (id %d)", ErrDuplicateFile, f.Name, f.ID)
		}
		return res, err
	}

	opts := export.CopyOptions{FileID: f.ID, LSG: lsg}
	table := export.TableFor(f.Format, opts)
	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(table.Name, table.Columns...))
	if err != nil {
		return res, err
	}

	for {
		b, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, alsep.ErrShortBlock) {
				res.Truncated = true
				break
			}
			stmt.Close()
			return res, err
		}
		res.Batches++
		for _, row := range export.Rows(b, opts) {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				stmt.Close()
				return res, err
			}
			res.Rows++
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return res, err
	}
	if err := stmt.Close(); err != nil {
		return res, err
	}
	return res, txn.Commit()
}

// Delete removes a loaded tape and its frames.
func (s *Store) Delete(ctx context.Context, fileID int) (bool, error) {
	r, err := s.db.ExecContext(ctx, `DELETE FROM tbl_file WHERE file_id = $1`, fileID)
	if err != nil {
		return false, err
	}
	n, err := r.RowsAffected()
	return n > 0, err
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == errorUniqueViolation
}
