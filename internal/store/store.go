package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Store owns the connection pool and runs units of work. Repositories built
// on the same pool pick up an open transaction from the context.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// InTx runs fn inside a transaction. A nested call joins the outer
// transaction. Any error returned by fn rolls the whole unit back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.run(ctx, nil, fn)
}

// InReadTx runs fn in a read-only repeatable-read transaction so that every
// query sees the same snapshot.
func (s *Store) InReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// conn returns the transaction carried by ctx, or the pool.
func conn(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

func exec(ctx context.Context, db *sqlx.DB, query string, args ...any) error {
	_, err := conn(ctx, db).ExecContext(ctx, query, args...)
	return translate(err)
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, db *sqlx.DB, query string, args ...any) error {
	result, err := conn(ctx, db).ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func get(ctx context.Context, db *sqlx.DB, dest any, query string, args ...any) error {
	return translate(sqlx.GetContext(ctx, conn(ctx, db), dest, query, args...))
}

func selectAll(ctx context.Context, db *sqlx.DB, dest any, query string, args ...any) error {
	return translate(sqlx.SelectContext(ctx, conn(ctx, db), dest, query, args...))
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	return offset, limit
}
