package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct{ pool *pgxpool.Pool }

func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	return tag.RowsAffected(), mapPGErr(err)
}

func (p *Postgres) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPGErr(err)
	}
	return pgRows{rows}, nil
}

func (p *Postgres) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgRow{p.pool.QueryRow(ctx, query, args...)}
}

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPGErr(err)
	}
	return pgTx{tx}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

type pgTx struct{ tx pgx.Tx }

func (t pgTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	return tag.RowsAffected(), mapPGErr(err)
}

func (t pgTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPGErr(err)
	}
	return pgRows{rows}, nil
}

func (t pgTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgRow{t.tx.QueryRow(ctx, query, args...)}
}

func (t pgTx) Commit(ctx context.Context) error   { return mapPGErr(t.tx.Commit(ctx)) }
func (t pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

type pgRow struct{ row pgx.Row }

func (r pgRow) Scan(dest ...any) error { return mapPGErr(r.row.Scan(dest...)) }

type pgRows struct{ rows pgx.Rows }

func (r pgRows) Next() bool             { return r.rows.Next() }
func (r pgRows) Scan(dest ...any) error { return mapPGErr(r.rows.Scan(dest...)) }
func (r pgRows) Err() error             { return mapPGErr(r.rows.Err()) }
func (r pgRows) Close()                 { r.rows.Close() }

func mapPGErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
