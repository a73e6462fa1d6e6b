package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type MySQL struct{ db *sql.DB }

// ConnectMySQL opens a pool against MySQL. The DSN must carry parseTime=true
// so DATETIME columns scan into time.Time.
func ConnectMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQL{db: db}, nil
}

func (m *MySQL) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := m.db.ExecContext(ctx, Rebind(query), args...)
	if err != nil {
		return 0, mapMySQLErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapMySQLErr(err)
}

func (m *MySQL) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := m.db.QueryContext(ctx, Rebind(query), args...)
	if err != nil {
		return nil, mapMySQLErr(err)
	}
	return sqlRows{rows}, nil
}

func (m *MySQL) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{m.db.QueryRowContext(ctx, Rebind(query), args...)}
}

func (m *MySQL) Begin(ctx context.Context) (Tx, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapMySQLErr(err)
	}
	return &sqlTx{tx: tx}, nil
}

func (m *MySQL) Close() { _ = m.db.Close() }

type sqlTx struct {
	tx   *sql.Tx
	done bool
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, Rebind(query), args...)
	if err != nil {
		return 0, mapMySQLErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapMySQLErr(err)
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, Rebind(query), args...)
	if err != nil {
		return nil, mapMySQLErr(err)
	}
	return sqlRows{rows}, nil
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{t.tx.QueryRowContext(ctx, Rebind(query), args...)}
}

func (t *sqlTx) Commit(ctx context.Context) error {
	t.done = true
	return mapMySQLErr(t.tx.Commit())
}

// Rollback after Commit is a no-op so `defer tx.Rollback(ctx)` stays safe,
// matching pgx semantics.
func (t *sqlTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

type sqlRow struct{ row *sql.Row }

func (r sqlRow) Scan(dest ...any) error { return mapMySQLErr(r.row.Scan(dest...)) }

type sqlRows struct{ rows *sql.Rows }

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return mapMySQLErr(r.rows.Scan(dest...)) }
func (r sqlRows) Err() error             { return mapMySQLErr(r.rows.Err()) }
func (r sqlRows) Close()                 { _ = r.rows.Close() }

// Rebind rewrites $1..$n placeholders to MySQL's ?. Arguments are always
// passed in placeholder order, so positions are preserved.
func Rebind(query string) string {
	if !strings.ContainsRune(query, '$') {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func mapMySQLErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrDuplicate
	}
	return err
}
