package database

import (
	"context"
	"errors"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeQuerier answers Query with canned rows and records the last call.
type fakeQuerier struct {
	rows [][]any
	err  error

	sql  string
	args []any
}

func (f *fakeQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("exec not supported")
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.sql, f.args = sql, args
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return &fakeRows{pos: -1}
}

func (f *fakeQuerier) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported")
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos], nil
}

// Scan copies each canned value into the matching destination pointer.
// Values must have exactly the destination's element type.
func (r *fakeRows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return pgx.ErrNoRows
	}
	row := r.rows[r.pos]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}
