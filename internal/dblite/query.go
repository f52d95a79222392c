package dblite

import (
	"context"
	"iter"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// Row is one result row; values are int64, float64, string, []byte or nil.
type Row []any

// Select runs query lazily. Rows are produced one at a time while the
// caller ranges; breaking out of the loop releases the cursor.
func (db *DB) Select(query string, args ...any) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		rows, err := db.conn.QueryContext(context.Background(), db.callSQL(query), args...)
		if err != nil {
			yield(nil, dberrors.NewSQLError(FormatSQL(query, args...), err))
			return
		}
		defer func() { _ = rows.Close() }()

		cols, err := rows.Columns()
		if err != nil {
			yield(nil, err)
			return
		}

		for rows.Next() {
			row := make(Row, len(cols))
			ptrs := make([]any, len(cols))
			for i := range row {
				ptrs[i] = &row[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, dberrors.NewSQLError(FormatSQL(query, args...), err))
		}
	}
}

// All collects every row of query.
func (db *DB) All(query string, args ...any) ([]Row, error) {
	var out []Row
	for row, err := range db.Select(query, args...) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Scalar returns the first column of the first row, or nil when there is none.
func (db *DB) Scalar(query string, args ...any) (any, error) {
	for row, err := range db.Select(query, args...) {
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			return nil, nil
		}
		return row[0], nil
	}
	return nil, nil
}

// Int returns Scalar converted to int64; NULL becomes 0.
func (db *DB) Int(query string, args ...any) (int64, error) {
	v, err := db.Scalar(query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := ToInt64(v)
	return n, nil
}

// Strings returns the first column of every row as text.
func (db *DB) Strings(query string, args ...any) ([]string, error) {
	var out []string
	for row, err := range db.Select(query, args...) {
		if err != nil {
			return nil, err
		}
		s, _ := ToString(row[0])
		out = append(out, s)
	}
	return out, nil
}

// Values returns the first column of every row.
func (db *DB) Values(query string, args ...any) ([]any, error) {
	var out []any
	for row, err := range db.Select(query, args...) {
		if err != nil {
			return nil, err
		}
		out = append(out, row[0])
	}
	return out, nil
}

// Query runs query and returns its column names along with every row.
func (db *DB) Query(query string, args ...any) ([]string, []Row, error) {
	rows, err := db.conn.QueryContext(context.Background(), db.callSQL(query), args...)
	if err != nil {
		return nil, nil, dberrors.NewSQLError(FormatSQL(query, args...), err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out []Row
	for rows.Next() {
		row := make(Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, dberrors.NewSQLError(FormatSQL(query, args...), err)
	}
	return cols, out, nil
}
