// Package testutil provides a stub database for postgres store tests.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StubConn records statements and keeps rows in memory. It understands the
// small SQL subset the store issues: INSERT (with ON CONFLICT upserts), DELETE
// and SELECT with equality predicates joined by AND, and TRUNCATE TABLE.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailPing   bool
	FailBegin  bool
	RowsErr    error
	FailTables map[string]bool
	FailCommit bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Rollback restores the tables as they were at begin.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	saved := make(map[string][]map[string]any, len(c.Tables))
	for table, rows := range c.Tables {
		saved[table] = slices.Clone(rows)
	}
	return &stubTx{conn: c, saved: saved}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "TRUNCATE TABLE"):
		table := strings.ToLower(strings.Fields(strings.TrimSpace(query))[2])
		delete(c.Tables, table)
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(upper, "INSERT INTO"):
		return c.insert(query, args)
	case strings.HasPrefix(upper, "DELETE FROM"):
		table, preds, err := parseDelete(query)
		if err != nil {
			return nil, err
		}
		if c.FailTables[table] {
			return nil, fmt.Errorf("exec fail for %s", table)
		}
		var kept []map[string]any
		var removed int64
		for _, row := range c.Tables[table] {
			if matches(row, preds, args) {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		c.Tables[table] = kept
		return driver.RowsAffected(removed), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	conflict := parseConflict(query)
	var kept []map[string]any
	for _, existing := range c.Tables[table] {
		if len(conflict) > 0 && sameKey(existing, row, conflict) {
			continue
		}
		kept = append(kept, existing)
	}
	c.Tables[table] = append(kept, row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	table, cols, preds, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	var values [][]driver.Value
	for _, row := range c.Tables[table] {
		if !matches(row, preds, args) {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

type stubTx struct {
	conn  *StubConn
	saved map[string][]map[string]any
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		t.conn.Tables = t.saved
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.Tables = maps.Clone(t.saved)
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// predicate binds a column to a positional argument ($1 is index 0).
type predicate struct {
	col string
	arg int
}

func matches(row map[string]any, preds []predicate, args []driver.NamedValue) bool {
	for _, p := range preds {
		if p.arg >= len(args) || !equalValue(row[p.col], args[p.arg].Value) {
			return false
		}
	}
	return true
}

func sameKey(a, b map[string]any, cols []string) bool {
	for _, col := range cols {
		if !equalValue(a[col], b[col]) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		return aok && bok && bytes.Equal(ab, bb)
	}
	return a == b
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

func parseConflict(query string) []string {
	up := strings.ToUpper(query)
	idx := strings.Index(up, "ON CONFLICT")
	if idx == -1 {
		return nil
	}
	rest := query[idx+len("ON CONFLICT"):]
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx <= open {
		return nil
	}
	return splitColumns(rest[open+1 : closeIdx])
}

func parseDelete(query string) (string, []predicate, error) {
	trimmed := strings.TrimSpace(query)
	prefix := "delete from "
	if !strings.HasPrefix(strings.ToLower(trimmed), prefix) {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	rest := strings.TrimSpace(trimmed[len(prefix):])
	table, preds, err := splitWhere(rest)
	if err != nil {
		return "", nil, fmt.Errorf("cannot parse delete: %w", err)
	}
	return table, preds, nil
}

func parseSelect(query string) (string, []string, []predicate, error) {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := splitColumns(trimmed[len("select "):fromIdx])
	table, preds, err := splitWhere(strings.TrimSpace(trimmed[fromIdx+len(" from "):]))
	if err != nil {
		return "", nil, nil, fmt.Errorf("cannot parse select: %w", err)
	}
	return table, cols, preds, nil
}

// splitWhere parses "table [WHERE a = $1 AND b = $2]".
func splitWhere(rest string) (string, []predicate, error) {
	lower := strings.ToLower(rest)
	whereIdx := strings.Index(lower, " where ")
	if whereIdx == -1 {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return "", nil, fmt.Errorf("missing table in %q", rest)
		}
		return strings.ToLower(fields[0]), nil, nil
	}
	table := strings.ToLower(strings.TrimSpace(rest[:whereIdx]))
	clause := rest[whereIdx+len(" where "):]
	var preds []predicate
	for _, part := range strings.Split(strings.ReplaceAll(clause, " AND ", " and "), " and ") {
		lhs, rhs, ok := strings.Cut(part, "=")
		if !ok {
			return "", nil, fmt.Errorf("unsupported predicate %q", part)
		}
		placeholder := strings.TrimPrefix(strings.TrimSpace(rhs), "$")
		n, err := strconv.Atoi(placeholder)
		if err != nil || n < 1 {
			return "", nil, fmt.Errorf("unsupported placeholder %q", rhs)
		}
		preds = append(preds, predicate{col: strings.ToLower(strings.TrimSpace(lhs)), arg: n - 1})
	}
	return table, preds, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
