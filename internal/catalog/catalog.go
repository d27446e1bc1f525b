/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package catalog holds point-in-time schema metadata. A Snapshot is built
// once (by a dialect loader or by hand in tests) and is read-only from then
// on; callers that need to see a schema change must load a fresh Snapshot.
package catalog

import "fmt"

// TableID identifies a table within one snapshot. For PostgreSQL this is
// the relation oid; other dialects assign synthetic ids at load time.
type TableID int64

// ColumnRef identifies a column by position rather than name (pg attnum,
// information_schema ordinal_position), so it stays valid across renames
// captured by a later snapshot.
type ColumnRef int

// Column describes one column of a reflected table.
type Column struct {
	Ref      ColumnRef
	Name     string
	DataType string
	Nullable bool
}

// Table describes one reflected table with its columns in ordinal order.
type Table struct {
	ID      TableID
	Name    string
	Columns []Column
}

// NotFoundError reports a table or column missing from a snapshot. It is
// the adapter-level signal that a query definition no longer matches the
// schema it was written against.
type NotFoundError struct {
	Table  TableID
	Column ColumnRef
	Msg    string
}

func (e *NotFoundError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Column != 0 {
		return fmt.Sprintf("column %d of table %d not found in snapshot", e.Column, e.Table)
	}
	return fmt.Sprintf("table %d not found in snapshot", e.Table)
}

// Snapshot is an immutable index of tables by id. All lookups are pure and
// deterministic for the lifetime of the value.
type Snapshot struct {
	tables map[TableID]*indexedTable
}

type indexedTable struct {
	table Table
	byRef map[ColumnRef]int
}

// NewSnapshot indexes the given tables. The input slices are copied so the
// caller cannot alias into the snapshot afterwards.
func NewSnapshot(tables ...Table) *Snapshot {
	s := &Snapshot{tables: make(map[TableID]*indexedTable, len(tables))}
	for _, t := range tables {
		it := &indexedTable{
			table: Table{ID: t.ID, Name: t.Name, Columns: append([]Column(nil), t.Columns...)},
			byRef: make(map[ColumnRef]int, len(t.Columns)),
		}
		for i, c := range it.table.Columns {
			it.byRef[c.Ref] = i
		}
		s.tables[t.ID] = it
	}
	return s
}

// Table returns the reflected table for id.
func (s *Snapshot) Table(id TableID) (Table, error) {
	it, ok := s.tables[id]
	if !ok {
		return Table{}, &NotFoundError{Table: id}
	}
	return it.table, nil
}

// TableName resolves a table id to its name.
func (s *Snapshot) TableName(id TableID) (string, error) {
	t, err := s.Table(id)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// TableColumns returns the table's columns in ordinal order.
func (s *Snapshot) TableColumns(id TableID) ([]Column, error) {
	t, err := s.Table(id)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

// Column resolves a (table, column ref) pair.
func (s *Snapshot) Column(id TableID, ref ColumnRef) (Column, error) {
	it, ok := s.tables[id]
	if !ok {
		return Column{}, &NotFoundError{Table: id}
	}
	i, ok := it.byRef[ref]
	if !ok {
		return Column{}, &NotFoundError{Table: id, Column: ref}
	}
	return it.table.Columns[i], nil
}

// ColumnName resolves a (table, column ref) pair to the column's name.
func (s *Snapshot) ColumnName(id TableID, ref ColumnRef) (string, error) {
	c, err := s.Column(id, ref)
	if err != nil {
		return "", err
	}
	return c.Name, nil
}
