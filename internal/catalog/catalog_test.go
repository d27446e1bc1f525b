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
package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshot() *Snapshot {
	return NewSnapshot(
		Table{ID: 10, Name: "customers", Columns: []Column{
			{Ref: 1, Name: "id", DataType: "integer"},
			{Ref: 2, Name: "name", DataType: "text", Nullable: true},
		}},
		Table{ID: 20, Name: "orders", Columns: []Column{
			{Ref: 1, Name: "id", DataType: "integer"},
			{Ref: 5, Name: "total", DataType: "numeric", Nullable: true},
		}},
	)
}

func TestSnapshotLookups(t *testing.T) {
	s := newTestSnapshot()

	name, err := s.TableName(10)
	require.NoError(t, err)
	assert.Equal(t, "customers", name)

	tbl, err := s.Table(20)
	require.NoError(t, err)
	assert.Equal(t, "orders", tbl.Name)
	assert.Len(t, tbl.Columns, 2)

	// Refs are not required to be contiguous (dropped columns leave gaps).
	col, err := s.Column(20, 5)
	require.NoError(t, err)
	assert.Equal(t, Column{Ref: 5, Name: "total", DataType: "numeric", Nullable: true}, col)

	colName, err := s.ColumnName(10, 2)
	require.NoError(t, err)
	assert.Equal(t, "name", colName)

	cols, err := s.TableColumns(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, []string{cols[0].Name, cols[1].Name})
}

func TestSnapshotNotFound(t *testing.T) {
	s := newTestSnapshot()

	_, err := s.TableName(99)
	require.Error(t, err)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, TableID(99), nf.Table)
	assert.Contains(t, nf.Error(), "table 99")

	_, err = s.Column(10, 9)
	require.Error(t, err)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, TableID(10), nf.Table)
	assert.Equal(t, ColumnRef(9), nf.Column)
	assert.Contains(t, nf.Error(), "column 9")

	_, err = s.Column(99, 1)
	require.Error(t, err)
}

func TestNewSnapshotCopiesColumns(t *testing.T) {
	cols := []Column{{Ref: 1, Name: "id", DataType: "integer"}}
	s := NewSnapshot(Table{ID: 1, Name: "t", Columns: cols})

	cols[0].Name = "mutated"

	got, err := s.ColumnName(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "id", got)
}

func TestNotFoundErrorMessageOverride(t *testing.T) {
	err := &NotFoundError{Table: 1, Msg: "custom message"}
	assert.Equal(t, "custom message", err.Error())
}
