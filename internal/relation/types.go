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

// Package relation compiles a declarative query definition (base table,
// initial columns reached across joins, an ordered transformation chain)
// into an executable relational statement, and can trace any output alias
// back to the initial column it derives from.
package relation

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
)

// JoinParameter describes one equality-join edge between a column of a left
// table and a column of a right table. Columns are identified by stable
// refs, not names, so the descriptor survives column renames between
// snapshots. The zero-field struct comparison gives structural equality.
type JoinParameter struct {
	LeftTable   catalog.TableID
	LeftColumn  catalog.ColumnRef
	RightTable  catalog.TableID
	RightColumn catalog.ColumnRef
}

// InitialColumn references one source column, reached from the base table
// via zero or more join parameters, and labels it with a user-visible
// alias. Values are immutable once constructed.
type InitialColumn struct {
	Table    catalog.TableID
	Column   catalog.ColumnRef
	Alias    string
	JoinPath []JoinParameter
}

// IsBaseColumn reports whether the column lives on the query's base table,
// i.e. its join path is empty.
func (c InitialColumn) IsBaseColumn() bool {
	return len(c.JoinPath) == 0
}

// pathKey encodes an ordered join-parameter prefix as a map key. A join is
// identified by the full path used to reach it, not by the right table
// alone: two paths that revisit the same table must stay distinct, while
// the same prefix reached through different initial columns must collapse.
func pathKey(path []JoinParameter) string {
	var b strings.Builder
	for _, jp := range path {
		fmt.Fprintf(&b, "%d.%d>%d.%d|", jp.LeftTable, jp.LeftColumn, jp.RightTable, jp.RightColumn)
	}
	return b.String()
}

// Reflector is the catalog lookup surface the compiler needs. It must be
// deterministic for the lifetime of one compile; *catalog.Snapshot
// implements it.
type Reflector interface {
	TableName(id catalog.TableID) (string, error)
	Column(id catalog.TableID, ref catalog.ColumnRef) (catalog.Column, error)
}

var _ Reflector = (*catalog.Snapshot)(nil)

// Row is one result row, keyed by output alias.
type Row map[string]any

// Executor runs a compiled statement against a data store. Execution errors
// are opaque to the compiler and propagated unchanged.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
}
