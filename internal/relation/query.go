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
package relation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
)

// countAlias labels the single column of a Count projection.
const countAlias = "_count"

// Query is the externally visible entry point: a base table, its initial
// columns, an immutable transformation chain, and the metadata snapshot the
// whole evaluation is pinned to. Compilation is pure; independent queries
// can compile in parallel.
type Query struct {
	name           string
	baseTable      catalog.TableID
	initialColumns []InitialColumn
	transforms     []Transform
	reflector      Reflector
}

// New validates the definition and binds it to a reflector. Aliases must be
// non-blank and unique across initial columns; violations are rejected here,
// before any compilation is attempted. If the underlying schema changes, a
// fresh Query over a fresh snapshot must be constructed.
func New(name string, baseTable catalog.TableID, initialColumns []InitialColumn, transforms []Transform, reflector Reflector) (*Query, error) {
	if reflector == nil {
		return nil, fmt.Errorf("query requires a reflector")
	}
	seen := make(map[string]struct{}, len(initialColumns))
	for _, ic := range initialColumns {
		if strings.TrimSpace(ic.Alias) == "" {
			return nil, &AliasConflictError{Alias: ic.Alias, Msg: "initial column alias must not be blank"}
		}
		if _, dup := seen[ic.Alias]; dup {
			return nil, &AliasConflictError{Alias: ic.Alias, Msg: "duplicate initial column alias"}
		}
		seen[ic.Alias] = struct{}{}
	}
	return &Query{
		name:           relationName(name),
		baseTable:      baseTable,
		initialColumns: append([]InitialColumn(nil), initialColumns...),
		transforms:     append([]Transform(nil), transforms...),
		reflector:      reflector,
	}, nil
}

// relationName derives a safe derived-table name from the query name.
func relationName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "q"
	}
	return b.String()
}

// InitialColumns returns the declared initial columns in order.
func (q *Query) InitialColumns() []InitialColumn {
	return append([]InitialColumn(nil), q.initialColumns...)
}

// Transforms returns the stored transformation chain.
func (q *Query) Transforms() []Transform {
	return append([]Transform(nil), q.transforms...)
}

// InitialAliases returns the initial columns' aliases in declaration order.
func (q *Query) InitialAliases() []string {
	aliases := make([]string, len(q.initialColumns))
	for i, ic := range q.initialColumns {
		aliases[i] = ic.Alias
	}
	return aliases
}

// InitialRelation compiles the joined, projected relation the
// transformation chain starts from.
func (q *Query) InitialRelation() (*Relation, error) {
	return buildInitialRelation(q.name, q.baseTable, q.initialColumns, q.reflector)
}

// TransformedRelation compiles the full relation this query describes.
func (q *Query) TransformedRelation() (*Relation, error) {
	rel, err := q.InitialRelation()
	if err != nil {
		return nil, err
	}
	return applyTransforms(rel, q.transforms)
}

// Records compiles and executes the query. extra transforms are
// request-scoped (a temporary sort or page, the way a table view applies
// them on top of a saved query) and are not part of the stored chain. When
// neither the stored chain nor extra contains an Order, a deterministic
// default ordering over all output aliases is inserted ahead of the extra
// transforms so pagination stays stable.
func (q *Query) Records(ctx context.Context, ex Executor, extra ...Transform) ([]Row, error) {
	rel, err := q.TransformedRelation()
	if err != nil {
		return nil, err
	}
	chain := extra
	if !HasExplicitOrder(q.transforms) && !HasExplicitOrder(extra) {
		fields := make([]SortField, len(rel.columns))
		for i, c := range rel.columns {
			fields[i] = SortField{Alias: c.Alias}
		}
		chain = append([]Transform{Order{Fields: fields}}, extra...)
	}
	rel, err = applyTransforms(rel, chain)
	if err != nil {
		return nil, err
	}
	query, args, err := rel.SQL()
	if err != nil {
		return nil, err
	}
	return ex.Query(ctx, query, args...)
}

// Count compiles a count(*) projection over the transformed relation (plus
// any request-scoped extra transforms, typically filters) and executes it.
func (q *Query) Count(ctx context.Context, ex Executor, extra ...Transform) (int64, error) {
	rel, err := q.TransformedRelation()
	if err != nil {
		return 0, err
	}
	rel, err = applyTransforms(rel, extra)
	if err != nil {
		return 0, err
	}
	b := sq.Select("count(*) AS " + quoteIdent(countAlias)).
		FromSelect(rel.builder, rel.derivedAlias())
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := ex.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	return toInt64(rows[0][countAlias])
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count value of type %T", v)
	}
}

// OutputColumns describes the final relation's columns in order. Intended
// for metadata display; it compiles the full chain to get there.
func (q *Query) OutputColumns() ([]Column, error) {
	rel, err := q.TransformedRelation()
	if err != nil {
		return nil, err
	}
	return rel.Columns(), nil
}

// AllColumns maps every alias that exists at any chain prefix to its column
// descriptor, later prefixes winning on collision. Expensive: it compiles
// each prefix. A diagnostic, not a hot path; results must not be cached
// across snapshots.
func (q *Query) AllColumns() (map[string]Column, error) {
	rel, err := q.InitialRelation()
	if err != nil {
		return nil, err
	}
	m := make(map[string]Column)
	for _, c := range rel.Columns() {
		m[c.Alias] = c
	}
	for i, t := range q.transforms {
		rel, err = t.Apply(rel)
		if err != nil {
			return nil, fmt.Errorf("applying %s transform at position %d: %w", describeTransform(t), i, err)
		}
		for _, c := range rel.Columns() {
			m[c.Alias] = c
		}
	}
	return m, nil
}
