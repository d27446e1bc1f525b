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
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Transform is one step of a query's transformation chain. Each variant can
// apply itself to a relation, compute its output aliases from a set of
// input aliases, and report which output alias derives from which input
// alias. The lineage map is partial: an output alias with no entry cannot
// be traced back to a single source column (aggregation outputs, for
// example), and a variant that preserves an alias must carry an identity
// entry for it.
type Transform interface {
	Apply(r *Relation) (*Relation, error)
	OutputAliases(in []string) []string
	LineageMap(in []string) map[string]string
}

var (
	_ Transform = Filter{}
	_ Transform = Order{}
	_ Transform = Aggregate{}
	_ Transform = Project{}
	_ Transform = Limit{}
)

// HasExplicitOrder reports whether any transform in the chain is an Order.
// When true, the facade must not impose a default ordering on top.
func HasExplicitOrder(chain []Transform) bool {
	for _, t := range chain {
		if _, ok := t.(Order); ok {
			return true
		}
	}
	return false
}

// Predicate is a filter condition over the current output aliases: either a
// leaf comparison on one column or an and/or combination of sub-predicates.
type Predicate struct {
	Op         string // and, or, eq, ne, gt, gte, lt, lte, like, null, notnull
	Conditions []Predicate
	Column     string
	Value      any
}

func (p Predicate) sqlizer() (sq.Sqlizer, error) {
	switch p.Op {
	case "and", "or":
		if len(p.Conditions) == 0 {
			return nil, fmt.Errorf("%q predicate requires at least one condition", p.Op)
		}
		parts := make([]sq.Sqlizer, len(p.Conditions))
		for i, c := range p.Conditions {
			s, err := c.sqlizer()
			if err != nil {
				return nil, err
			}
			parts[i] = s
		}
		if p.Op == "and" {
			return sq.And(parts), nil
		}
		return sq.Or(parts), nil
	}

	col := quoteIdent(p.Column)
	switch p.Op {
	case "eq":
		return sq.Eq{col: p.Value}, nil
	case "ne":
		return sq.NotEq{col: p.Value}, nil
	case "gt":
		return sq.Gt{col: p.Value}, nil
	case "gte":
		return sq.GtOrEq{col: p.Value}, nil
	case "lt":
		return sq.Lt{col: p.Value}, nil
	case "lte":
		return sq.LtOrEq{col: p.Value}, nil
	case "like":
		return sq.Like{col: p.Value}, nil
	case "null":
		return sq.Eq{col: nil}, nil
	case "notnull":
		return sq.NotEq{col: nil}, nil
	default:
		return nil, fmt.Errorf("unsupported predicate op: %q", p.Op)
	}
}

// columns reports every alias the predicate references.
func (p Predicate) columns() []string {
	if p.Op == "and" || p.Op == "or" {
		var all []string
		for _, c := range p.Conditions {
			all = append(all, c.columns()...)
		}
		return all
	}
	return []string{p.Column}
}

// Filter keeps the rows matching its predicate. The alias set is unchanged
// and every alias maps to itself.
type Filter struct {
	Predicate Predicate
}

func (t Filter) Apply(r *Relation) (*Relation, error) {
	for _, col := range t.Predicate.columns() {
		if _, ok := r.column(col); !ok {
			return nil, fmt.Errorf("filter references unknown alias %q", col)
		}
	}
	pred, err := t.Predicate.sqlizer()
	if err != nil {
		return nil, err
	}
	return &Relation{
		builder: r.wrapAll().Where(pred),
		columns: r.Columns(),
		name:    r.name,
		depth:   r.depth + 1,
		joins:   r.joins,
	}, nil
}

func (t Filter) OutputAliases(in []string) []string {
	return append([]string(nil), in...)
}

func (t Filter) LineageMap(in []string) map[string]string {
	return identityLineage(in)
}

// SortField is one ordering term of an Order transform.
type SortField struct {
	Alias      string
	Descending bool
}

// Order sorts by one or more aliases. Its presence in a chain suppresses
// the facade's default ordering.
type Order struct {
	Fields []SortField
}

func (t Order) Apply(r *Relation) (*Relation, error) {
	if len(t.Fields) == 0 {
		return nil, fmt.Errorf("order transform requires at least one field")
	}
	terms := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		if _, ok := r.column(f.Alias); !ok {
			return nil, fmt.Errorf("order references unknown alias %q", f.Alias)
		}
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		terms[i] = fmt.Sprintf("%s %s", quoteIdent(f.Alias), dir)
	}
	return &Relation{
		builder: r.wrapAll().OrderBy(terms...),
		columns: r.Columns(),
		name:    r.name,
		depth:   r.depth + 1,
		joins:   r.joins,
	}, nil
}

func (t Order) OutputAliases(in []string) []string {
	return append([]string(nil), in...)
}

func (t Order) LineageMap(in []string) map[string]string {
	return identityLineage(in)
}

// Aggregation is one aggregate expression of an Aggregate transform.
type Aggregation struct {
	Function string // count, sum, avg, min, max
	Input    string // source alias; ignored for count
	Output   string
}

// Aggregate groups by a subset of the input aliases and produces new
// aliases for aggregate expressions. Group keys keep their lineage;
// aggregate outputs deliberately have none, since the grouping breaks the
// row-to-row correspondence tracing relies on.
type Aggregate struct {
	GroupBy      []string
	Aggregations []Aggregation
}

func (t Aggregate) Apply(r *Relation) (*Relation, error) {
	if len(t.Aggregations) == 0 {
		return nil, fmt.Errorf("aggregate transform requires at least one aggregation")
	}
	exprs := make([]string, 0, len(t.GroupBy)+len(t.Aggregations))
	columns := make([]Column, 0, len(t.GroupBy)+len(t.Aggregations))
	groups := make([]string, len(t.GroupBy))
	for i, key := range t.GroupBy {
		col, ok := r.column(key)
		if !ok {
			return nil, fmt.Errorf("aggregate groups by unknown alias %q", key)
		}
		exprs = append(exprs, quoteIdent(key))
		columns = append(columns, col)
		groups[i] = quoteIdent(key)
	}
	for _, agg := range t.Aggregations {
		expr, dataType, err := agg.render(r)
		if err != nil {
			return nil, err
		}
		for _, c := range columns {
			if c.Alias == agg.Output {
				return nil, &AliasConflictError{Alias: agg.Output, Msg: "duplicate aggregate output"}
			}
		}
		exprs = append(exprs, expr)
		columns = append(columns, Column{Alias: agg.Output, DataType: dataType})
	}
	b := sq.Select(exprs...).FromSelect(r.builder, r.derivedAlias()).GroupBy(groups...)
	return &Relation{
		builder: b,
		columns: columns,
		name:    r.name,
		depth:   r.depth + 1,
		joins:   r.joins,
	}, nil
}

func (agg Aggregation) render(r *Relation) (expr, dataType string, err error) {
	if agg.Output == "" {
		return "", "", fmt.Errorf("aggregation output alias must not be empty")
	}
	switch agg.Function {
	case "count":
		if agg.Input == "" {
			return fmt.Sprintf("count(*) AS %s", quoteIdent(agg.Output)), "bigint", nil
		}
		if _, ok := r.column(agg.Input); !ok {
			return "", "", fmt.Errorf("aggregation references unknown alias %q", agg.Input)
		}
		return fmt.Sprintf("count(%s) AS %s", quoteIdent(agg.Input), quoteIdent(agg.Output)), "bigint", nil
	case "sum", "avg", "min", "max":
		col, ok := r.column(agg.Input)
		if !ok {
			return "", "", fmt.Errorf("aggregation references unknown alias %q", agg.Input)
		}
		dataType = col.DataType
		if agg.Function == "avg" {
			dataType = "numeric"
		}
		return fmt.Sprintf("%s(%s) AS %s", agg.Function, quoteIdent(agg.Input), quoteIdent(agg.Output)), dataType, nil
	default:
		return "", "", fmt.Errorf("unsupported aggregation function: %q", agg.Function)
	}
}

func (t Aggregate) OutputAliases(in []string) []string {
	out := append([]string(nil), t.GroupBy...)
	for _, agg := range t.Aggregations {
		out = append(out, agg.Output)
	}
	return out
}

func (t Aggregate) LineageMap(in []string) map[string]string {
	m := make(map[string]string, len(t.GroupBy))
	for _, key := range t.GroupBy {
		m[key] = key
	}
	return m
}

// ProjectedColumn is one output of a Project transform. An empty Output
// keeps the input alias.
type ProjectedColumn struct {
	Input  string
	Output string
}

func (p ProjectedColumn) output() string {
	if p.Output != "" {
		return p.Output
	}
	return p.Input
}

// Project narrows and/or renames the alias set. Output order is the
// declared projection order; each output traces to its input.
type Project struct {
	Columns []ProjectedColumn
}

func (t Project) Apply(r *Relation) (*Relation, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("project transform requires at least one column")
	}
	selected := make([]selectedColumn, len(t.Columns))
	columns := make([]Column, len(t.Columns))
	for i, p := range t.Columns {
		col, ok := r.column(p.Input)
		if !ok {
			return nil, fmt.Errorf("project references unknown alias %q", p.Input)
		}
		selected[i] = selectedColumn{input: p.Input, output: p.output()}
		columns[i] = Column{Alias: p.output(), DataType: col.DataType}
	}
	return &Relation{
		builder: r.wrap(selected),
		columns: columns,
		name:    r.name,
		depth:   r.depth + 1,
		joins:   r.joins,
	}, nil
}

func (t Project) OutputAliases(in []string) []string {
	out := make([]string, len(t.Columns))
	for i, p := range t.Columns {
		out[i] = p.output()
	}
	return out
}

func (t Project) LineageMap(in []string) map[string]string {
	m := make(map[string]string, len(t.Columns))
	for _, p := range t.Columns {
		m[p.output()] = p.Input
	}
	return m
}

// Limit caps the row count, optionally skipping an offset first. A zero
// Count emits no LIMIT clause.
type Limit struct {
	Count  uint64
	Offset uint64
}

func (t Limit) Apply(r *Relation) (*Relation, error) {
	b := r.wrapAll()
	if t.Count > 0 {
		b = b.Limit(t.Count)
	}
	if t.Offset > 0 {
		b = b.Offset(t.Offset)
	}
	return &Relation{
		builder: b,
		columns: r.Columns(),
		name:    r.name,
		depth:   r.depth + 1,
		joins:   r.joins,
	}, nil
}

func (t Limit) OutputAliases(in []string) []string {
	return append([]string(nil), in...)
}

func (t Limit) LineageMap(in []string) map[string]string {
	return identityLineage(in)
}

func identityLineage(in []string) map[string]string {
	m := make(map[string]string, len(in))
	for _, alias := range in {
		m[alias] = alias
	}
	return m
}

// describeTransform names a transform for error messages.
func describeTransform(t Transform) string {
	switch t.(type) {
	case Filter:
		return "filter"
	case Order:
		return "order"
	case Aggregate:
		return "aggregate"
	case Project:
		return "project"
	case Limit:
		return "limit"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", t), "relation.")
	}
}
