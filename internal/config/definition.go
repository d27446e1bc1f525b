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
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/relation"
)

// Definition is the on-disk form of a query: base table, initial columns
// (possibly reached across join paths) and the transformation chain.
// YAML and JSON are both accepted.
type Definition struct {
	Name            string         `mapstructure:"name"`
	BaseTable       int64          `mapstructure:"base_table"`
	Columns         []ColumnDef    `mapstructure:"columns"`
	Transformations []TransformDef `mapstructure:"transformations"`
}

// ColumnDef declares one initial column.
type ColumnDef struct {
	Alias    string    `mapstructure:"alias"`
	Table    int64     `mapstructure:"table"`
	Column   int       `mapstructure:"column"`
	JoinPath []JoinDef `mapstructure:"join_path"`
}

// JoinDef declares one equality-join edge of a join path.
type JoinDef struct {
	LeftTable   int64 `mapstructure:"left_table"`
	LeftColumn  int   `mapstructure:"left_column"`
	RightTable  int64 `mapstructure:"right_table"`
	RightColumn int   `mapstructure:"right_column"`
}

// TransformDef declares one chain step; Type selects which of the variant
// fields apply.
type TransformDef struct {
	Type         string           `mapstructure:"type"`
	Predicate    *PredicateDef    `mapstructure:"predicate"`
	Fields       []SortFieldDef   `mapstructure:"fields"`
	GroupBy      []string         `mapstructure:"group_by"`
	Aggregations []AggregationDef `mapstructure:"aggregations"`
	Columns      []ProjectDef     `mapstructure:"columns"`
	Count        uint64           `mapstructure:"count"`
	Offset       uint64           `mapstructure:"offset"`
}

// PredicateDef declares a filter condition tree.
type PredicateDef struct {
	Op         string         `mapstructure:"op"`
	Conditions []PredicateDef `mapstructure:"conditions"`
	Column     string         `mapstructure:"column"`
	Value      any            `mapstructure:"value"`
}

// SortFieldDef declares one ordering term.
type SortFieldDef struct {
	Alias      string `mapstructure:"alias"`
	Descending bool   `mapstructure:"descending"`
}

// AggregationDef declares one aggregate expression.
type AggregationDef struct {
	Function string `mapstructure:"function"`
	Input    string `mapstructure:"input"`
	Output   string `mapstructure:"output"`
}

// ProjectDef declares one projected column; an empty output keeps the
// input alias.
type ProjectDef struct {
	Input  string `mapstructure:"input"`
	Output string `mapstructure:"output"`
}

// LoadDefinition reads a query definition file.
func LoadDefinition(path string) (*Definition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading query definition %s: %w", path, err)
	}
	var def Definition
	if err := v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("parsing query definition %s: %w", path, err)
	}
	if def.BaseTable == 0 {
		return nil, fmt.Errorf("query definition %s: base_table is required", path)
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("query definition %s: at least one column is required", path)
	}
	return &def, nil
}

// Build converts the definition into a compilable query bound to the given
// reflector.
func (d *Definition) Build(ref relation.Reflector) (*relation.Query, error) {
	cols := make([]relation.InitialColumn, len(d.Columns))
	for i, c := range d.Columns {
		path := make([]relation.JoinParameter, len(c.JoinPath))
		for j, jp := range c.JoinPath {
			path[j] = relation.JoinParameter{
				LeftTable:   catalog.TableID(jp.LeftTable),
				LeftColumn:  catalog.ColumnRef(jp.LeftColumn),
				RightTable:  catalog.TableID(jp.RightTable),
				RightColumn: catalog.ColumnRef(jp.RightColumn),
			}
		}
		cols[i] = relation.InitialColumn{
			Table:    catalog.TableID(c.Table),
			Column:   catalog.ColumnRef(c.Column),
			Alias:    c.Alias,
			JoinPath: path,
		}
	}

	transforms := make([]relation.Transform, len(d.Transformations))
	for i, t := range d.Transformations {
		built, err := t.build()
		if err != nil {
			return nil, fmt.Errorf("transformation %d: %w", i, err)
		}
		transforms[i] = built
	}

	return relation.New(d.Name, catalog.TableID(d.BaseTable), cols, transforms, ref)
}

func (t TransformDef) build() (relation.Transform, error) {
	switch t.Type {
	case "filter":
		if t.Predicate == nil {
			return nil, fmt.Errorf("filter requires a predicate")
		}
		return relation.Filter{Predicate: t.Predicate.build()}, nil
	case "order":
		if len(t.Fields) == 0 {
			return nil, fmt.Errorf("order requires fields")
		}
		fields := make([]relation.SortField, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = relation.SortField{Alias: f.Alias, Descending: f.Descending}
		}
		return relation.Order{Fields: fields}, nil
	case "aggregate":
		aggs := make([]relation.Aggregation, len(t.Aggregations))
		for i, a := range t.Aggregations {
			aggs[i] = relation.Aggregation{Function: a.Function, Input: a.Input, Output: a.Output}
		}
		return relation.Aggregate{GroupBy: t.GroupBy, Aggregations: aggs}, nil
	case "project":
		cols := make([]relation.ProjectedColumn, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = relation.ProjectedColumn{Input: c.Input, Output: c.Output}
		}
		return relation.Project{Columns: cols}, nil
	case "limit":
		return relation.Limit{Count: t.Count, Offset: t.Offset}, nil
	default:
		return nil, fmt.Errorf("unknown transformation type %q", t.Type)
	}
}

func (p PredicateDef) build() relation.Predicate {
	conds := make([]relation.Predicate, len(p.Conditions))
	for i, c := range p.Conditions {
		conds[i] = c.build()
	}
	if len(conds) == 0 {
		conds = nil
	}
	return relation.Predicate{Op: p.Op, Conditions: conds, Column: p.Column, Value: p.Value}
}
