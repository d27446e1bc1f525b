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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRelation(t *testing.T) *Relation {
	t.Helper()
	rel, err := newTestQuery(t, nil).InitialRelation()
	require.NoError(t, err)
	return rel
}

func TestFilterApply(t *testing.T) {
	rel := testRelation(t)
	out, err := Filter{Predicate: Predicate{Op: "eq", Column: "c_name", Value: "alice"}}.Apply(rel)
	require.NoError(t, err)

	sql, args, err := out.SQL()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "o_id", "c_name" FROM (`+
			`SELECT "orders"."id" AS "o_id", "t1"."name" AS "c_name" FROM "orders" `+
			`LEFT JOIN "customers" AS "t1" ON "orders"."customer_id" = "t1"."id"`+
			`) AS orders_0 WHERE "c_name" = ?`,
		sql)
	assert.Equal(t, []any{"alice"}, args)
	assert.Equal(t, rel.Aliases(), out.Aliases())
	assert.Equal(t, rel.JoinCount(), out.JoinCount())
}

func TestFilterUnknownAlias(t *testing.T) {
	_, err := Filter{Predicate: Predicate{Op: "eq", Column: "ghost", Value: 1}}.Apply(testRelation(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown alias "ghost"`)
}

func TestPredicateSqlizer(t *testing.T) {
	tests := []struct {
		name     string
		pred     Predicate
		wantSQL  string
		wantArgs []any
	}{
		{"eq", Predicate{Op: "eq", Column: "a", Value: 1}, `"a" = ?`, []any{1}},
		{"ne", Predicate{Op: "ne", Column: "a", Value: 1}, `"a" <> ?`, []any{1}},
		{"gt", Predicate{Op: "gt", Column: "a", Value: 1}, `"a" > ?`, []any{1}},
		{"gte", Predicate{Op: "gte", Column: "a", Value: 1}, `"a" >= ?`, []any{1}},
		{"lt", Predicate{Op: "lt", Column: "a", Value: 1}, `"a" < ?`, []any{1}},
		{"lte", Predicate{Op: "lte", Column: "a", Value: 1}, `"a" <= ?`, []any{1}},
		{"like", Predicate{Op: "like", Column: "a", Value: "x%"}, `"a" LIKE ?`, []any{"x%"}},
		{"null", Predicate{Op: "null", Column: "a"}, `"a" IS NULL`, nil},
		{"notnull", Predicate{Op: "notnull", Column: "a"}, `"a" IS NOT NULL`, nil},
		{
			"and",
			Predicate{Op: "and", Conditions: []Predicate{
				{Op: "eq", Column: "a", Value: 1},
				{Op: "gt", Column: "b", Value: 2},
			}},
			`("a" = ? AND "b" > ?)`,
			[]any{1, 2},
		},
		{
			"or_nested",
			Predicate{Op: "or", Conditions: []Predicate{
				{Op: "null", Column: "a"},
				{Op: "and", Conditions: []Predicate{
					{Op: "gte", Column: "b", Value: 2},
					{Op: "lte", Column: "b", Value: 9},
				}},
			}},
			`("a" IS NULL OR ("b" >= ? AND "b" <= ?))`,
			[]any{2, 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.pred.sqlizer()
			require.NoError(t, err)
			sql, args, err := s.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPredicateSqlizerErrors(t *testing.T) {
	_, err := Predicate{Op: "between", Column: "a"}.sqlizer()
	require.Error(t, err)

	_, err = Predicate{Op: "and"}.sqlizer()
	require.Error(t, err)

	_, err = Predicate{Op: "or", Conditions: []Predicate{{Op: "bogus", Column: "a"}}}.sqlizer()
	require.Error(t, err)
}

func TestOrderApply(t *testing.T) {
	rel := testRelation(t)
	out, err := Order{Fields: []SortField{
		{Alias: "o_id", Descending: true},
		{Alias: "c_name"},
	}}.Apply(rel)
	require.NoError(t, err)

	sql, _, err := out.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `ORDER BY "o_id" DESC, "c_name" ASC`)
	assert.Equal(t, rel.Aliases(), out.Aliases())
}

func TestOrderErrors(t *testing.T) {
	_, err := Order{}.Apply(testRelation(t))
	require.Error(t, err)

	_, err = Order{Fields: []SortField{{Alias: "ghost"}}}.Apply(testRelation(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown alias "ghost"`)
}

func aggregateTestRelation(t *testing.T) *Relation {
	t.Helper()
	q, err := New("orders", 20, []InitialColumn{
		{Table: 20, Column: 3, Alias: "o_total"},
		{Table: 10, Column: 3, Alias: "c_region", JoinPath: []JoinParameter{ordersToCustomer}},
	}, nil, testSnapshot())
	require.NoError(t, err)
	rel, err := q.InitialRelation()
	require.NoError(t, err)
	return rel
}

func TestAggregateApply(t *testing.T) {
	out, err := Aggregate{
		GroupBy: []string{"c_region"},
		Aggregations: []Aggregation{
			{Function: "sum", Input: "o_total", Output: "total_sum"},
			{Function: "count", Output: "n"},
		},
	}.Apply(aggregateTestRelation(t))
	require.NoError(t, err)

	sql, _, err := out.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `SELECT "c_region", sum("o_total") AS "total_sum", count(*) AS "n" FROM (`)
	assert.Contains(t, sql, `GROUP BY "c_region"`)

	assert.Equal(t, []Column{
		{Alias: "c_region", DataType: "text"},
		{Alias: "total_sum", DataType: "numeric"},
		{Alias: "n", DataType: "bigint"},
	}, out.Columns())
}

func TestAggregateAvgWidensType(t *testing.T) {
	out, err := Aggregate{
		GroupBy: []string{"c_region"},
		Aggregations: []Aggregation{
			{Function: "avg", Input: "o_total", Output: "avg_total"},
		},
	}.Apply(aggregateTestRelation(t))
	require.NoError(t, err)

	col, ok := out.column("avg_total")
	require.True(t, ok)
	assert.Equal(t, "numeric", col.DataType)
}

func TestAggregateErrors(t *testing.T) {
	rel := aggregateTestRelation(t)

	_, err := Aggregate{GroupBy: []string{"c_region"}}.Apply(rel)
	require.Error(t, err)

	_, err = Aggregate{
		GroupBy:      []string{"ghost"},
		Aggregations: []Aggregation{{Function: "count", Output: "n"}},
	}.Apply(rel)
	require.Error(t, err)

	_, err = Aggregate{
		Aggregations: []Aggregation{{Function: "sum", Input: "ghost", Output: "s"}},
	}.Apply(rel)
	require.Error(t, err)

	_, err = Aggregate{
		Aggregations: []Aggregation{{Function: "median", Input: "o_total", Output: "m"}},
	}.Apply(rel)
	require.Error(t, err)

	_, err = Aggregate{
		Aggregations: []Aggregation{{Function: "count", Output: ""}},
	}.Apply(rel)
	require.Error(t, err)
}

func TestAggregateOutputConflictsWithGroupKey(t *testing.T) {
	_, err := Aggregate{
		GroupBy:      []string{"c_region"},
		Aggregations: []Aggregation{{Function: "count", Output: "c_region"}},
	}.Apply(aggregateTestRelation(t))
	require.Error(t, err)

	var conflict *AliasConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "c_region", conflict.Alias)
}

func TestProjectApply(t *testing.T) {
	rel := testRelation(t)
	out, err := Project{Columns: []ProjectedColumn{
		{Input: "c_name", Output: "customer"},
		{Input: "o_id"},
	}}.Apply(rel)
	require.NoError(t, err)

	sql, _, err := out.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `SELECT "c_name" AS "customer", "o_id" FROM (`)

	assert.Equal(t, []Column{
		{Alias: "customer", DataType: "text"},
		{Alias: "o_id", DataType: "integer"},
	}, out.Columns())
}

func TestProjectErrors(t *testing.T) {
	_, err := Project{}.Apply(testRelation(t))
	require.Error(t, err)

	_, err = Project{Columns: []ProjectedColumn{{Input: "ghost"}}}.Apply(testRelation(t))
	require.Error(t, err)
}

func TestLimitApply(t *testing.T) {
	rel := testRelation(t)

	out, err := Limit{Count: 5, Offset: 10}.Apply(rel)
	require.NoError(t, err)
	sql, _, err := out.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, "LIMIT 5")
	assert.Contains(t, sql, "OFFSET 10")

	out, err = Limit{Offset: 3}.Apply(rel)
	require.NoError(t, err)
	sql, _, err = out.SQL()
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
	assert.Contains(t, sql, "OFFSET 3")

	out, err = Limit{}.Apply(rel)
	require.NoError(t, err)
	sql, _, err = out.SQL()
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
	assert.NotContains(t, sql, "OFFSET")
}

func TestHasExplicitOrder(t *testing.T) {
	assert.False(t, HasExplicitOrder(nil))
	assert.False(t, HasExplicitOrder([]Transform{Filter{}, Limit{}}))
	assert.True(t, HasExplicitOrder([]Transform{Filter{}, Order{}, Limit{}}))
}

func TestOutputAliasesAndLineageMaps(t *testing.T) {
	in := []string{"a", "b"}

	t.Run("identity transforms", func(t *testing.T) {
		for _, tr := range []Transform{
			Filter{Predicate: Predicate{Op: "eq", Column: "a", Value: 1}},
			Order{Fields: []SortField{{Alias: "a"}}},
			Limit{Count: 1},
		} {
			assert.Equal(t, in, tr.OutputAliases(in))
			assert.Equal(t, map[string]string{"a": "a", "b": "b"}, tr.LineageMap(in))
		}
	})

	t.Run("project renames", func(t *testing.T) {
		tr := Project{Columns: []ProjectedColumn{{Input: "b", Output: "c"}, {Input: "a"}}}
		assert.Equal(t, []string{"c", "a"}, tr.OutputAliases(in))
		assert.Equal(t, map[string]string{"c": "b", "a": "a"}, tr.LineageMap(in))
	})

	t.Run("aggregate keeps only group keys", func(t *testing.T) {
		tr := Aggregate{
			GroupBy:      []string{"a"},
			Aggregations: []Aggregation{{Function: "count", Output: "n"}},
		}
		assert.Equal(t, []string{"a", "n"}, tr.OutputAliases(in))
		assert.Equal(t, map[string]string{"a": "a"}, tr.LineageMap(in))
	})
}

func TestDescribeTransform(t *testing.T) {
	tests := []struct {
		tr   Transform
		want string
	}{
		{Filter{}, "filter"},
		{Order{}, "order"},
		{Aggregate{}, "aggregate"},
		{Project{}, "project"},
		{Limit{}, "limit"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeTransform(tt.tr))
	}
}
