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

// Column describes one output column of a compiled relation.
type Column struct {
	Alias    string
	DataType string
}

// Relation is an opaque handle to a compiled relational expression with a
// fixed, ordered set of output columns. Relations are produced only by the
// compiler and compose: any Relation can serve as the derived table a
// further select is built over.
type Relation struct {
	builder sq.SelectBuilder
	columns []Column
	name    string
	depth   int
	joins   int
}

// Columns returns the relation's output columns in order.
func (r *Relation) Columns() []Column {
	return append([]Column(nil), r.columns...)
}

// Aliases returns the output aliases in column order.
func (r *Relation) Aliases() []string {
	aliases := make([]string, len(r.columns))
	for i, c := range r.columns {
		aliases[i] = c.Alias
	}
	return aliases
}

// JoinCount reports how many joins the underlying plan contains. Exposed so
// join deduplication can be asserted on the plan itself.
func (r *Relation) JoinCount() int {
	return r.joins
}

// SQL renders the relation as a statement with ? placeholders. Dialect
// handlers rewrite placeholders to their native format before execution.
func (r *Relation) SQL() (string, []any, error) {
	return r.builder.ToSql()
}

// column looks up an output column by alias.
func (r *Relation) column(alias string) (Column, bool) {
	for _, c := range r.columns {
		if c.Alias == alias {
			return c, true
		}
	}
	return Column{}, false
}

// derivedAlias names the relation when it is used as a derived table.
func (r *Relation) derivedAlias() string {
	return fmt.Sprintf("%s_%d", r.name, r.depth)
}

// wrap returns a builder selecting the named aliases from this relation as
// a derived table. selected entries may carry an output rename.
func (r *Relation) wrap(selected []selectedColumn) sq.SelectBuilder {
	exprs := make([]string, len(selected))
	for i, s := range selected {
		if s.output != "" && s.output != s.input {
			exprs[i] = fmt.Sprintf("%s AS %s", quoteIdent(s.input), quoteIdent(s.output))
		} else {
			exprs[i] = quoteIdent(s.input)
		}
	}
	return sq.Select(exprs...).FromSelect(r.builder, r.derivedAlias())
}

// wrapAll is wrap over every output column, unrenamed.
func (r *Relation) wrapAll() sq.SelectBuilder {
	selected := make([]selectedColumn, len(r.columns))
	for i, c := range r.columns {
		selected[i] = selectedColumn{input: c.Alias}
	}
	return r.wrap(selected)
}

type selectedColumn struct {
	input  string
	output string
}

// quoteIdent quotes an identifier the ANSI way. The compiler emits one
// form; each dialect handler makes its sessions accept it (postgres
// natively, mysql via ANSI_QUOTES, sqlserver via QUOTED_IDENTIFIER) and
// rewrites what remains through RewriteStatement.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
