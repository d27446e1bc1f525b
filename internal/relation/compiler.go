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

	sq "github.com/Masterminds/squirrel"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
)

// builderState accumulates the FROM clause while initial columns are
// resolved. aliasCache and createdJoins are keyed by the full ordered
// join-parameter prefix consumed so far, never by table id: the same prefix
// reached via different initial columns reuses one alias and one join,
// while distinct paths to the same table stay separate. Local to a single
// compile; never shared.
type builderState struct {
	builder      sq.SelectBuilder
	baseName     string
	aliasCache   map[string]string
	createdJoins map[string]struct{}
	joins        int
}

// buildInitialRelation resolves a query's initial columns into one joined,
// projected relation. Joins are LEFT OUTER: a referencing row with no
// matching related row must still appear, nulled.
func buildInitialRelation(name string, base catalog.TableID, cols []InitialColumn, ref Reflector) (*Relation, error) {
	baseName, err := ref.TableName(base)
	if err != nil {
		return nil, &SchemaMismatchError{Msg: fmt.Sprintf("base table %d", base), Err: err}
	}

	state := &builderState{
		builder:      sq.Select().From(quoteIdent(baseName)),
		baseName:     baseName,
		aliasCache:   map[string]string{},
		createdJoins: map[string]struct{}{},
	}

	columns := make([]Column, 0, len(cols))
	for _, ic := range cols {
		qualifier, err := state.replayJoinPath(ic.JoinPath, ref)
		if err != nil {
			return nil, err
		}
		col, err := ref.Column(ic.Table, ic.Column)
		if err != nil {
			return nil, &SchemaMismatchError{Msg: fmt.Sprintf("initial column %q", ic.Alias), Err: err}
		}
		state.builder = state.builder.Column(fmt.Sprintf(
			"%s.%s AS %s", qualifier, quoteIdent(col.Name), quoteIdent(ic.Alias),
		))
		columns = append(columns, Column{Alias: ic.Alias, DataType: col.DataType})
	}

	return &Relation{
		builder: state.builder,
		columns: columns,
		name:    name,
		joins:   state.joins,
	}, nil
}

// replayJoinPath walks a join path left to right, creating each missing
// join exactly once, and returns the quoted qualifier (base table or cached
// alias) the initial column's own name resolves against.
func (s *builderState) replayJoinPath(path []JoinParameter, ref Reflector) (string, error) {
	qualifier := quoteIdent(s.baseName)
	for i, jp := range path {
		left := quoteIdent(s.baseName)
		if i > 0 {
			left = quoteIdent(s.aliasCache[pathKey(path[:i])])
		}

		prefix := pathKey(path[:i+1])
		rightAlias, ok := s.aliasCache[prefix]
		if !ok {
			rightAlias = fmt.Sprintf("t%d", len(s.aliasCache)+1)
			s.aliasCache[prefix] = rightAlias
		}

		if _, done := s.createdJoins[prefix]; !done {
			rightName, err := ref.TableName(jp.RightTable)
			if err != nil {
				return "", &SchemaMismatchError{Msg: "join right table", Err: err}
			}
			leftCol, err := ref.Column(jp.LeftTable, jp.LeftColumn)
			if err != nil {
				return "", &SchemaMismatchError{Msg: "join left column", Err: err}
			}
			rightCol, err := ref.Column(jp.RightTable, jp.RightColumn)
			if err != nil {
				return "", &SchemaMismatchError{Msg: "join right column", Err: err}
			}
			s.builder = s.builder.LeftJoin(fmt.Sprintf(
				"%s AS %s ON %s.%s = %s.%s",
				quoteIdent(rightName), quoteIdent(rightAlias),
				left, quoteIdent(leftCol.Name),
				quoteIdent(rightAlias), quoteIdent(rightCol.Name),
			))
			s.createdJoins[prefix] = struct{}{}
			s.joins++
		}
		qualifier = quoteIdent(rightAlias)
	}
	return qualifier, nil
}

// applyTransforms folds the chain over the relation in order. An empty
// chain returns the input unchanged.
func applyTransforms(rel *Relation, chain []Transform) (*Relation, error) {
	var err error
	for i, t := range chain {
		rel, err = t.Apply(rel)
		if err != nil {
			return nil, fmt.Errorf("applying %s transform at position %d: %w", describeTransform(t), i, err)
		}
	}
	return rel, nil
}
