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

import "fmt"

// InputAliases returns the aliases feeding the transform at chain position
// k, computed by folding output aliases forward. Position 0 is exactly the
// declared initial aliases; position len(chain) is the final output.
func (q *Query) InputAliases(k int) ([]string, error) {
	if k < 0 || k > len(q.transforms) {
		return nil, fmt.Errorf("chain position %d out of range [0, %d]", k, len(q.transforms))
	}
	aliases := q.InitialAliases()
	for _, t := range q.transforms[:k] {
		aliases = t.OutputAliases(aliases)
	}
	return aliases, nil
}

// OutputAliasToInputAlias merges every transform's renames into one
// output-to-input map over the whole chain. The merge is flat: chained
// renames stay separate entries rather than composing, and aliases no
// transform renames are absent. TraceToInitialColumn is the tool for full
// provenance; this map answers only "what was this alias called one rename
// ago".
func (q *Query) OutputAliasToInputAlias() map[string]string {
	merged := make(map[string]string)
	aliases := q.InitialAliases()
	for _, t := range q.transforms {
		for output, input := range t.LineageMap(aliases) {
			if output != input {
				merged[output] = input
			}
		}
		aliases = t.OutputAliases(aliases)
	}
	return merged
}

// InputAliasFor resolves an output alias through the merged rename map,
// falling back to the alias itself when nothing renames it.
func (q *Query) InputAliasFor(output string) string {
	if input, ok := q.OutputAliasToInputAlias()[output]; ok {
		return input
	}
	return output
}

// TraceToInitialColumn walks the chain backwards from position k to recover
// the initial column an alias derives from. A nil column with nil error is
// the defined "no provenance" result — the alias crossed a transform with
// no lineage entry for it (an aggregation output, for instance), or ended
// on an alias no initial column declares. It is not a failure.
func (q *Query) TraceToInitialColumn(k int, alias string) (*InitialColumn, error) {
	if k < 0 || k > len(q.transforms) {
		return nil, fmt.Errorf("chain position %d out of range [0, %d]", k, len(q.transforms))
	}

	// Aliases valid before each transform up to position k.
	aliasesAt := make([][]string, k)
	aliases := q.InitialAliases()
	for i := 0; i < k; i++ {
		aliasesAt[i] = aliases
		aliases = q.transforms[i].OutputAliases(aliases)
	}

	current := alias
	for i := k - 1; i >= 0; i-- {
		mapping := q.transforms[i].LineageMap(aliasesAt[i])
		input, ok := mapping[current]
		if !ok {
			return nil, nil
		}
		current = input
	}

	for _, ic := range q.initialColumns {
		if ic.Alias == current {
			found := ic
			return &found, nil
		}
	}
	return nil, nil
}
