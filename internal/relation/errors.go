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

// SchemaMismatchError reports that a query definition references a table or
// column absent from the metadata snapshot it is being compiled against.
// The definition is stale; recompiling against the same snapshot will not
// help.
type SchemaMismatchError struct {
	Msg string
	Err error
}

// AliasConflictError reports a duplicate or blank alias among a query's
// initial columns. It is raised at construction time, before any
// compilation is attempted.
type AliasConflictError struct {
	Alias string
	Msg   string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: %s: %v", e.Msg, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Err
}

func (e *AliasConflictError) Error() string {
	return fmt.Sprintf("alias conflict: %s: %q", e.Msg, e.Alias)
}
