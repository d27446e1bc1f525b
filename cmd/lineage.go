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
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	lineageAlias    string
	lineagePosition int
)

// lineageCmd represents the lineage command
var lineageCmd = &cobra.Command{
	Use:     "lineage",
	Short:   "Trace an output alias back to its initial column",
	Long:    `Walks the transformation chain backwards from the given position (default: end of the chain) to find the initial column an alias derives from. Reports "untraceable" when a transformation (aggregation, typically) breaks the correspondence.`,
	Example: `./db_query_compiler lineage --definition ./orders.yaml --alias c_name`,
	RunE:    runLineage,
}

func runLineage(cmd *cobra.Command, args []string) error {
	if lineageAlias == "" {
		return fmt.Errorf("--alias is required")
	}
	ctx := cmd.Context()
	q, db, err := compileQuery(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	position := lineagePosition
	if position < 0 {
		position = len(q.Transforms())
	}
	ic, err := q.TraceToInitialColumn(position, lineageAlias)
	if err != nil {
		return err
	}
	if ic == nil {
		fmt.Printf("%s: untraceable\n", lineageAlias)
		return nil
	}
	fmt.Printf("%s: table %d column %d (initial alias %q, %d joins)\n",
		lineageAlias, ic.Table, ic.Column, ic.Alias, len(ic.JoinPath))
	return nil
}

func init() {
	lineageCmd.Flags().StringVar(&lineageAlias, "alias", "", "Output alias to trace - MANDATORY")
	lineageCmd.Flags().IntVar(&lineagePosition, "position", -1, "Chain position to trace from (default: end of chain)")
}
