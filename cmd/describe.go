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
	"sort"

	"github.com/spf13/cobra"
)

var describeAll bool

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:     "describe",
	Short:   "Describe the output columns of a query definition",
	Long:    `Compiles the query definition and prints the final relation's columns in order (alias and inferred type). With --all, prints every alias that exists at any position of the transformation chain; that variant compiles each chain prefix and is meant for debugging, not scripting.`,
	Example: `./db_query_compiler describe --dialect postgres --host localhost --port 5432 --username user --password pass --database mydb --definition ./orders.yaml`,
	RunE:    runDescribe,
}

func runDescribe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	q, db, err := compileQuery(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if describeAll {
		all, err := q.AllColumns()
		if err != nil {
			return err
		}
		aliases := make([]string, 0, len(all))
		for alias := range all {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		for _, alias := range aliases {
			fmt.Printf("%s\t%s\n", alias, all[alias].DataType)
		}
		return nil
	}

	cols, err := q.OutputColumns()
	if err != nil {
		return err
	}
	for _, col := range cols {
		fmt.Printf("%s\t%s\n", col.Alias, col.DataType)
	}
	return nil
}

func init() {
	describeCmd.Flags().BoolVar(&describeAll, "all", false, "Include aliases from every chain position (expensive)")
}
