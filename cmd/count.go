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

// countCmd represents the count command
var countCmd = &cobra.Command{
	Use:     "count",
	Short:   "Count the records a query definition describes",
	Long:    `Compiles the query definition and runs a count(*) projection over the transformed relation.`,
	Example: `./db_query_compiler count --dialect postgres --host localhost --port 5432 --username user --password pass --database mydb --definition ./orders.yaml`,
	RunE:    runCount,
}

func runCount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	q, db, err := compileQuery(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := q.Count(ctx, db)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}
