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

// sqlCmd represents the sql command
var sqlCmd = &cobra.Command{
	Use:     "sql",
	Short:   "Print the compiled statement without executing it",
	Long:    `Compiles the query definition and prints the resulting SQL (with ? placeholders) and its arguments. Nothing is executed; the database connection is used only to reflect the schema snapshot.`,
	Example: `./db_query_compiler sql --dialect postgres --host localhost --port 5432 --username user --password pass --database mydb --definition ./orders.yaml`,
	RunE:    runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	q, db, err := compileQuery(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	rel, err := q.TransformedRelation()
	if err != nil {
		return err
	}
	query, args2, err := rel.SQL()
	if err != nil {
		return err
	}
	fmt.Println(query)
	for i, arg := range args2 {
		fmt.Printf("-- $%d = %v\n", i+1, arg)
	}
	return nil
}
