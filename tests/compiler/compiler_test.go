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

// End-to-end: query definition file -> compiled relation -> execution
// against a mocked PostgreSQL pool through the real dialect handler.
package compiler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/config"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/database"
	_ "github.com/GoogleCloudPlatform/db-query-compiler/internal/database/postgres"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/relation"
)

const ordersDefinitionYAML = `
name: recent_orders
base_table: 20
columns:
  - alias: o_id
    table: 20
    column: 1
  - alias: c_name
    table: 10
    column: 2
    join_path:
      - left_table: 20
        left_column: 2
        right_table: 10
        right_column: 1
transformations:
  - type: filter
    predicate:
      op: gt
      column: o_id
      value: 100
`

func testSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot(
		catalog.Table{ID: 10, Name: "customers", Columns: []catalog.Column{
			{Ref: 1, Name: "id", DataType: "integer"},
			{Ref: 2, Name: "name", DataType: "text", Nullable: true},
		}},
		catalog.Table{ID: 20, Name: "orders", Columns: []catalog.Column{
			{Ref: 1, Name: "id", DataType: "integer"},
			{Ref: 2, Name: "customer_id", DataType: "integer", Nullable: true},
		}},
	)
}

func loadTestQuery(t *testing.T) *relation.Query {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recent_orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ordersDefinitionYAML), 0o600))

	def, err := config.LoadDefinition(path)
	require.NoError(t, err)

	q, err := def.Build(testSnapshot())
	require.NoError(t, err)
	return q
}

func newMockPostgres(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	handler, err := database.GetDialectHandler("postgres")
	require.NoError(t, err)

	db := &database.DB{
		Pool:    mockDb,
		Handler: handler,
		Config:  config.DatabaseConfig{Dialect: "postgres"},
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestRecordsEndToEnd(t *testing.T) {
	q := loadTestQuery(t)
	db, mock := newMockPostgres(t)

	rows := sqlmock.NewRows([]string{"o_id", "c_name"}).
		AddRow(int64(101), []byte("alice")).
		AddRow(int64(102), nil)
	mock.ExpectQuery(`SELECT (.+) FROM (.+)`).WithArgs(100).WillReturnRows(rows)

	records, err := q.Records(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(101), records[0]["o_id"])
	assert.Equal(t, "alice", records[0]["c_name"])
	assert.Nil(t, records[1]["c_name"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordsEndToEndUsesDollarPlaceholders(t *testing.T) {
	// The compiler emits ? placeholders; the statement must reach the driver
	// with them rewritten to $n.
	q := loadTestQuery(t)
	db, mock := newMockPostgres(t)

	mock.ExpectQuery(`(?s).*WHERE "o_id" > \$1.*`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"o_id", "c_name"}))

	_, err := q.Records(context.Background(), db)
	require.NoError(t, err)

	rel, err := q.TransformedRelation()
	require.NoError(t, err)
	compiled, _, err := rel.SQL()
	require.NoError(t, err)
	assert.Contains(t, compiled, "?")
	assert.NotContains(t, compiled, "$1")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountEndToEnd(t *testing.T) {
	q := loadTestQuery(t)
	db, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT count\(\*\) AS "_count" FROM (.+)`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"_count"}).AddRow(int64(7)))

	n, err := q.Count(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultOrderingAppliedEndToEnd(t *testing.T) {
	// The stored chain has no order transform, so record fetches must carry
	// the deterministic default ordering over every output alias.
	q := loadTestQuery(t)
	db, mock := newMockPostgres(t)

	mock.ExpectQuery(`(?s).*ORDER BY "o_id" ASC, "c_name" ASC.*`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"o_id", "c_name"}))

	_, err := q.Records(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLineageEndToEnd(t *testing.T) {
	q := loadTestQuery(t)

	ic, err := q.TraceToInitialColumn(len(q.Transforms()), "c_name")
	require.NoError(t, err)
	require.NotNil(t, ic)
	assert.EqualValues(t, 10, ic.Table)
	assert.EqualValues(t, 2, ic.Column)
	assert.Len(t, ic.JoinPath, 1)
}
