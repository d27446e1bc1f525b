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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/config"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/database"
)

// postgresHandler struct implements database.DialectHandler for PostgreSQL.
type postgresHandler struct{}

var _ database.DialectHandler = (*postgresHandler)(nil)

// CreateCloudSQLPool for PostgreSQL
func (h postgresHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	mustGetenv := func(k string, cfg config.DatabaseConfig) string { // Keep mustGetenv here as it's specific to connection
		v := ""
		switch k {
		case "user_name":
			v = cfg.User
		case "password":
			v = cfg.Password
		case "database_name":
			v = cfg.DBName
		case "instance_name":
			v = cfg.CloudSQLInstanceConnectionName
		case "PRIVATE_IP":
			if cfg.UsePrivateIP {
				v = "true"
			}
		}

		if v == "" {
			return os.Getenv(k) // Fallback to environment variable if not in Config
		}
		return v
	}

	dbUser := mustGetenv("user_name", cfg)
	dbPwd := mustGetenv("password", cfg)
	dbName := mustGetenv("database_name", cfg)
	instanceConnectionName := mustGetenv("instance_name", cfg)
	usePrivate := mustGetenv("PRIVATE_IP", cfg)

	dsn := fmt.Sprintf("user=%s password=%s database=%s", dbUser, dbPwd, dbName)
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if usePrivate != "" && strings.ToLower(usePrivate) != "false" && usePrivate != "0" { // Handle boolean-like env vars
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	connConfig.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return d.Dial(ctx, instanceConnectionName)
	}
	dbURI := stdlib.RegisterConnConfig(connConfig)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	return dbPool, nil
}

// CreateStandardPool creates a standard PostgreSQL connection pool
func (h postgresHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	dbPool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return dbPool, err
}

// RewriteStatement for PostgreSQL: compiled statements are already valid.
func (h postgresHandler) RewriteStatement(query string) (string, error) {
	return query, nil
}

// PlaceholderFormat for PostgreSQL ($1, $2, ...).
func (h postgresHandler) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Dollar
}

// snapshotQuery reflects every ordinary table in the public schema with
// real oids and attnums, so query definitions keep working across column
// renames captured by a later snapshot.
const snapshotQuery = `
	SELECT c.oid, c.relname, a.attnum, a.attname,
	       pg_catalog.format_type(a.atttypid, a.atttypmod),
	       NOT a.attnotnull
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
	JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid
	WHERE n.nspname = 'public'
	  AND c.relkind = 'r'
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY c.relname, a.attnum;`

// LoadSnapshot reflects the public schema into an immutable snapshot.
func (h postgresHandler) LoadSnapshot(ctx context.Context, db *database.DB) (*catalog.Snapshot, error) {
	rows, err := db.Pool.QueryContext(ctx, snapshotQuery)
	if err != nil {
		return nil, fmt.Errorf("error reflecting schema: %w", err)
	}
	defer rows.Close()

	var (
		tables  []catalog.Table
		current *catalog.Table
	)
	for rows.Next() {
		var (
			oid      int64
			relname  string
			attnum   int
			attname  string
			dataType string
			nullable bool
		)
		if err := rows.Scan(&oid, &relname, &attnum, &attname, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("error scanning schema row: %w", err)
		}
		if current == nil || current.ID != catalog.TableID(oid) {
			tables = append(tables, catalog.Table{ID: catalog.TableID(oid), Name: relname})
			current = &tables[len(tables)-1]
		}
		current.Columns = append(current.Columns, catalog.Column{
			Ref:      catalog.ColumnRef(attnum),
			Name:     attname,
			DataType: dataType,
			Nullable: nullable,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema rows: %w", err)
	}

	return catalog.NewSnapshot(tables...), nil
}

func init() {
	database.RegisterDialectHandler("postgres", postgresHandler{})
	database.RegisterDialectHandler("cloudsqlpostgres", postgresHandler{})
}
