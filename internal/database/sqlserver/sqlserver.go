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
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	sq "github.com/Masterminds/squirrel"
	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/config"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/database"
)

// sqlServerHandler struct implements database.DialectHandler for SQL Server.
type sqlServerHandler struct{}

var _ database.DialectHandler = (*sqlServerHandler)(nil)

type csqlDialer struct {
	dialer     *cloudsqlconn.Dialer
	connName   string
	usePrivate bool
}

// DialContext adheres to the mssql.Dialer interface.
func (c *csqlDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var opts []cloudsqlconn.DialOption
	if c.usePrivate {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}
	return c.dialer.Dial(ctx, c.connName, opts...)
}

// CreateCloudSQLPool for SQL Server
func (h sqlServerHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	mustGetenv := func(k string, cfg config.DatabaseConfig) string {
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
			return os.Getenv(k)
		}
		return v
	}

	dbUser := mustGetenv("user_name", cfg)
	dbPwd := mustGetenv("password", cfg)
	dbName := mustGetenv("database_name", cfg)
	instanceConnectionName := mustGetenv("instance_name", cfg)
	usePrivate := mustGetenv("PRIVATE_IP", cfg)

	// WithLazyRefresh() Option is used to perform refresh
	// when needed, rather than on a scheduled interval.
	// This is recommended for serverless environments to
	// avoid background refreshes from throttling CPU.
	dialer, err := cloudsqlconn.NewDialer(context.Background(), cloudsqlconn.WithLazyRefresh())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDailer: %w", err)
	}
	connector, err := mssql.NewConnector(fmt.Sprintf("sqlserver://%s:%s@localhost:1433?database=%s&dial=cloudsqlconn&instance=%s",
		dbUser, dbPwd, dbName, instanceConnectionName))
	if err != nil {
		return nil, fmt.Errorf("mssql.NewConnector: %w", err)
	}
	connector.Dialer = &csqlDialer{
		dialer:     dialer,
		connName:   instanceConnectionName,
		usePrivate: usePrivate != "",
	}

	dbPool := sql.OpenDB(connector)

	return dbPool, nil
}

// CreateStandardPool creates a standard SQL Server connection pool
func (h sqlServerHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 1433 // Default SQL Server port
	}

	query := url.Values{}
	query.Add("database", cfg.DBName)

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: query.Encode(),
	}

	dbPool, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard sqlserver): %w", err)
	}
	return dbPool, nil
}

// Compiled statements order by quoted output aliases with an explicit
// direction, so this pattern covers every ORDER BY the compiler can emit.
const orderByPattern = `ORDER BY "[^"]+" (?:ASC|DESC)(?:, "[^"]+" (?:ASC|DESC))*`

var paginationRE = regexp.MustCompile(
	`(` + orderByPattern + `)(?: LIMIT (\d+))?(?: OFFSET (\d+))?` +
		`|LIMIT (\d+)(?: OFFSET (\d+))?` +
		`|OFFSET (\d+)`)

// RewriteStatement converts the compiler's portable pagination into T-SQL.
// T-SQL has no LIMIT/OFFSET keywords and rejects ORDER BY inside a derived
// table unless OFFSET or TOP is present, so every LIMIT/OFFSET group
// becomes OFFSET n ROWS [FETCH NEXT m ROWS ONLY] with a synthesized
// ORDER BY (SELECT NULL) when the group has none, and every remaining
// ORDER BY is pinned with OFFSET 0 ROWS.
func (h sqlServerHandler) RewriteStatement(query string) (string, error) {
	return paginationRE.ReplaceAllStringFunc(query, func(clause string) string {
		m := paginationRE.FindStringSubmatch(clause)
		orderBy := m[1]
		if orderBy == "" {
			orderBy = "ORDER BY (SELECT NULL)"
		}
		limit := m[2]
		if limit == "" {
			limit = m[4]
		}
		offset := m[3]
		if offset == "" {
			offset = m[5]
		}
		if offset == "" {
			offset = m[6]
		}

		if limit == "" {
			if offset == "" {
				offset = "0"
			}
			return fmt.Sprintf("%s OFFSET %s ROWS", orderBy, offset)
		}
		if offset == "" {
			offset = "0"
		}
		return fmt.Sprintf("%s OFFSET %s ROWS FETCH NEXT %s ROWS ONLY", orderBy, offset, limit)
	}), nil
}

// PlaceholderFormat for SQL Server (@p1, @p2, ...).
func (h sqlServerHandler) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.AtP
}

// LoadSnapshot reflects the current database via information_schema.
// Like MySQL, SQL Server tables get synthetic ids in name order and
// ORDINAL_POSITION serves as the column ref.
func (h sqlServerHandler) LoadSnapshot(ctx context.Context, db *database.DB) (*catalog.Snapshot, error) {
	query := `
		SELECT TABLE_NAME, ORDINAL_POSITION, COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME()
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	rows, err := db.Pool.QueryContext(ctx, query)
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
			tableName string
			ordinal   int
			colName   string
			dataType  string
			nullable  string
		)
		if err := rows.Scan(&tableName, &ordinal, &colName, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("error scanning schema row: %w", err)
		}
		if current == nil || current.Name != tableName {
			tables = append(tables, catalog.Table{ID: catalog.TableID(len(tables) + 1), Name: tableName})
			current = &tables[len(tables)-1]
		}
		current.Columns = append(current.Columns, catalog.Column{
			Ref:      catalog.ColumnRef(ordinal),
			Name:     colName,
			DataType: dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema rows: %w", err)
	}

	return catalog.NewSnapshot(tables...), nil
}

func init() {
	database.RegisterDialectHandler("sqlserver", sqlServerHandler{})
	database.RegisterDialectHandler("cloudsqlsqlserver", sqlServerHandler{})
}
