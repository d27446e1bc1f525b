package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/config"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/database"
)

type mysqlHandler struct{}

var _ database.DialectHandler = (*mysqlHandler)(nil)

// sessionParams is set on every connection. ANSI_QUOTES is appended to the
// session sql_mode so the server parses the compiler's double-quoted
// identifiers as identifiers, not string literals.
var sessionParams = map[string]string{
	"sql_mode": "CONCAT(@@sql_mode,',ANSI_QUOTES')",
}

func (h mysqlHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
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
		return v
	}

	dbUser := mustGetenv("user_name", cfg)
	dbPwd := mustGetenv("password", cfg)
	dbName := mustGetenv("database_name", cfg)
	instanceConnectionName := mustGetenv("instance_name", cfg)
	usePrivate := mustGetenv("PRIVATE_IP", cfg)

	if dbUser == "" || dbPwd == "" || dbName == "" || instanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, pass, db, instance)")
	}

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if usePrivate != "" && strings.ToLower(usePrivate) != "false" && usePrivate != "0" {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	network := fmt.Sprintf("cloudsql-%s", instanceConnectionName)

	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			return d.Dial(ctx, instanceConnectionName, opts...)
		})

	mysqlCfg := mysql.Config{
		User:                 dbUser,
		Passwd:               dbPwd,
		Net:                  network,
		Addr:                 instanceConnectionName,
		DBName:               dbName,
		AllowNativePasswords: true,
		ParseTime:            true,
		Params:               sessionParams,
	}

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return dbPool, nil
}

// standardConfig builds the driver config for a direct TCP connection.
func standardConfig(cfg config.DatabaseConfig) *mysql.Config {
	return &mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.DBName,
		AllowNativePasswords: true,
		ParseTime:            true,
		Params:               sessionParams,
	}
}

func (h mysqlHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	dbPool, err := sql.Open("mysql", standardConfig(cfg).FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

// RewriteStatement for MySQL: the session's ANSI_QUOTES mode already makes
// compiled statements valid, and MySQL understands LIMIT/OFFSET natively.
func (h mysqlHandler) RewriteStatement(query string) (string, error) {
	return query, nil
}

// PlaceholderFormat for MySQL: compiled statements already use ?.
func (h mysqlHandler) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

// LoadSnapshot reflects the current database via information_schema.
// MySQL exposes no stable table oid, so tables get synthetic ids in name
// order; ORDINAL_POSITION serves as the column ref.
func (h mysqlHandler) LoadSnapshot(ctx context.Context, db *database.DB) (*catalog.Snapshot, error) {
	query := `
		SELECT TABLE_NAME, ORDINAL_POSITION, COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
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
	database.RegisterDialectHandler("mysql", mysqlHandler{})
	database.RegisterDialectHandler("cloudsqlmysql", mysqlHandler{})
}
