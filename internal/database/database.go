package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/catalog"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/config"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/relation"
)

// DialectHandler is what each supported database dialect must provide:
// connection pools, the rewrite from the compiler's portable SQL (ANSI
// quoting, LIMIT/OFFSET, ? placeholders) into the dialect's native form,
// and schema snapshot loading. Handlers whose servers accept the portable
// form as-is return statements unchanged from RewriteStatement.
type DialectHandler interface {
	CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error)
	CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error)
	RewriteStatement(query string) (string, error)
	PlaceholderFormat() sq.PlaceholderFormat
	LoadSnapshot(ctx context.Context, db *DB) (*catalog.Snapshot, error)
}

// DB holds the database connection pool and dialect handler. It is the
// execution collaborator: compiled relations are rewritten to the dialect's
// placeholder format and run as-is, and execution errors surface to the
// caller unchanged.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.DatabaseConfig
}

var _ relation.Executor = (*DB)(nil)

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex

	logger = zap.NewNop()
)

// SetLogger installs the package logger. The default is a nop.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		logger.Warn("dialect handler is being overwritten", zap.String("dialect", dialect))
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

func New(cfg config.DatabaseConfig) (*DB, error) {
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if strings.HasPrefix(cfg.Dialect, "cloudsql") {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create database pool for dialect %s: %w", cfg.Dialect, err)
	}

	ctx := context.Background()
	if err := retryWithBackoff(ctx, DefaultRetryOptions, pool.PingContext); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database (ping failed) for dialect %s: %w", cfg.Dialect, err)
	}

	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	logger.Warn("attempted to close a nil database connection pool")
	return nil
}

// Query runs a compiled statement and returns its rows keyed by output
// alias. The statement arrives in the compiler's portable form; the dialect
// handler rewrites the statement and its placeholders to the native form
// first.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]relation.Row, error) {
	if db.Pool == nil {
		return nil, fmt.Errorf("database connection pool is not initialized")
	}
	query, err := db.Handler.RewriteStatement(query)
	if err != nil {
		return nil, fmt.Errorf("rewriting statement: %w", err)
	}
	query, err = db.Handler.PlaceholderFormat().ReplacePlaceholders(query)
	if err != nil {
		return nil, fmt.Errorf("rewriting placeholders: %w", err)
	}
	logger.Debug("executing query", zap.String("sql", query), zap.Int("args", len(args)))
	rows, err := db.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Snapshot reflects the connected database's schema into an immutable
// metadata snapshot. Call again after a schema change; snapshots are never
// refreshed in place.
func (db *DB) Snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.LoadSnapshot(ctx, db)
}
