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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/config"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/database"
	_ "github.com/GoogleCloudPlatform/db-query-compiler/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/db-query-compiler/internal/database/postgres"
	_ "github.com/GoogleCloudPlatform/db-query-compiler/internal/database/sqlserver"
	"github.com/GoogleCloudPlatform/db-query-compiler/internal/relation"
)

var (
	cfgFile        string
	definitionFile string
	verbose        bool

	// Database connection flags
	dialect                        string
	host                           string
	port                           int
	username                       string
	password                       string
	dbName                         string
	sslMode                        string
	cloudSQLInstanceConnectionName string
	cloudSQLUsePrivateIP           bool

	logger    *zap.Logger
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "db_query_compiler",
	Short: "Compile declarative query definitions into executable SQL",
	Long: `db_query_compiler compiles a declarative query definition (a base table,
initial columns reached across foreign-key joins, and a chain of
transformations) into a relational query, runs it against a database, and
can trace any output column back to the source column it derives from.`,
	SilenceUsage: true,
}

// initFlagsAndConfig layers flags over the config file and environment.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	database.SetLogger(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("dialect") {
		cfg.Database.Dialect = dialect
	}
	if flags.Changed("host") {
		cfg.Database.Host = host
	}
	if flags.Changed("port") {
		cfg.Database.Port = port
	}
	if flags.Changed("username") {
		cfg.Database.User = username
	}
	if flags.Changed("password") {
		cfg.Database.Password = password
	}
	if flags.Changed("database") {
		cfg.Database.DBName = dbName
	}
	if flags.Changed("sslmode") {
		cfg.Database.SSLMode = sslMode
	}
	if flags.Changed("cloudsql-instance-connection-name") {
		cfg.Database.CloudSQLInstanceConnectionName = cloudSQLInstanceConnectionName
	}
	if flags.Changed("cloudsql-use-private-ip") {
		cfg.Database.UsePrivateIP = cloudSQLUsePrivateIP
	}

	appConfig = cfg
	return nil
}

func validateDialect(dialect string) error {
	supportedDialects := []string{"postgres", "cloudsqlpostgres", "mysql", "cloudsqlmysql", "sqlserver", "cloudsqlsqlserver"}
	for _, supported := range supportedDialects {
		if dialect == supported {
			return nil
		}
	}
	return fmt.Errorf("unsupported dialect: %s (only %s are supported)", dialect, strings.Join(supportedDialects, ", "))
}

func setupDatabase() (*database.DB, error) {
	if err := validateDialect(appConfig.Database.Dialect); err != nil {
		return nil, err
	}
	db, err := database.New(appConfig.Database)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// compileQuery connects, reflects a fresh schema snapshot, loads the query
// definition, and compiles it. The caller owns the returned DB.
func compileQuery(ctx context.Context) (*relation.Query, *database.DB, error) {
	if definitionFile == "" {
		return nil, nil, fmt.Errorf("--definition is required")
	}
	def, err := config.LoadDefinition(definitionFile)
	if err != nil {
		return nil, nil, err
	}
	db, err := setupDatabase()
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := db.Snapshot(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("reflecting schema: %w", err)
	}
	q, err := def.Build(snapshot)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return q, db, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentPreRunE = initFlagsAndConfig
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a config file (YAML/JSON/TOML)")
	rootCmd.PersistentFlags().StringVar(&definitionFile, "definition", "", "Path to the query definition file - MANDATORY")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Database connection flags
	rootCmd.PersistentFlags().StringVar(&dialect, "dialect", "", fmt.Sprintf("Database dialect (%s)", strings.Join([]string{"postgres", "mysql", "sqlserver", "cloudsqlpostgres", "cloudsqlmysql", "cloudsqlsqlserver"}, ", ")))
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Database host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Database port")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Database username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Database password")
	rootCmd.PersistentFlags().StringVar(&dbName, "database", "", "Database name")
	rootCmd.PersistentFlags().StringVar(&sslMode, "sslmode", "", "SSL mode (postgres)")
	rootCmd.PersistentFlags().StringVar(&cloudSQLInstanceConnectionName, "cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	rootCmd.PersistentFlags().BoolVar(&cloudSQLUsePrivateIP, "cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(lineageCmd)
	rootCmd.AddCommand(sqlCmd)
}
