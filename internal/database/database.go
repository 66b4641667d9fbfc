package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/database/migrations"
)

// DB couples the bun handle with the migration dialect it was opened with.
type DB struct {
	*bun.DB
	Dialect string
}

func mysqlConfig(cfg config.DatabaseConfig) (*mysql.Config, error) {
	mcfg := mysql.NewConfig()
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse dsn: %w", err)
		}
		mcfg = parsed
	} else {
		mcfg.User = cfg.User
		mcfg.Passwd = cfg.Password
		mcfg.Net = "tcp"
		mcfg.Addr = cfg.Host
		if _, _, err := net.SplitHostPort(cfg.Host); err != nil {
			mcfg.Addr = net.JoinHostPort(cfg.Host, "3306")
		}
		mcfg.DBName = cfg.Name
	}
	// Migrations and timestamps depend on these regardless of the dsn.
	mcfg.ParseTime = true
	mcfg.Loc = time.UTC
	mcfg.MultiStatements = true
	mcfg.AllowNativePasswords = true
	return mcfg, nil
}

// Open creates a bun database based on the database config type.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Type {
	case "mysql":
		mcfg, err := mysqlConfig(cfg)
		if err != nil {
			return nil, err
		}
		sqldb, err := sql.Open("mysql", mcfg.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := sqldb.Ping(); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &DB{DB: bun.NewDB(sqldb, mysqldialect.New()), Dialect: migrations.MySQL}, nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		return OpenSQLite(cfg.Path)
	case "memory":
		return OpenSQLite(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// OpenSQLite opens a SQLite database. path can be ":memory:".
func OpenSQLite(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database; a single
	// connection also serializes writers on file databases.
	sqldb.SetMaxOpenConns(1)
	return &DB{DB: bun.NewDB(sqldb, sqlitedialect.New()), Dialect: migrations.SQLite}, nil
}

// Migrate brings the schema to the latest version.
func (db *DB) Migrate() error {
	return migrations.MigrateUp(db.DB.DB, db.Dialect)
}

// CheckMigrations reports whether the schema is current.
func (db *DB) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(db.DB.DB, db.Dialect)
}

// MaxNativeIDs returns the largest id in each native table.
func (db *DB) MaxNativeIDs(ctx context.Context) (map[string]int64, error) {
	tables := []string{"posts", "comments", "users", "id_map"}
	ids := make(map[string]int64, len(tables))
	for _, table := range tables {
		var max sql.NullInt64
		if err := db.NewSelect().TableExpr(table).ColumnExpr("MAX(id)").Scan(ctx, &max); err != nil {
			return nil, fmt.Errorf("reading max id of %s: %w", table, err)
		}
		ids[table] = max.Int64
	}
	return ids, nil
}
