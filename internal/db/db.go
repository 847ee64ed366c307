package db

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"receipt-overseer/internal/config"
)

// Connect opens the configured database and runs migrations.
func Connect(cfg config.DBConfig) (*sqlx.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Open connects without migrating.
func Open(cfg config.DBConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		return db, nil
	case "sqlite":
		db, err := sqlx.Connect("sqlite", sqliteDSN(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		// SQLite allows a single writer; one connection keeps pragmas and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// Migrate applies the schema for the connection's dialect.
func Migrate(db *sqlx.DB) error {
	migrations := postgresMigrations
	if db.DriverName() == "sqlite" {
		migrations = sqliteMigrations
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	slog.Info("database migrations applied", "driver", db.DriverName())
	return nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            created_at BIGINT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS expenses (
            id SERIAL PRIMARY KEY,
            payer_id INT NOT NULL REFERENCES users(id),
            amount NUMERIC NOT NULL CHECK (amount > 0),
            description TEXT NOT NULL,
            created_at BIGINT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS expense_shares (
            id SERIAL PRIMARY KEY,
            expense_id INT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
            debtor_id INT NOT NULL REFERENCES users(id),
            amount_owed NUMERIC NOT NULL CHECK (amount_owed >= 0),
            UNIQUE(expense_id, debtor_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            created_at BIGINT NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_payer_id ON expenses(payer_id);`,
	`CREATE INDEX IF NOT EXISTS idx_expense_shares_expense_id ON expense_shares(expense_id);`,
	`CREATE INDEX IF NOT EXISTS idx_expense_shares_debtor_id ON expense_shares(debtor_id);`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS expenses (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            payer_id INTEGER NOT NULL REFERENCES users(id),
            amount TEXT NOT NULL,
            description TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS expense_shares (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            expense_id INTEGER NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
            debtor_id INTEGER NOT NULL REFERENCES users(id),
            amount_owed TEXT NOT NULL,
            UNIQUE(expense_id, debtor_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            created_at INTEGER NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_payer_id ON expenses(payer_id);`,
	`CREATE INDEX IF NOT EXISTS idx_expense_shares_expense_id ON expense_shares(expense_id);`,
	`CREATE INDEX IF NOT EXISTS idx_expense_shares_debtor_id ON expense_shares(debtor_id);`,
}
