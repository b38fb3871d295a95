package migrations

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Run creates the record-store schema. Each collection is a table of
// caller-generated keys and JSON documents; the users collection also
// materializes the username for its unique secondary index.
func Run(db *sqlx.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS medicines (
            id TEXT PRIMARY KEY,
            data TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS sales (
            id TEXT PRIMARY KEY,
            data TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS suppliers (
            id TEXT PRIMARY KEY,
            data TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
            id TEXT PRIMARY KEY,
            data TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS settings (
            id TEXT PRIMARY KEY,
            data TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            data TEXT NOT NULL
        );`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
