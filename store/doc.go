// Package store is the optional transcript archive: one row per completed
// exchange, kept in SQLite or Postgres through gorm. The bridge works
// without it; when no driver is configured the engine simply never records.
package store
