// Package stores persists shardctl run history. Every report produced by
// setup, build-service and clean is stored as a run with its ordered
// per-service outcomes, in a SQLite database migrated with embedded SQL.
package stores
