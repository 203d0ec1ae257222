// Package stores provides run history persistence for OpenConverge.
// It includes SQLite-based storage with WAL mode and embedded migrations,
// persisting run reports, per-resource outcomes and refresh events.
package stores
