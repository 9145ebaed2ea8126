// Package storage persists per-user auto-claim state and claim history.
//
// Two backends are supported: a file backend (one JSON document per user,
// atomic rename writes) and an optional SQLite backend behind the "sqlite"
// build tag. All access is serialized per user.
package storage
