// Package storage is the SQL persistence layer: auctions, tenant settings,
// reminders and the operator audit log. It runs on SQLite (modernc, no cgo)
// or MySQL with the same queries; only DDL and upserts differ per dialect.
package storage
