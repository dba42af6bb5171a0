//go:build !wasm
// +build !wasm

// Package gorm provides the GORM-based implementation of the sessionauth Store.
// It runs against MySQL in production and SQLite in tests, and any other
// database GORM supports.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: User accounts, unique on email
//   - accounts: Federated provider links keyed by (provider_id, provider_account_id)
//   - sessions: Login sessions with active and idle expiry
//   - email_verification_tokens: At most one outstanding code per user
//   - password_reset_tokens: SHA-256 hashes of reset tokens, at most one per user
//
// Unique key violations surface as sa.ErrConstraintViolation and missing rows
// as sa.ErrNotFound.
//
// # Usage
//
//	db, _ := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db)
package gorm
