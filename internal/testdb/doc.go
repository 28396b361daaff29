// Package testdb provides helpers for tests that run against a real
// PostgreSQL database.
//
// Tests call Open, which skips the test unless DATABASE_URL (or
// INKWELL_TEST_DB_URL) is set, applies the embedded migrations once per
// process and returns a connection pool. WithTx runs a test body inside a
// transaction that is always rolled back.
package testdb
