// Package postgres implements goGuard.Store on PostgreSQL with pgx.
//
// Account updates run inside a transaction that holds the row with
// SELECT ... FOR UPDATE, so lockout counters and token rotation never race.
// Session tokens are stored as SHA-256 digests; an account read back from the
// database therefore has an empty Token field. Emails are encrypted at rest
// when the Store is given a fieldcrypt.Encryptor.
//
// Migrate applies the embedded schema and is safe to call on every start.
package postgres
