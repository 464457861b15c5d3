// Package postgres implements the OTP store, the session store and the user
// directory on Postgres through gorm.
//
// OTP creation serializes per (user, type) with a transaction-scoped advisory
// lock; attempt counting and single-use consumption are conditional UPDATEs;
// refresh rotation is a compare-and-swap on the current hash checked through
// RowsAffected.
package postgres
