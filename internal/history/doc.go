// Package history keeps the capped ledger of accepted reminder transitions,
// with date-bucket queries and JSON export/import.
package history
