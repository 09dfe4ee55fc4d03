// Package storage provides the durable key/value records behind reminderd:
//   - the snooze queue
//   - the history ledger
//   - the first-run flag
//   - the optional normalizer debug capture
//
// Every record is rewritten whole on each Put.
package storage
