// Package presentation defines the contract between the reminder pipeline
// and whatever shows reminders to a user. Adapters live in subpackages.
package presentation
