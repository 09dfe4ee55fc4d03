// Package reminder holds the canonical data model shared by every stage of
// the pipeline: reminders, snooze entries, history entries, and the sentinel
// errors used across package boundaries.
package reminder
