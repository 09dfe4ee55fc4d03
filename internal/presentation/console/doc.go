// Package console is a terminal presenter. Reminders are printed as blocks
// and acted on with one-line commands typed on stdin.
package console
