// Package analytics derives completion statistics, daily trends, overdue
// reason analysis and periodic reports from history entries.
package analytics
