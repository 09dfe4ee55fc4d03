// Package telegram presents reminders in a Telegram chat. Each reminder is a
// message with inline buttons; pressing one reports a user action. The same
// bot also carries transient notices and forwarded log lines.
package telegram
