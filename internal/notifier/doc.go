// Package notifier delivers transient user notices (backend failures,
// snooze confirmations) without blocking the caller.
//
// Notices are queued and sent by a small worker pool with a shared rate
// limit, retried with jittered backoff, and suppressed when an identical
// notice was sent within the dedup window.
//
// # Sinks
//
// Delivery goes to a presentation.NoticeSink. Fanout combines several sinks
// (for example console and Telegram) into one.
//
// # History
//
// The service keeps a short in-memory history of delivered notices for the
// debug server.
package notifier
