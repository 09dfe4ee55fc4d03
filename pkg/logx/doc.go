// Package logx is reminderd's logging layer on top of zerolog.
//
// Components take a logx.Logger by value and tag it with
// logx.String("comp", name). The Service behind it writes a readable console
// stream, an optional JSON file, and forwards warnings to a remote sink
// (normally the chat presenter) under a rate limit.
package logx
