// Package inbound receives reminder payloads from the upstream agent over a
// websocket and feeds them into the pipeline.
package inbound
