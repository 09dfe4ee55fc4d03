// Package backend confirms snooze and completion actions with the todo
// service over HTTP using a persisted bearer token.
package backend
