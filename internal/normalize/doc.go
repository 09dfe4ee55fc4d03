// Package normalize decodes inbound todo-reminder payloads.
//
// Three wire shapes are recognized, tried in order:
//   - v2: {"version":"2.x","type":"TODO_REMINDER","data":{...},"metadata":{...}}
//   - v1: flat object with a top-level "type"
//   - legacy: anything else, wrapped as a normal-priority free-text reminder
package normalize
