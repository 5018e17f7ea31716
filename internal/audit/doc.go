// Package audit records the actions sent to lights and entity
// registrations in the action_log table, so an operator can see who
// switched what and whether the transport accepted it.
package audit
