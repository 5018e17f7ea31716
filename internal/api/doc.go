// Package api implements the HTTP REST API and WebSocket stream over the
// registered Synapse lights.
//
// This package provides:
//   - REST endpoints to list lights and invoke turn_on / turn_off
//   - A WebSocket hub broadcasting light state changes, accepted actions
//     and new entities, with per-entity subscriptions
//   - The action log at /api/v1/audit
//   - Bearer JWT authentication with role-based permissions
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Actions
//
// Turn on and turn off answer 202 Accepted once the light's transport has
// taken the message. The app never acknowledges actions; the resulting
// state arrives later as a light.state_changed event. Each action is
// written to the action log with its outcome, when one is configured.
//
// # Security
//
// Every route except /api/v1/health needs an HS256 bearer token signed with
// the configured secret (see the "token" subcommand). WebSocket clients may
// pass the token as the "token" query parameter.
package api
