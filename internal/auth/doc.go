// Package auth issues and validates the bearer tokens that protect the
// HTTP API.
//
// Tokens are HS256 JWTs signed with the configured secret. Each carries a
// subject, a unique id and a Role; the role maps to a fixed permission set
// so handlers never need a database lookup to authorise a request.
package auth
