// Package api implements the HTTP REST API and WebSocket server for the
// employee notice board.
//
// This package provides:
//   - REST endpoints for registration, sessions, and password recovery
//   - Admin endpoints for the employee roster, notices, and the audit log
//   - WebSocket hub for live notice feed broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Security
//
// Authentication uses short-lived JWT access tokens with rotating refresh
// tokens; admin-only routes additionally gate on the principal kind.
// WebSocket connections use single-use tickets to prevent token leakage
// in URLs.
package api
