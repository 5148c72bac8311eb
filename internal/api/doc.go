// Package api implements the HTTP REST API and WebSocket server for the
// reconciliation engine.
//
// This package provides:
//   - REST endpoints for devices, groups, scenes, and routines
//   - WebSocket hub for real-time state change broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS, rate limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces and the domain stores
// owned by the single consumer event loop (cmd/graylogic/dispatch.go).
// Handlers never mutate device or group state directly: a device write
// enqueues an Action event onto the bus and the dispatcher applies it on
// its own goroutine. Scene PUT/DELETE are the exception: they update the
// scene store directly and then emit DbStoreScene/DbEditScene/
// DbDeleteScene events so the dispatcher persists and invalidates.
//
// # Security
//
// This system has no multi-tenant isolation and no authentication
// layer; it is designed to run on a trusted local network behind the
// operator's own perimeter. See SPEC_FULL.md §1 Non-goals.
//
// # Graceful Degradation
//
// The server operates without MQTT or an audit repository configured —
// reads and WebSocket connections keep working; only device commands
// that depend on a downed integration fail, and audit entries are
// simply not recorded.
package api
