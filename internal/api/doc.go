// Package api implements the HTTP REST API and WebSocket server for
// Motorbank Core.
//
// This package provides:
//   - REST endpoints for motor status, commands, polling and history
//   - WebSocket hub for real-time motor, link and feedback broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server sits between user interfaces and the driver. Commands flow
// from the API into the driver, which sends the wire command; state changes
// come back through the driver's listeners, and the Hub is one of them.
//
// # Graceful Degradation
//
// The server keeps answering while the controller link is down: reads and
// WebSocket connections work, commands report link_unavailable.
package api
