// Package api implements the HTTP query API and WebSocket feed for the historian.
//
// This package provides:
//   - REST endpoints for point metadata and point value reads
//   - Multi-point latest, range and bookend queries
//   - Value deletion and point purge
//   - WebSocket hub broadcasting every persisted value
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Endpoints
//
//	GET    /api/v1/health
//	POST   /api/v1/auth/ws-ticket
//	GET    /api/v1/points
//	GET    /api/v1/points/{id}
//	GET    /api/v1/points/{id}/latest?before=&n=
//	GET    /api/v1/points/{id}/values?from=&to=&limit=
//	GET    /api/v1/points/{id}/count?from=&to=
//	GET    /api/v1/points/{id}/images/{valueID}
//	DELETE /api/v1/points/{id}/values?before=
//	DELETE /api/v1/points/{id}
//	GET    /api/v1/values/latest?ids=&before=&order_by_id=&limit=
//	GET    /api/v1/values?ids=&from=&to=&order_by_id=&limit=
//	GET    /api/v1/values/bookend?ids=&from=&to=&order_by_id=&limit=
//	GET    /api/v1/values/extent?ids=
//	GET    /api/v1/stats
//	GET    /api/v1/ws?ticket=
//
// Timestamps are epoch milliseconds.
//
// # Security
//
// When security.jwt.secret is set every endpoint except health requires an
// HS256 bearer token with a subject and expiry. WebSocket connections use
// single-use tickets to keep tokens out of URLs. Without a secret the API
// is open and intended for local development only.
package api
