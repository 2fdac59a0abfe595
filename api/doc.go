// Package api defines the wire types for the AgentRelay HTTP API.
//
// This package contains the request/response DTOs, the unified response
// envelope, and type aliases for domain types that are served verbatim.
//
// # API Overview
//
// AgentRelay provides a RESTful API for:
//   - Initiating and tracking cross-agent handoffs
//   - Cancelling in-flight handoffs
//   - Context hydration for target agents
//   - Agent capability listing
//   - Handoff history, audit records and statistics
//   - Lifecycle event streaming over WebSocket
//   - Liveness, readiness and Prometheus metrics endpoints
//
// # Authentication
//
// When authentication is enabled, API endpoints require a bearer token:
//
//	Authorization: Bearer <jwt>
//
// # Base URL
//
// With the default server configuration the API is reachable at:
//
//	http://localhost:8080
//
// # Response Envelope
//
// All JSON endpoints respond with the Response envelope:
//
//	{
//	  "success": true,
//	  "data": { ... },
//	  "timestamp": "2026-01-12T10:30:00Z"
//	}
//
// Errors carry a structured ErrorInfo instead of data:
//
//	{
//	  "success": false,
//	  "error": {"code": "UNKNOWN_HANDOFF", "message": "..."},
//	  "timestamp": "2026-01-12T10:30:00Z"
//	}
package api
