// Package api hosts the HTTP surface of the hive daemon.
//
// Routes are registered by the handlers subpackage:
//
//	POST   /api/v1/agents           create an agent
//	GET    /api/v1/agents           list agents (?type=, ?state=)
//	GET    /api/v1/agents/top       top performers (?limit=)
//	GET    /api/v1/agents/{id}      fetch one agent
//	DELETE /api/v1/agents/{id}      remove an agent
//	POST   /api/v1/tasks            submit a task
//	GET    /api/v1/tasks            list tasks (?status=)
//	GET    /api/v1/tasks/search     full-text search (?q=, ?limit=)
//	GET    /api/v1/tasks/{id}       fetch one task
//	GET    /api/v1/status           hive status
//	GET    /api/v1/analytics        analytics snapshot
//	GET    /api/v1/health           system health assessment
//	GET    /api/v1/trends           performance trends
//	GET    /api/v1/events           websocket event stream (?kinds=)
//	PUT    /api/v1/queue/capacity   resize the task queue
//	POST   /api/v1/breakers/reset   close every circuit breaker
//
// Liveness and readiness live at /health and /ready, build info at /version.
// Prometheus metrics are served on a separate listener.
//
// # Authentication
//
// When enabled, /api/v1 requires either an X-API-Key header or a
// Bearer JWT:
//
//	Authorization: Bearer <token>
package api
