// Package gateway orchestrates the teams-gateway server components.
//
// # Overview
//
// The gateway owns the conversation registry, the Bot Framework connector,
// the proactive service, the delivery log and the controller client, and
// serves them over one HTTP server. An optional gRPC server exposes the
// standard health service.
//
// # HTTP API
//
// Bot Framework:
//
//	POST /api/messages        inbound activities (remember + templated reply)
//
// Admin API (API key, bcrypt hash or operator JWT when configured):
//
//	GET  /api/conversations   remembered conversations
//	POST /api/proactive       send text and/or an alert card
//	GET  /api/deliveries      proactive delivery log
//
// Health and diagnostics:
//
//	GET /                     service banner
//	GET /health, /__ready     liveness
//	GET /health/ready         readiness (503 until listening and during shutdown)
//	GET /__env                non-secret config flags
//	GET /__bf-token           claims of the current connector token
//	GET /__auth-probe         whether the app credentials can obtain a token
//
// Controller pass-through: GET /dashboard/data plus the routes listed in
// controller.Routes.
//
// # Listeners
//
// Without Tailscale the HTTP server binds server.http_addr and gRPC binds
// server.grpc_addr when set. With Tailscale enabled both listen on the tsnet
// node (HTTP on :80, or :443 with https or funnel; gRPC on :50051). Funnel
// makes /api/messages reachable from the Bot Framework service.
//
// # Shutdown
//
// Run blocks until its context is canceled, then shuts down with a 5 second
// timeout: readiness and gRPC health flip to not serving, the HTTP server
// drains, gRPC stops, and the delivery log and dedupe cache are closed.
package gateway
