// Package httpserver provides the shared HTTP server shell for the
// coordination binaries.
//
// The package implements a base HTTP server with standard health
// endpoints, graceful shutdown, an optional metrics listener and
// flexible routing, so the coordinator process reuses one server
// lifecycle while the coordination endpoints themselves are registered
// by the service package.
//
// # Key Components
//
//   - BaseServer: core HTTP server with health checks, metrics and lifecycle management
//   - RouteRegistrar: interface for components to register their routes with the server
//
// # Server Lifecycle
//
//  1. Initialization: configure server with HTTP settings and route registrars
//  2. Startup: run HTTP and metrics servers in background goroutines
//  3. Operation: handle requests with logging and monitoring
//  4. Readiness control: drain/undrain operations for load balancers
//  5. Graceful shutdown: wait for in-flight requests to complete
//
// # Health and Diagnostics
//
// All servers built with BaseServer automatically include:
//
//   - Liveness check: verify the server is running (/livez)
//   - Readiness check: whether the server accepts requests (/readyz)
//   - Drain control: prepare for graceful shutdown (/drain, /undrain)
//   - Metrics: optional Prometheus-compatible metrics endpoint
//   - Profiling: optional pprof debugging endpoints when enabled
//
// # Transport Security
//
// With a TLS configuration the server requires and verifies client
// certificates, so only holders of certificates signed by the
// configured authority can participate. Without one the server speaks
// plain HTTP and logs a warning.
package httpserver
