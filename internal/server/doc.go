// Package server wires the mailbox channel into the HTTP surface.
//
// Server Lifecycle:
//  1. Open (or create) the configured segment
//  2. Build the retry coordinator and envelope protocol
//  3. Register the mailbox provider
//  4. Set up middleware and routes
//  5. Serve until Close
//
// Routes:
//   - GET /, GET /health
//   - GET /services, POST /services/discover, POST /services/execute
//   - GET /metrics (Prometheus)
//   - GET /stream (WebSocket watch stream)
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, logger)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
