// Package http provides the HTTP handlers of the tool surface.
//
// Endpoints:
//   - Health: / and /health
//   - Services: /services, /services/discover, /services/execute
//
// Example Usage:
//
//	handlers := http.NewHandlers(registry, ch, metrics)
//	router.POST("/services/execute", handlers.ExecuteService)
package http
