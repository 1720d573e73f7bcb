// Package main runs the shared memory bridge server.
//
// The server opens (or creates, in read_write mode) the configured segment
// and serves it over HTTP:
//
//	GET  /                   status
//	GET  /health             segment info, registry stats, counters
//	GET  /services           service catalogue
//	POST /services/discover  catalogue search
//	POST /services/execute   run a mailbox tool
//	GET  /stream             websocket change feed
//	GET  /metrics            Prometheus exposition
//
// Configuration comes from the environment (SHM_NAME, SHM_MODE, PORT, ...)
// or from a YAML/TOML file given with -config.
//
// Usage:
//
//	./server -port 8000
//	SHM_NAME=sensor SHM_MODE=read_only ./server -dev
//	./server -config bridge.yaml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown. The segment is left in place.
package main
