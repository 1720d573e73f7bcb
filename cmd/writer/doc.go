// Package main runs the continuous writer.
//
// The writer opens the configured segment read-write (creating it when
// missing) and stores a fresh typed record every WRITER_INTERVAL. The record
// kind is WRITER_KIND or -kind: systemstatus, message, configuration or
// metrics.
//
// Usage:
//
//	SHM_NAME=sensor ./writer -kind metrics
//	./writer -config bridge.toml -count 10
package main
