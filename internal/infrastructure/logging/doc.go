// Package logging builds the zap loggers used across the bridge.
//
// Production logs are JSON on stderr; development logs are coloured console
// output with stack traces on errors. Components get named children:
//
//	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	defer logger.Close()
//	chLog := logger.Component("channel")
package logging
