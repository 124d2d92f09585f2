// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON lines on stdout
//   - Development: colored console output on stderr (--dev or LOG_DEV=true)
//
// Components receive a *zap.Logger and pass nil through OrNop, so tests can
// construct them without any logging setup.
//
// Example Usage:
//
//	logger, err := logging.NewFromSettings("debug", true)
//	logger.Info("Document registered", zap.String("doc_id", id))
package logging
