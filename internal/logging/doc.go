// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output with stack traces
//
// Subsystems take a *zap.Logger; callers pass Logger.Named(...) so each
// line carries its component (devices, msgbox, server).
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	logger.Info("endpoint opened", zap.Int("minor", 0))
//	logger.Warn("retrieve failed", logging.Errno(err))
package logging
