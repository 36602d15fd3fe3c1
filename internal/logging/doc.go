// Package logging provides structured logging utilities for agenda.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization)
//   - Consistent attribute naming across the codebase
//   - An adapter that routes cron scheduler output through slog
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithAccount(slog.Default(), acc.ID)
//	logger.Warn("failed to fetch events",
//	    logging.UserHash(acc.Email),
//	    logging.Err(err))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
