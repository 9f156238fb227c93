// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - Cookie and Web Storage values observed on scanned sites
//   - Oracle credentials (Google API keys, bearer tokens, JWTs)
//   - Session identifiers and long opaque tracking IDs
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Info("cookie observed",
//	    "name", "_ga",
//	    "value", "GA1.2.1234.5678", // sanitized
//	)
//	slog.SetDefault(logger)
package log
