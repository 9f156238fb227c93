package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no target URL is specified.
	ErrNoTarget = errors.New("no target specified: provide at least one site URL")

	// ErrInvalidTier is returned for an unknown depth tier name.
	ErrInvalidTier = errors.New("invalid tier: must be quick, standard, deep or full")

	// ErrInvalidMaxPages is returned when the page budget is outside 1..100.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be between 1 and 100")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when a delay is negative.
	// Use 0 for no delay.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidRetries is returned when fewer than one oracle attempt is
	// configured.
	ErrInvalidRetries = errors.New("invalid oracle retries: must be at least 1")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrUnknownOracle is returned for an --oracle value other than static
	// or genai.
	ErrUnknownOracle = errors.New("unknown oracle: must be static or genai")

	// ErrMissingAPIKey is returned when the genai oracle is selected without
	// GEMINI_API_KEY or GOOGLE_API_KEY in the environment.
	ErrMissingAPIKey = errors.New("genai oracle requires GEMINI_API_KEY or GOOGLE_API_KEY")
)
