package config

import "errors"

// Validation errors returned by Config.Validate. Callers match them with
// errors.Is; some are wrapped with the offending value.
var (
	ErrNoRootURL            = errors.New("no root url configured")
	ErrInvalidRootURL       = errors.New("root url must be an absolute http or https url")
	ErrInvalidMaxDepth      = errors.New("max depth must be at least 1")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInvalidDelayRange    = errors.New("delay_max must not be lower than delay_min")
	ErrInvalidFlushInterval = errors.New("checkpoint intervals must be positive")
	ErrInvalidWorkers       = errors.New("downloader workers must be positive")
	ErrUnknownBackend       = errors.New("unknown checkpoint backend")
	ErrMissingDSN           = errors.New("postgres checkpoint backend needs a dsn")
)
