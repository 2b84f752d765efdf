package receiver

import "github.com/joshuafuller/pgmflow/internal/errors"

// Errors returned by an Endpoint.
type (
	InvalidURIError    = errors.InvalidURIError
	ConfigurationError = errors.ConfigurationError
	ReceiveError       = errors.ReceiveError
	ShutdownAnomaly    = errors.ShutdownAnomaly
)

var (
	ErrNotRunning     = errors.ErrNotRunning
	ErrAlreadyRunning = errors.ErrAlreadyRunning
)
