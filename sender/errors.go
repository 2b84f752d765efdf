package sender

import "github.com/joshuafuller/pgmflow/internal/errors"

// Errors returned by an Endpoint. Inspect them with errors.Is / errors.As.
type (
	InvalidURIError    = errors.InvalidURIError
	ConfigurationError = errors.ConfigurationError
	SendFailure        = errors.SendFailure
	ShutdownAnomaly    = errors.ShutdownAnomaly
)

var (
	ErrNotRunning     = errors.ErrNotRunning
	ErrAlreadyRunning = errors.ErrAlreadyRunning
)
