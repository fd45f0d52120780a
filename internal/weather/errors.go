package weather

import "errors"

var (
	// ErrCapabilityUnavailable reports that the device cannot supply its location.
	ErrCapabilityUnavailable = errors.New("weather: location capability unavailable")
	// ErrSourceUnavailable matches every *SourceUnavailableError.
	ErrSourceUnavailable = errors.New("weather: source unavailable")
	// ErrUnknownCity reports a ByCity query naming no preset city.
	ErrUnknownCity = errors.New("weather: unknown city")
)

// SourceUnavailableError wraps a network or decoding failure with a message
// suitable for display.
type SourceUnavailableError struct {
	Message string
	Err     error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

func unavailable(msg string, err error) error {
	return &SourceUnavailableError{Message: msg, Err: err}
}
