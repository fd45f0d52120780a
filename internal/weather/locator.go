package weather

import "context"

// Locator reports the device position for ByDeviceLocation queries.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// StaticLocator always reports the configured position.
type StaticLocator struct {
	Coordinates Coordinates
}

// Locate returns the configured coordinates.
func (s StaticLocator) Locate(context.Context) (Coordinates, error) {
	return s.Coordinates, nil
}

// NoLocator is used when no device position is configured.
type NoLocator struct{}

func (NoLocator) Locate(context.Context) (Coordinates, error) {
	return Coordinates{}, ErrCapabilityUnavailable
}
