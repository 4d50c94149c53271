package vmdcore

import "fmt"

// ConfigurationError is returned when a Config or a first frame's dimensions
// cannot satisfy the grid geometry the core needs. It is fatal to the
// instance: construction (or the first Process call) must be retried with a
// corrected Config.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("vmdcore: configuration error: %s", e.Reason)
}

// DimensionMismatch is returned by Process when a later frame's dimensions
// differ from the first frame that initialized the estimator's grid. It is
// fatal unless the caller calls Reset and starts a new sequence.
type DimensionMismatch struct {
	FirstWidth, FirstHeight int
	GotWidth, GotHeight     int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf(
		"vmdcore: frame dimensions %dx%d do not match first frame %dx%d",
		e.GotWidth, e.GotHeight, e.FirstWidth, e.FirstHeight,
	)
}
