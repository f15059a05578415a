package tsdb

import "errors"

// Domain errors for the tsdb package.
var (
	// ErrDisabled is returned when the telemetry sink is disabled in config.
	ErrDisabled = errors.New("tsdb: disabled in configuration")

	// ErrConnectionFailed is returned when the InfluxDB server cannot be
	// reached at startup.
	ErrConnectionFailed = errors.New("tsdb: connection failed")
)
