package influxdb

import "errors"

// Errors returned by the mirror client. Failures from the InfluxDB API are
// wrapped in one of these.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: mirror disabled")

	// ErrConnectionFailed indicates the server did not answer the initial
	// ping or reported itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrUnhealthy indicates a health check ping failed.
	ErrUnhealthy = errors.New("influxdb: server unhealthy")

	// ErrWriteFailed wraps batch write errors before they are logged.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
