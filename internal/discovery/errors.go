package discovery

import "errors"

// Domain errors for the discovery package.
var (
	// ErrScanInProgress is returned when a scan is started while another is
	// still running.
	ErrScanInProgress = errors.New("discovery: scan already in progress")
)
