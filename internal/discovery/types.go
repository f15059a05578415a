package discovery

import (
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// EventType identifies a discovery event.
type EventType string

// Event types emitted on the engine's out-channel.
const (
	EventScanStarted   EventType = "scan_started"
	EventScanFinished  EventType = "scan_finished"
	EventDeviceFound   EventType = "device_found"
	EventDeviceUpdated EventType = "device_updated"
)

// Event is one discovery observation.
type Event struct {
	Type   EventType      `json:"type"`
	Device *device.Device `json:"device,omitempty"`
	Stats  *ScanStats     `json:"stats,omitempty"`
}

// ScanStats summarises one scan run.
type ScanStats struct {
	ProbedIPs int           `json:"probed_ips"`
	Found     int           `json:"found"`
	Duration  time.Duration `json:"duration"`
}

// Options configures one scan. Both strategies are optional and
// independently configurable.
type Options struct {
	// MDNS enables the multicast DNS browse.
	MDNS bool

	// HTTPProbe enables active probing of Networks and IPs.
	HTTPProbe bool

	// Networks is a list of CIDR blocks whose hosts are probed.
	Networks []string

	// IPs are explicit probe targets in addition to Networks.
	IPs []string

	// ChunkSize bounds simultaneous probes; each chunk completes before the
	// next starts. Defaults to 16.
	ChunkSize int

	// ProbeTimeout is the per-IP connect timeout. Defaults to 1 s.
	ProbeTimeout time.Duration

	// MDNSWindow is how long the browse listens for answers. Defaults to 5 s.
	MDNSWindow time.Duration
}

// withDefaults fills unset option fields.
func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 16
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = time.Second
	}
	if o.MDNSWindow <= 0 {
		o.MDNSWindow = 5 * time.Second
	}
	return o
}
