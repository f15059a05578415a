package device

import (
	"fmt"
	"time"
)

// Device represents one Shelly device known to the fleet.
//
// Identity is the MAC address, uppercased with no separators
// (e.g. "E868E7EA6333"). The generation determines which transport dialect
// applies: gen1 speaks legacy REST, gen2 and later speak JSON-RPC.
type Device struct {
	// Identity
	ID string `yaml:"id" json:"id"`

	// Classification
	DeviceType string     `yaml:"device_type" json:"device_type"`
	Generation Generation `yaml:"generation" json:"generation"`

	// Network presence. An empty IPAddress means the device is known but
	// unreachable; operations against it fail fast.
	IPAddress string `yaml:"ip_address,omitempty" json:"ip_address,omitempty"`
	Hostname  string `yaml:"hostname,omitempty" json:"hostname,omitempty"`

	// Device state
	Name            string `yaml:"name,omitempty" json:"name,omitempty"`
	FirmwareVersion string `yaml:"firmware_version,omitempty" json:"firmware_version,omitempty"`
	AuthEnabled     bool   `yaml:"auth_enabled" json:"auth_enabled"`
	Status          Status `yaml:"status" json:"status"`

	// Provenance
	DiscoveryMethod DiscoveryMethod `yaml:"discovery_method" json:"discovery_method"`
	LastSeenAt      time.Time       `yaml:"last_seen_at" json:"last_seen_at"`

	// RawInfo is the free-form snapshot from the device's identification
	// endpoint (/shelly), kept for capability discovery and debugging.
	RawInfo map[string]any `yaml:"raw_info,omitempty" json:"raw_info,omitempty"`

	// Timestamps
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// The RawInfo map is cloned so modifications to the copy do not affect the
// original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields
	cpy.RawInfo = deepCopyMap(d.RawInfo)
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// FileName returns the persisted filename for this device:
// "<device_type>_<MAC>.yaml". An unclassified device uses "unknown" as the
// type segment.
func (d *Device) FileName() string {
	deviceType := d.DeviceType
	if deviceType == "" {
		deviceType = "unknown"
	}
	return fmt.Sprintf("%s_%s.yaml", sanitizeFileSegment(deviceType), d.ID)
}

// Reachable reports whether the device can be addressed on the network.
func (d *Device) Reachable() bool {
	return d.IPAddress != ""
}

// Merge folds a fresh discovery observation into this device record.
//
// Classification contract: an HTTP probe result is authoritative for mutable
// fields (IP, firmware, name) at the moment of the query, so its non-empty
// values always win. An mDNS observation only fills fields that are still
// empty, but its timestamp is retained as last_seen_at when newer.
func (d *Device) Merge(incoming *Device) {
	authoritative := incoming.DiscoveryMethod != MethodMDNS

	if incoming.IPAddress != "" && (authoritative || d.IPAddress == "") {
		d.IPAddress = incoming.IPAddress
	}
	if incoming.FirmwareVersion != "" && (authoritative || d.FirmwareVersion == "") {
		d.FirmwareVersion = incoming.FirmwareVersion
	}
	if incoming.Name != "" && (authoritative || d.Name == "") {
		d.Name = incoming.Name
	}
	if incoming.Hostname != "" && (authoritative || d.Hostname == "") {
		d.Hostname = incoming.Hostname
	}
	if incoming.DeviceType != "" && (authoritative || d.DeviceType == "") {
		d.DeviceType = incoming.DeviceType
	}
	if incoming.Generation != GenerationUnknown && (authoritative || d.Generation == GenerationUnknown) {
		d.Generation = incoming.Generation
	}
	if incoming.RawInfo != nil && (authoritative || d.RawInfo == nil) {
		d.RawInfo = deepCopyMap(incoming.RawInfo)
	}
	if incoming.Status != StatusUnknown {
		d.Status = incoming.Status
	}
	if incoming.AuthEnabled {
		d.AuthEnabled = true
	}

	if incoming.LastSeenAt.After(d.LastSeenAt) {
		d.LastSeenAt = incoming.LastSeenAt
	}
}

// Generation represents the hardware/firmware family of a device.
type Generation string

// Generation constants.
const (
	GenerationUnknown Generation = "unknown"
	Gen1              Generation = "gen1"
	Gen2              Generation = "gen2"
	Gen3              Generation = "gen3"
	Gen4              Generation = "gen4"
)

// AllGenerations returns all valid generation values.
func AllGenerations() []Generation {
	return []Generation{Gen1, Gen2, Gen3, Gen4}
}

// IsGen2Plus reports whether the generation speaks JSON-RPC.
// Gen3 and gen4 differ from gen2 only in radio hardware; the wire dialect
// is identical.
func (g Generation) IsGen2Plus() bool {
	return g == Gen2 || g == Gen3 || g == Gen4
}

// Valid reports whether the generation is a recognised value.
func (g Generation) Valid() bool {
	switch g {
	case Gen1, Gen2, Gen3, Gen4, GenerationUnknown:
		return true
	default:
		return false
	}
}

// DiscoveryMethod records how a device entered the registry.
type DiscoveryMethod string

// DiscoveryMethod constants.
const (
	MethodMDNS      DiscoveryMethod = "mdns"
	MethodHTTPProbe DiscoveryMethod = "http-probe"
	MethodManual    DiscoveryMethod = "manual"
)

// Status represents the last observed reachability of a device.
type Status string

// Status constants.
const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Stats summarises the registry for monitoring.
type Stats struct {
	TotalDevices int
	ByGeneration map[Generation]int
	ByType       map[string]int
	ByStatus     map[Status]int
}
