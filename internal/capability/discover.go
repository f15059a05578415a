package capability

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/jsonpath"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

// gen1ProbeEndpoints is the fixed Gen1 probe set. The first three exist on
// every Gen1 device; the rest detect per-profile endpoints by their 200/404
// response.
var gen1ProbeEndpoints = []string{
	"shelly",
	"settings",
	"status",
	"settings/relay/0",
	"settings/light/0",
	"settings/roller/0",
	"settings/actions",
	"settings/ap",
	"settings/mqtt",
	"settings/cloud",
	"settings/device",
	"settings/network",
	"settings/login",
	"settings/webhooks",
}

// gen2ProbeMethods is the fixed Gen2+ probe set.
var gen2ProbeMethods = []string{
	"Shelly.GetDeviceInfo",
	"Shelly.GetConfig",
	"Shelly.GetStatus",
	"Sys.GetStatus",
	"Cloud.GetConfig",
	"MQTT.GetConfig",
	"WiFi.GetConfig",
	"BLE.GetConfig",
	"Script.List",
	"Schedule.List",
}

// forcedReadOnlyNames are leaf field names that are never writable no matter
// which endpoint carried them.
var forcedReadOnlyNames = map[string]bool{
	"mac": true, "fw": true, "ssid": true, "uptime": true, "time": true,
	"unixtime": true, "serial": true, "has_update": true, "ram_total": true,
	"ram_free": true, "fs_size": true, "fs_free": true, "type": true,
	"device": true, "gen": true, "ver": true, "fw_id": true, "app": true,
	"model": true, "id": true, "auth_en": true, "auth": true,
}

// forcedReadOnlyPrefixes force whole payload subtrees read-only.
var forcedReadOnlyPrefixes = []string{
	"build_info.", "update.", "wifi_sta.rssi", "cloud.connected",
	"available_updates.",
}

// Discoverer probes a representative device and generalises the observed
// response shapes into a capability definition.
type Discoverer struct {
	transport *transport.Client
	mapping   *Mapping
	logger    Logger
}

// NewDiscoverer creates a capability discoverer.
func NewDiscoverer(tc *transport.Client, mapping *Mapping) *Discoverer {
	return &Discoverer{
		transport: tc,
		mapping:   mapping,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the discoverer.
func (d *Discoverer) SetLogger(logger Logger) {
	d.logger = logger
}

// Discover probes one device and returns its capability definition.
// The device must be reachable; its generation selects the probing dialect.
func (d *Discoverer) Discover(ctx context.Context, dev *device.Device) (*Definition, error) {
	if !dev.Reachable() {
		return nil, transport.ErrNoAddress
	}

	def := &Definition{
		DeviceType:  dev.DeviceType,
		Generation:  dev.Generation,
		APIs:        make(map[string]APIDefinition),
		Parameters:  make(map[string]ParameterDescriptor),
		GeneratedAt: time.Now().UTC(),
	}
	if info, ok := defaultTypeTable().Types[dev.DeviceType]; ok {
		def.Name = info.Name
	}

	switch {
	case dev.Generation == device.Gen1:
		if err := d.discoverGen1(ctx, dev, def); err != nil {
			return nil, err
		}
	case dev.Generation.IsGen2Plus():
		if err := d.discoverGen2(ctx, dev, def); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownGeneration, dev.Generation)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// discoverGen1 probes the fixed Gen1 endpoint set. Each 200 response is
// recorded as an API and every leaf of its payload becomes a parameter;
// leaves of the status and shelly endpoints are read-only.
func (d *Discoverer) discoverGen1(ctx context.Context, dev *device.Device, def *Definition) error {
	var observed int
	for _, endpoint := range gen1ProbeEndpoints {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		payload, status, err := d.transport.Gen1Call(ctx, dev.IPAddress, http.MethodGet, endpoint, nil)
		if err != nil {
			// A dead device aborts discovery; a missing endpoint does not.
			if transport.IsUnreachable(err) || transport.IsCancelled(err) {
				return fmt.Errorf("probing %s: %w", endpoint, err)
			}
			d.logger.Debug("gen1 probe failed", "endpoint", endpoint, "error", err)
			continue
		}
		if status != http.StatusOK {
			continue
		}
		observed++

		def.APIs[endpoint] = APIDefinition{
			Description:       gen1EndpointDescription(endpoint),
			ResponseStructure: inferStructure(payload),
		}

		readOnly := endpoint == "status" || endpoint == "shelly"
		d.harvestGen1Parameters(def, endpoint, payload, readOnly)
	}

	if observed == 0 {
		return fmt.Errorf("%w: no gen1 endpoints answered", ErrInvalidDefinition)
	}
	return nil
}

// harvestGen1Parameters turns each payload leaf into a parameter whose api
// is the endpoint it came from.
func (d *Discoverer) harvestGen1Parameters(def *Definition, endpoint string, payload any, readOnly bool) {
	for path, leaf := range jsonpath.Flatten(payload) {
		name := d.mapping.ToCanonical(path)
		if _, exists := def.Parameters[name]; exists {
			continue
		}

		def.Parameters[name] = ParameterDescriptor{
			Type:          leafType(leaf),
			ReadOnly:      readOnly || isForcedReadOnly(path),
			API:           endpoint,
			ParameterPath: path,
			QueryKey:      jsonpath.LastSegment(path),
		}
	}
}

// discoverGen2 calls the fixed Gen2+ method set. Each answering method is
// recorded as an API; parameters are harvested from the GetConfig results
// with api set to the corresponding SetConfig.
func (d *Discoverer) discoverGen2(ctx context.Context, dev *device.Device, def *Definition) error {
	var observed int
	for _, method := range gen2ProbeMethods {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, rpcErr, err := d.transport.Gen2Call(ctx, dev.IPAddress, method, nil)
		if err != nil {
			if transport.IsUnreachable(err) || transport.IsCancelled(err) {
				return fmt.Errorf("calling %s: %w", method, err)
			}
			d.logger.Debug("gen2 probe failed", "method", method, "error", err)
			continue
		}
		if rpcErr != nil {
			// Component absent on this model.
			d.logger.Debug("gen2 method refused", "method", method, "code", rpcErr.Code)
			continue
		}
		observed++

		def.APIs[method] = APIDefinition{
			Description:       "RPC " + method,
			ResponseStructure: inferStructure(result),
		}

		switch {
		case method == "Shelly.GetConfig":
			d.harvestGen2Config(def, result)
		case strings.HasSuffix(method, ".GetConfig"):
			// Per-component GetConfig: harvest with the component implied by
			// the method itself.
			component := strings.ToLower(strings.TrimSuffix(method, ".GetConfig"))
			setter, ok := SetterForGetter(method)
			if !ok {
				continue
			}
			d.harvestGen2Component(def, setter, component, result)
		}
	}

	if observed == 0 {
		return fmt.Errorf("%w: no gen2 methods answered", ErrInvalidDefinition)
	}
	return nil
}

// harvestGen2Config walks the full Shelly.GetConfig result. Top-level keys
// are component keys ("sys", "wifi", "mqtt", "switch:0", ...).
func (d *Discoverer) harvestGen2Config(def *Definition, result any) {
	root, ok := result.(map[string]any)
	if !ok {
		return
	}

	for componentKey, componentValue := range root {
		setter, ok := setterForComponentKey(componentKey)
		if !ok {
			continue
		}
		d.harvestGen2Component(def, setter, componentKey, componentValue)
	}
}

// harvestGen2Component harvests one component's config object.
//
// For indexed components ("switch:0") the component hint is the key itself
// and the parameter path is the remainder below it. For singleton
// components the first nested object key becomes the component hint, per
// the Sys.SetConfig {"config":{"device":{"eco_mode":...}}} nesting.
func (d *Discoverer) harvestGen2Component(def *Definition, setter, componentKey string, componentValue any) {
	// Record the component's reader so the engine's getter pivot always has
	// an observed API to anchor on.
	if getter, ok := GetterForSetter(setter); ok {
		if _, exists := def.APIs[getter]; !exists {
			def.APIs[getter] = APIDefinition{
				Description:       "RPC " + getter,
				ResponseStructure: inferStructure(componentValue),
			}
		}
	}

	indexed := strings.Contains(componentKey, ":")

	for path, leaf := range jsonpath.Flatten(componentValue) {
		var desc ParameterDescriptor
		var name string

		if indexed {
			name = componentKey + "." + path
			desc = ParameterDescriptor{
				Type:          leafType(leaf),
				API:           setter,
				Component:     componentKey,
				ParameterPath: path,
			}
		} else {
			segments := strings.SplitN(path, ".", 2)
			if len(segments) == 2 {
				name = segments[1]
				if componentKey != "sys" {
					name = componentKey + "." + path
				}
				desc = ParameterDescriptor{
					Type:          leafType(leaf),
					API:           setter,
					Component:     segments[0],
					ParameterPath: segments[1],
				}
			} else {
				name = componentKey + "." + path
				desc = ParameterDescriptor{
					Type:          leafType(leaf),
					API:           setter,
					ParameterPath: path,
				}
			}
		}

		name = d.mapping.ToCanonical(name)
		if _, exists := def.Parameters[name]; exists {
			continue
		}
		desc.ReadOnly = isForcedReadOnly(path)
		def.Parameters[name] = desc
	}
}

// setterForComponentKey maps a Shelly.GetConfig top-level key to its
// SetConfig method ("switch:0" → "Switch.SetConfig").
func setterForComponentKey(key string) (string, bool) {
	base := key
	if i := strings.IndexByte(base, ':'); i >= 0 {
		base = base[:i]
	}

	for _, component := range rpcConfigComponents {
		if strings.EqualFold(component, base) {
			return component + ".SetConfig", true
		}
	}
	return "", false
}

// gen1EndpointDescription labels the well-known Gen1 endpoints.
func gen1EndpointDescription(endpoint string) string {
	switch endpoint {
	case "shelly":
		return "Device identification"
	case "settings":
		return "Device configuration"
	case "status":
		return "Runtime status"
	default:
		return "Settings: " + strings.TrimPrefix(endpoint, "settings/")
	}
}

// isForcedReadOnly reports whether a payload path matches the fixed
// read-only patterns regardless of its endpoint.
func isForcedReadOnly(path string) bool {
	if forcedReadOnlyNames[jsonpath.LastSegment(path)] {
		return true
	}
	for _, prefix := range forcedReadOnlyPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// leafType infers a parameter type from an observed JSON leaf. A literal
// null is recorded as type null and treated as nullable by the engine.
func leafType(leaf any) ParamType {
	switch v := leaf.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case float64:
		if v == math.Trunc(v) {
			return TypeInteger
		}
		return TypeFloat
	case string:
		return TypeString
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	default:
		return TypeString
	}
}

// inferStructure records the shape of an observed payload in the schema
// language: leaves become type-name strings, containers recurse.
func inferStructure(value any) map[string]any {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(obj))
	for key, child := range obj {
		out[key] = structureOf(child)
	}
	return out
}

func structureOf(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return inferStructure(v)
	case []any:
		if len(v) == 0 {
			return []any{}
		}
		return []any{structureOf(v[0])}
	default:
		return string(leafType(value))
	}
}

// SortedParameterNames returns a definition's parameter names sorted, for
// deterministic reporting.
func SortedParameterNames(def *Definition) []string {
	names := make([]string, 0, len(def.Parameters))
	for name := range def.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
