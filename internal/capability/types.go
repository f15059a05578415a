package capability

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// ParamType is the declared value type of a parameter.
type ParamType string

// ParamType constants.
const (
	TypeBoolean ParamType = "boolean"
	TypeInteger ParamType = "integer"
	TypeFloat   ParamType = "float"
	TypeString  ParamType = "string"
	TypeEnum    ParamType = "enum"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
	TypeNull    ParamType = "null"
)

// APIDefinition describes one API a device type exposes: a Gen1 REST
// sub-path ("settings", "settings/relay/0") or a Gen2+ RPC method
// ("Sys.GetConfig"). The response structure records observed field types in
// the catalogue's schema language, not free JSON: leaves are type-name
// strings, containers are nested maps.
type APIDefinition struct {
	Description       string         `yaml:"description,omitempty" json:"description,omitempty"`
	ResponseStructure map[string]any `yaml:"response_structure,omitempty" json:"response_structure,omitempty"`
}

// ParameterDescriptor describes one logical parameter of a device type:
// which API carries it, where in the payload it lives, and how to coerce
// values for it.
type ParameterDescriptor struct {
	Type        ParamType `yaml:"type" json:"type"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	ReadOnly    bool      `yaml:"read_only" json:"read_only"`

	// API is the carrying API within the same definition: a REST sub-path
	// for Gen1, an RPC method for Gen2+. A Gen2 write descriptor names the
	// Setter; the engine derives the Getter for reads.
	API string `yaml:"api" json:"api"`

	// ParameterPath is the dotted/indexed path into the API's payload,
	// e.g. "mqtt.enable", "switch:0.in_mode", "valves[0].state".
	ParameterPath string `yaml:"parameter_path" json:"parameter_path"`

	// QueryKey overrides the Gen1 query parameter name; when empty the last
	// path segment is used.
	QueryKey string `yaml:"query_key,omitempty" json:"query_key,omitempty"`

	// Component is the Gen2 component hint: the key under the config object
	// ("device", "sta", ...) or an indexed component ("switch:0").
	Component string `yaml:"component,omitempty" json:"component,omitempty"`

	Min        *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	EnumValues []string `yaml:"enum_values,omitempty" json:"enum_values,omitempty"`
	Unit       string   `yaml:"unit,omitempty" json:"unit,omitempty"`
	Default    any      `yaml:"default,omitempty" json:"default,omitempty"`

	RequiresRestart bool `yaml:"requires_restart,omitempty" json:"requires_restart,omitempty"`
}

// Definition is the capability definition for one device type.
//
// The same definition may serve synonymous SKUs via TypeMappings. On disk a
// definition lives at config/device_capabilities/<SKU>.yaml.
type Definition struct {
	DeviceType   string            `yaml:"device_type" json:"device_type"`
	Name         string            `yaml:"name,omitempty" json:"name,omitempty"`
	Generation   device.Generation `yaml:"generation" json:"generation"`
	TypeMappings []string          `yaml:"type_mappings,omitempty" json:"type_mappings,omitempty"`

	APIs       map[string]APIDefinition       `yaml:"apis,omitempty" json:"apis,omitempty"`
	Parameters map[string]ParameterDescriptor `yaml:"parameters,omitempty" json:"parameters,omitempty"`

	// GeneratedAt is normalised away when comparing refresh output for
	// idempotence.
	GeneratedAt time.Time `yaml:"generated_at,omitempty" json:"generated_at,omitempty"`

	// HandEdited guards the file against being overwritten by refresh
	// unless force is requested.
	HandEdited bool `yaml:"hand_edited,omitempty" json:"hand_edited,omitempty"`
}

// FileName returns the on-disk filename for this definition.
func (d *Definition) FileName() string {
	return sanitizeFileSegment(d.DeviceType) + ".yaml"
}

// HasAPI reports whether the definition declares the named API.
func (d *Definition) HasAPI(name string) bool {
	_, ok := d.APIs[name]
	return ok
}

// HasParameter reports whether the definition declares the named parameter.
func (d *Definition) HasParameter(name string) bool {
	_, ok := d.Parameters[name]
	return ok
}

// Parameter returns the descriptor for a logical parameter name.
func (d *Definition) Parameter(name string) (ParameterDescriptor, bool) {
	desc, ok := d.Parameters[name]
	return desc, ok
}

// Validate checks definition invariants: every parameter's API must be a key
// in the same definition's APIs, or the known Setter counterpart of one.
func (d *Definition) Validate() error {
	if d.DeviceType == "" {
		return fmt.Errorf("%w: missing device_type", ErrInvalidDefinition)
	}
	for name, param := range d.Parameters {
		if param.API == "" {
			return fmt.Errorf("%w: parameter %q has no api", ErrInvalidDefinition, name)
		}
		if d.HasAPI(param.API) {
			continue
		}
		// A writer whose Getter was observed is acceptable: the
		// Shelly.GetConfig reader implies a Shelly.SetConfig writer.
		if getter, ok := GetterForSetter(param.API); ok && d.HasAPI(getter) {
			continue
		}
		return fmt.Errorf("%w: parameter %q references unknown api %q", ErrInvalidDefinition, name, param.API)
	}
	return nil
}

// rpcConfigComponents are the Gen2+ components with GetConfig/SetConfig
// method pairs the engine knows how to pivot between.
var rpcConfigComponents = []string{
	"Shelly", "Sys", "WiFi", "Eth", "BLE", "Cloud", "MQTT", "WS",
	"Switch", "Light", "Cover", "Input", "Script", "Schedule", "Webhook",
	"Temperature", "Humidity", "Devicepower", "Smoke", "Matter",
}

// setterForGetter maps each known reader method to its writer counterpart.
var setterForGetter = buildMethodTable(".GetConfig", ".SetConfig")

// getterForSetter maps each known writer method to its reader counterpart.
var getterForSetter = buildMethodTable(".SetConfig", ".GetConfig")

func buildMethodTable(from, to string) map[string]string {
	table := make(map[string]string, len(rpcConfigComponents))
	for _, component := range rpcConfigComponents {
		table[component+from] = component + to
	}
	return table
}

// SetterForGetter returns the SetConfig counterpart of a known GetConfig
// method.
func SetterForGetter(method string) (string, bool) {
	m, ok := setterForGetter[method]
	return m, ok
}

// GetterForSetter returns the GetConfig counterpart of a known SetConfig
// method.
func GetterForSetter(method string) (string, bool) {
	m, ok := getterForSetter[method]
	return m, ok
}

// sanitizeFileSegment replaces characters that are unsafe in filenames with
// underscores.
func sanitizeFileSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
