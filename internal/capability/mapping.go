package capability

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// Gen1Access locates a canonical parameter on a Gen1 device.
type Gen1Access struct {
	// Endpoint is the REST sub-path carrying the parameter ("settings",
	// "settings/relay/0").
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Property is the legacy field name within the endpoint's payload, also
	// used as the write query key ("eco_mode_enabled").
	Property string `yaml:"property" json:"property"`
}

// Gen2Access locates a canonical parameter on a Gen2+ device.
type Gen2Access struct {
	// Method is the SetConfig method carrying the parameter.
	Method string `yaml:"method" json:"method"`

	// Component is the config object key the property nests under
	// ("device", "sta", "switch:0"); empty nests directly under config.
	Component string `yaml:"component,omitempty" json:"component,omitempty"`

	// Property is the field name within the component's config.
	Property string `yaml:"property" json:"property"`
}

// MappingEntry is one canonical parameter in the process-wide table, with
// its per-generation access.
type MappingEntry struct {
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Type        ParamType   `yaml:"type" json:"type"`
	Gen1        *Gen1Access `yaml:"gen1,omitempty" json:"gen1,omitempty"`
	Gen2        *Gen2Access `yaml:"gen2,omitempty" json:"gen2,omitempty"`
}

// mappingFile is the YAML shape of config/parameter_mappings.yaml.
type mappingFile struct {
	// Aliases translate legacy Gen1 field names to the canonical logical
	// name (eco_mode_enabled → eco_mode).
	Aliases map[string]string `yaml:"aliases"`

	// Parameters carry per-generation access for each canonical name.
	Parameters map[string]MappingEntry `yaml:"parameters"`
}

// Mapping is the process-wide, editable parameter mapping table.
//
// The engine consults it when a device's capability definition does not
// declare a parameter, so common parameters work on unknown SKUs of a known
// generation. All methods are safe for concurrent use.
type Mapping struct {
	mu       sync.RWMutex
	aliases  map[string]string // legacy gen1 name → canonical
	reverse  map[string]string // canonical → legacy gen1 name
	entries  map[string]MappingEntry
	filePath string
}

// LoadMapping reads the mapping table from path, creating the default file
// first when it does not exist.
func LoadMapping(path string) (*Mapping, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultMappings(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameter mappings: %w", err)
	}

	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing parameter mappings: %w", err)
	}

	m := &Mapping{
		aliases:  file.Aliases,
		reverse:  make(map[string]string, len(file.Aliases)),
		entries:  file.Parameters,
		filePath: path,
	}
	if m.aliases == nil {
		m.aliases = make(map[string]string)
	}
	if m.entries == nil {
		m.entries = make(map[string]MappingEntry)
	}
	for legacy, canonical := range m.aliases {
		m.reverse[canonical] = legacy
	}

	return m, nil
}

// defaultMappings is the table shipped when no file exists yet. It covers
// the parameters observed on every generation in practice.
func defaultMappings() mappingFile {
	return mappingFile{
		Aliases: map[string]string{
			"eco_mode_enabled":  "eco_mode",
			"led_power_disable": "led_power_disable",
			"max_power":         "max_power",
		},
		Parameters: map[string]MappingEntry{
			"eco_mode": {
				Description: "Reduced power consumption mode",
				Type:        TypeBoolean,
				Gen1:        &Gen1Access{Endpoint: "settings", Property: "eco_mode_enabled"},
				Gen2:        &Gen2Access{Method: "Sys.SetConfig", Component: "device", Property: "eco_mode"},
			},
			"name": {
				Description: "User-visible device name",
				Type:        TypeString,
				Gen1:        &Gen1Access{Endpoint: "settings", Property: "name"},
				Gen2:        &Gen2Access{Method: "Sys.SetConfig", Component: "device", Property: "name"},
			},
			"max_power": {
				Description: "Overpower threshold in watts",
				Type:        TypeFloat,
				Gen1:        &Gen1Access{Endpoint: "settings", Property: "max_power"},
				Gen2:        &Gen2Access{Method: "Switch.SetConfig", Component: "switch:0", Property: "power_limit"},
			},
			"led_power_disable": {
				Description: "Disable the power status LED",
				Type:        TypeBoolean,
				Gen1:        &Gen1Access{Endpoint: "settings", Property: "led_power_disable"},
			},
			"mqtt.enable": {
				Description: "Enable the device MQTT client",
				Type:        TypeBoolean,
				Gen1:        &Gen1Access{Endpoint: "settings", Property: "mqtt_enable"},
				Gen2:        &Gen2Access{Method: "MQTT.SetConfig", Property: "enable"},
			},
			"mqtt.server": {
				Description: "MQTT broker host:port",
				Type:        TypeString,
				Gen1:        &Gen1Access{Endpoint: "settings", Property: "mqtt_server"},
				Gen2:        &Gen2Access{Method: "MQTT.SetConfig", Property: "server"},
			},
			"wifi.ssid": {
				Description: "Station SSID",
				Type:        TypeString,
				Gen1:        &Gen1Access{Endpoint: "settings/sta", Property: "ssid"},
				Gen2:        &Gen2Access{Method: "WiFi.SetConfig", Component: "sta", Property: "ssid"},
			},
		},
	}
}

// writeDefaultMappings creates the default mapping file at path.
func writeDefaultMappings(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating mappings directory: %w", err)
	}

	data, err := yaml.Marshal(defaultMappings())
	if err != nil {
		return fmt.Errorf("encoding default mappings: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing default mappings: %w", err)
	}
	return nil
}

// ToCanonical translates a legacy Gen1 field name to its canonical logical
// name, or returns the input unchanged when no alias exists.
func (m *Mapping) ToCanonical(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if canonical, ok := m.aliases[name]; ok {
		return canonical
	}
	return name
}

// ToGen1 translates a canonical name back to the legacy Gen1 field name, or
// returns the input unchanged.
func (m *Mapping) ToGen1(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if legacy, ok := m.reverse[name]; ok {
		return legacy
	}
	return name
}

// Entry returns the mapping entry for a canonical name.
func (m *Mapping) Entry(name string) (MappingEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[name]
	return entry, ok
}

// Names returns all canonical names in the table, sorted.
func (m *Mapping) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns a copy of the legacy-to-canonical alias table.
func (m *Mapping) Aliases() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.aliases))
	for k, v := range m.aliases {
		out[k] = v
	}
	return out
}

// Descriptor synthesises an ad-hoc parameter descriptor for a canonical name
// on the given generation. Returns false when the table has no entry, or the
// entry has no branch for the generation.
func (m *Mapping) Descriptor(name string, gen device.Generation) (ParameterDescriptor, bool) {
	entry, ok := m.Entry(name)
	if !ok {
		return ParameterDescriptor{}, false
	}

	if gen == device.Gen1 {
		if entry.Gen1 == nil {
			return ParameterDescriptor{}, false
		}
		return ParameterDescriptor{
			Type:          entry.Type,
			Description:   entry.Description,
			API:           entry.Gen1.Endpoint,
			ParameterPath: entry.Gen1.Property,
			QueryKey:      entry.Gen1.Property,
		}, true
	}

	if gen.IsGen2Plus() {
		if entry.Gen2 == nil {
			return ParameterDescriptor{}, false
		}
		// ParameterPath is the remainder below the component; the engine
		// descends Component first.
		return ParameterDescriptor{
			Type:          entry.Type,
			Description:   entry.Description,
			API:           entry.Gen2.Method,
			Component:     entry.Gen2.Component,
			ParameterPath: entry.Gen2.Property,
		}, true
	}

	return ParameterDescriptor{}, false
}
