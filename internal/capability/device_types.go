package capability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// TypeInfo is static knowledge about one SKU: generation, feature flags and
// default limits. Consulted only for classification hints; the capability
// definition is the authoritative parameter source.
type TypeInfo struct {
	Name       string            `yaml:"name,omitempty" json:"name,omitempty"`
	Generation device.Generation `yaml:"generation" json:"generation"`
	MaxPower   *float64          `yaml:"max_power,omitempty" json:"max_power,omitempty"`
	NumOutputs *int              `yaml:"num_outputs,omitempty" json:"num_outputs,omitempty"`
	Features   []string          `yaml:"features,omitempty" json:"features,omitempty"`
}

// typeTableFile is the YAML shape of config/device_types.yaml.
type typeTableFile struct {
	Gen1Prefixes []string            `yaml:"gen1_prefixes"`
	Gen2Prefixes []string            `yaml:"gen2_prefixes"`
	Gen3Prefixes []string            `yaml:"gen3_prefixes"`
	Gen4Prefixes []string            `yaml:"gen4_prefixes"`
	Types        map[string]TypeInfo `yaml:"types"`
}

// TypeTable holds the static per-SKU knowledge and the generation prefix
// rules used to classify probe responses. Read-only after load.
type TypeTable struct {
	gen1Prefixes []string
	gen2Prefixes []string
	gen3Prefixes []string
	gen4Prefixes []string
	types        map[string]TypeInfo
}

// LoadTypeTable reads the type table from path, falling back to the built-in
// table when the file does not exist.
func LoadTypeTable(path string) (*TypeTable, error) {
	file := defaultTypeTable()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing device types file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading device types file: %w", err)
	}

	table := &TypeTable{
		gen1Prefixes: file.Gen1Prefixes,
		gen2Prefixes: file.Gen2Prefixes,
		gen3Prefixes: file.Gen3Prefixes,
		gen4Prefixes: file.Gen4Prefixes,
		types:        file.Types,
	}
	if table.types == nil {
		table.types = make(map[string]TypeInfo)
	}
	return table, nil
}

// WriteDefaultTypeTable writes the built-in table to path when no file
// exists yet, so operators have something to edit.
func WriteDefaultTypeTable(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(defaultTypeTable())
	if err != nil {
		return fmt.Errorf("encoding default type table: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing default type table: %w", err)
	}
	return nil
}

// defaultTypeTable is the built-in SKU knowledge, assembled from observed
// fleets. Not exhaustive; unknown SKUs still classify via prefixes.
func defaultTypeTable() typeTableFile {
	maxPower := func(w float64) *float64 { return &w }
	outputs := func(n int) *int { return &n }

	return typeTableFile{
		Gen1Prefixes: []string{"SHSW-", "SHPLG", "SHDM-", "SHRGBW", "SHIX3", "SHBTN", "SHHT-", "SHWT-", "SHEM", "SHUNI", "SHGS-", "SHDW-", "SHMOS", "SHBDUO", "SHVIN", "SHCB-", "SH2LED", "SHAIR", "SHSEN", "SHSM-", "SHTRV"},
		Gen2Prefixes: []string{"SNSW", "SNPL", "SNDM", "SNSN", "SNGW", "SPSW", "SPEM", "SPDM", "SPSH", "SPCC", "SPDC"},
		Gen3Prefixes: []string{"S3SW", "S3PL", "S3DM", "S3SN", "S3EM", "S3GW", "S3MX", "S3"},
		Gen4Prefixes: []string{"S4SW", "S4PL", "S4DM", "S4SN", "S4EM", "S4"},
		Types: map[string]TypeInfo{
			"SHPLG-S": {
				Name:       "Shelly Plug S",
				Generation: device.Gen1,
				MaxPower:   maxPower(2500),
				NumOutputs: outputs(1),
				Features:   []string{"relay", "meter"},
			},
			"SHSW-1": {
				Name:       "Shelly 1",
				Generation: device.Gen1,
				NumOutputs: outputs(1),
				Features:   []string{"relay"},
			},
			"SHSW-25": {
				Name:       "Shelly 2.5",
				Generation: device.Gen1,
				MaxPower:   maxPower(2300),
				NumOutputs: outputs(2),
				Features:   []string{"relay", "roller", "meter"},
			},
			"SHDM-2": {
				Name:       "Shelly Dimmer 2",
				Generation: device.Gen1,
				NumOutputs: outputs(1),
				Features:   []string{"light", "meter"},
			},
			"SHRGBW2": {
				Name:       "Shelly RGBW2",
				Generation: device.Gen1,
				NumOutputs: outputs(4),
				Features:   []string{"light", "color"},
			},
			"Plus1": {
				Name:       "Shelly Plus 1",
				Generation: device.Gen2,
				NumOutputs: outputs(1),
				Features:   []string{"switch"},
			},
			"Plus1PM": {
				Name:       "Shelly Plus 1PM",
				Generation: device.Gen2,
				MaxPower:   maxPower(3500),
				NumOutputs: outputs(1),
				Features:   []string{"switch", "meter"},
			},
			"Plus2PM": {
				Name:       "Shelly Plus 2PM",
				Generation: device.Gen2,
				MaxPower:   maxPower(3500),
				NumOutputs: outputs(2),
				Features:   []string{"switch", "cover", "meter"},
			},
			"PlusPlugS": {
				Name:       "Shelly Plus Plug S",
				Generation: device.Gen2,
				MaxPower:   maxPower(2500),
				NumOutputs: outputs(1),
				Features:   []string{"switch", "meter"},
			},
			"Pro4PM": {
				Name:       "Shelly Pro 4PM",
				Generation: device.Gen2,
				MaxPower:   maxPower(3680),
				NumOutputs: outputs(4),
				Features:   []string{"switch", "meter"},
			},
			"Mini1PMG3": {
				Name:       "Shelly 1PM Mini Gen3",
				Generation: device.Gen3,
				MaxPower:   maxPower(1840),
				NumOutputs: outputs(1),
				Features:   []string{"switch", "meter"},
			},
			"SNSW-001X16EU": {
				Name:       "Shelly Plus 1 (X16)",
				Generation: device.Gen2,
				NumOutputs: outputs(1),
				Features:   []string{"switch"},
			},
		},
	}
}

// Info returns the static knowledge for a SKU.
func (t *TypeTable) Info(sku string) (TypeInfo, bool) {
	info, ok := t.types[sku]
	return info, ok
}

// GenerationFor classifies a SKU string: exact table entry first, then
// prefix rules. Returns GenerationUnknown when nothing matches.
func (t *TypeTable) GenerationFor(sku string) device.Generation {
	if info, ok := t.types[sku]; ok {
		return info.Generation
	}
	upper := strings.ToUpper(sku)
	for _, p := range t.gen4Prefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return device.Gen4
		}
	}
	for _, p := range t.gen3Prefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return device.Gen3
		}
	}
	for _, p := range t.gen2Prefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return device.Gen2
		}
	}
	for _, p := range t.gen1Prefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return device.Gen1
		}
	}
	return device.GenerationUnknown
}

// KnownGen1 reports whether a type string matches a known Gen1 SKU or
// prefix.
func (t *TypeTable) KnownGen1(sku string) bool {
	return t.GenerationFor(sku) == device.Gen1
}
