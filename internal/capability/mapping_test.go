package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

func TestLoadMapping_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "parameter_mappings.yaml")

	m, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping() error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file to be created: %v", err)
	}

	if m.ToCanonical("eco_mode_enabled") != "eco_mode" {
		t.Error("expected default alias eco_mode_enabled → eco_mode")
	}
	if m.ToGen1("eco_mode") != "eco_mode_enabled" {
		t.Error("expected reverse alias eco_mode → eco_mode_enabled")
	}
	if m.ToCanonical("led_power_disable") != "led_power_disable" {
		t.Error("expected identity alias to stay")
	}
}

func TestLoadMapping_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	content := `
aliases:
  custom_legacy: custom
parameters:
  custom:
    type: integer
    gen1:
      endpoint: settings
      property: custom_legacy
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	m, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping() error: %v", err)
	}

	if m.ToCanonical("custom_legacy") != "custom" {
		t.Error("expected custom alias to load")
	}
	if _, ok := m.Entry("eco_mode"); ok {
		t.Error("expected defaults NOT to merge into an existing file")
	}
}

func TestMapping_Descriptor_Gen1(t *testing.T) {
	m, err := LoadMapping(filepath.Join(t.TempDir(), "mappings.yaml"))
	if err != nil {
		t.Fatalf("LoadMapping() error: %v", err)
	}

	desc, ok := m.Descriptor("eco_mode", device.Gen1)
	if !ok {
		t.Fatal("expected gen1 descriptor for eco_mode")
	}
	if desc.API != "settings" {
		t.Errorf("expected api settings, got %q", desc.API)
	}
	if desc.ParameterPath != "eco_mode_enabled" {
		t.Errorf("expected legacy path eco_mode_enabled, got %q", desc.ParameterPath)
	}
	if desc.QueryKey != "eco_mode_enabled" {
		t.Errorf("expected legacy query key, got %q", desc.QueryKey)
	}
	if desc.Type != TypeBoolean {
		t.Errorf("expected boolean type, got %q", desc.Type)
	}
}

func TestMapping_Descriptor_Gen2Plus(t *testing.T) {
	m, err := LoadMapping(filepath.Join(t.TempDir(), "mappings.yaml"))
	if err != nil {
		t.Fatalf("LoadMapping() error: %v", err)
	}

	for _, gen := range []device.Generation{device.Gen2, device.Gen3, device.Gen4} {
		desc, ok := m.Descriptor("eco_mode", gen)
		if !ok {
			t.Fatalf("expected %s descriptor for eco_mode", gen)
		}
		if desc.API != "Sys.SetConfig" {
			t.Errorf("expected api Sys.SetConfig, got %q", desc.API)
		}
		if desc.Component != "device" {
			t.Errorf("expected component device, got %q", desc.Component)
		}
		if desc.ParameterPath != "eco_mode" {
			t.Errorf("expected remainder path eco_mode, got %q", desc.ParameterPath)
		}
	}
}

func TestMapping_Descriptor_MissingBranch(t *testing.T) {
	m, err := LoadMapping(filepath.Join(t.TempDir(), "mappings.yaml"))
	if err != nil {
		t.Fatalf("LoadMapping() error: %v", err)
	}

	// led_power_disable has no gen2 branch in the defaults.
	if _, ok := m.Descriptor("led_power_disable", device.Gen2); ok {
		t.Error("expected no gen2 descriptor for led_power_disable")
	}
	if _, ok := m.Descriptor("led_power_disable", device.Gen1); !ok {
		t.Error("expected gen1 descriptor for led_power_disable")
	}

	if _, ok := m.Descriptor("nope", device.Gen1); ok {
		t.Error("expected no descriptor for unknown name")
	}
}

func TestGetterSetterTables(t *testing.T) {
	setter, ok := SetterForGetter("Sys.GetConfig")
	if !ok || setter != "Sys.SetConfig" {
		t.Errorf("SetterForGetter(Sys.GetConfig) = %q, %v", setter, ok)
	}

	getter, ok := GetterForSetter("Switch.SetConfig")
	if !ok || getter != "Switch.GetConfig" {
		t.Errorf("GetterForSetter(Switch.SetConfig) = %q, %v", getter, ok)
	}

	if _, ok := GetterForSetter("Bogus.SetConfig"); ok {
		t.Error("expected unknown component to miss the table")
	}
}
