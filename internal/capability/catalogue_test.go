package capability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

func newTestCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	dir := t.TempDir()
	mapping, err := LoadMapping(filepath.Join(dir, "parameter_mappings.yaml"))
	if err != nil {
		t.Fatalf("LoadMapping() error: %v", err)
	}
	types, err := LoadTypeTable(filepath.Join(dir, "device_types.yaml"))
	if err != nil {
		t.Fatalf("LoadTypeTable() error: %v", err)
	}
	return NewCatalogue(filepath.Join(dir, "capabilities"), mapping, types)
}

func plugDefinition() *Definition {
	return &Definition{
		DeviceType:   "SHPLG-S",
		Name:         "Shelly Plug S",
		Generation:   device.Gen1,
		TypeMappings: []string{"SHPLG-1", "SHPLG2-1"},
		APIs: map[string]APIDefinition{
			"settings": {Description: "Device configuration"},
			"status":   {Description: "Runtime status"},
		},
		Parameters: map[string]ParameterDescriptor{
			"eco_mode": {
				Type:          TypeBoolean,
				API:           "settings",
				ParameterPath: "eco_mode_enabled",
				QueryKey:      "eco_mode_enabled",
			},
			"uptime": {
				Type:          TypeInteger,
				ReadOnly:      true,
				API:           "status",
				ParameterPath: "uptime",
			},
		},
	}
}

func TestCatalogue_SaveAndGet(t *testing.T) {
	c := newTestCatalogue(t)

	if err := c.Save(plugDefinition(), false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	def, err := c.Get("SHPLG-S")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !def.HasParameter("eco_mode") {
		t.Error("expected eco_mode parameter")
	}
}

func TestCatalogue_GetFallsThroughSynonyms(t *testing.T) {
	c := newTestCatalogue(t)
	if err := c.Save(plugDefinition(), false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	def, err := c.Get("SHPLG-1")
	if err != nil {
		t.Fatalf("Get() via synonym error: %v", err)
	}
	if def.DeviceType != "SHPLG-S" {
		t.Errorf("expected primary definition, got %q", def.DeviceType)
	}

	if _, err := c.Get("UNKNOWN-SKU"); !errors.Is(err, ErrDefinitionNotFound) {
		t.Errorf("expected ErrDefinitionNotFound, got %v", err)
	}
}

func TestCatalogue_ResolveFallsBackToGenerationBase(t *testing.T) {
	c := newTestCatalogue(t)

	base := plugDefinition()
	base.DeviceType = "gen1-base"
	base.TypeMappings = nil
	if err := c.Save(base, false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	d := &device.Device{ID: "AABBCCDDEEFF", DeviceType: "SHSW-44", Generation: device.Gen1}
	def, err := c.Resolve(d)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if def.DeviceType != "gen1-base" {
		t.Errorf("expected generation base fallback, got %q", def.DeviceType)
	}
}

func TestCatalogue_LoadRoundTrip(t *testing.T) {
	c := newTestCatalogue(t)
	if err := c.Save(plugDefinition(), false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// A second catalogue over the same directory sees the same content.
	reloaded := NewCatalogue(c.Dir(), c.Mapping(), c.Types())
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !reloaded.HasParameter("SHPLG-S", "eco_mode") {
		t.Error("expected eco_mode after reload")
	}
	desc, ok := reloaded.ParameterDetails("SHPLG-S", "eco_mode")
	if !ok {
		t.Fatal("expected parameter details")
	}
	if desc.ParameterPath != "eco_mode_enabled" {
		t.Errorf("round-trip lost parameter path: %q", desc.ParameterPath)
	}
}

func TestCatalogue_HandEditedGuard(t *testing.T) {
	c := newTestCatalogue(t)

	edited := plugDefinition()
	edited.HandEdited = true
	if err := c.Save(edited, false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	fresh := plugDefinition()
	err := c.Save(fresh, false)
	if !errors.Is(err, ErrHandEdited) {
		t.Fatalf("expected ErrHandEdited, got %v", err)
	}

	// force=true bypasses the guard.
	if err := c.Save(fresh, true); err != nil {
		t.Errorf("Save(force) error: %v", err)
	}
}

func TestCatalogue_DevicesSupporting(t *testing.T) {
	c := newTestCatalogue(t)
	if err := c.Save(plugDefinition(), false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	types := c.DevicesSupporting("eco_mode")

	var haveSKU, haveGen1, haveGen2 bool
	for _, typ := range types {
		switch typ {
		case "SHPLG-S":
			haveSKU = true
		case "any-gen1":
			haveGen1 = true
		case "any-gen2+":
			haveGen2 = true
		}
	}
	if !haveSKU {
		t.Error("expected SKU-specific support")
	}
	if !haveGen1 || !haveGen2 {
		t.Errorf("expected mapping-table support markers, got %v", types)
	}
}

func TestCatalogue_StandardizeDryRun(t *testing.T) {
	c := newTestCatalogue(t)

	legacy := plugDefinition()
	delete(legacy.Parameters, "eco_mode")
	legacy.Parameters["eco_mode_enabled"] = ParameterDescriptor{
		Type:          TypeBoolean,
		API:           "settings",
		ParameterPath: "eco_mode_enabled",
	}
	if err := c.Save(legacy, false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	diffs, err := c.Standardize(true)
	if err != nil {
		t.Fatalf("Standardize(dryRun) error: %v", err)
	}
	if len(diffs) != 1 || diffs[0].From != "eco_mode_enabled" || diffs[0].To != "eco_mode" {
		t.Fatalf("unexpected diffs: %+v", diffs)
	}

	// Dry run must not modify the catalogue.
	if !c.HasParameter("SHPLG-S", "eco_mode_enabled") {
		t.Error("dry run mutated the catalogue")
	}
}

func TestCatalogue_StandardizeApplies(t *testing.T) {
	c := newTestCatalogue(t)

	legacy := plugDefinition()
	delete(legacy.Parameters, "eco_mode")
	legacy.Parameters["eco_mode_enabled"] = ParameterDescriptor{
		Type:          TypeBoolean,
		API:           "settings",
		ParameterPath: "eco_mode_enabled",
	}
	if err := c.Save(legacy, false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if _, err := c.Standardize(false); err != nil {
		t.Fatalf("Standardize() error: %v", err)
	}

	if !c.HasParameter("SHPLG-S", "eco_mode") {
		t.Error("expected canonical name after standardise")
	}
	if c.HasParameter("SHPLG-S", "eco_mode_enabled") {
		t.Error("expected legacy name removed after standardise")
	}
}

func TestCatalogue_Refresh(t *testing.T) {
	c := newTestCatalogue(t)

	stale := plugDefinition()
	if err := c.Save(stale, false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	devices := []device.Device{
		{ID: "E868E7EA6333", DeviceType: "SHPLG-S", Generation: device.Gen1, IPAddress: "192.168.1.100"},
		{ID: "AABBCCDDEE02", DeviceType: "SHPLG-S", Generation: device.Gen1, IPAddress: "192.168.1.101"},
	}

	var discovered int
	err := c.Refresh(context.Background(), devices, RefreshOptions{},
		func(_ context.Context, d *device.Device) (*Definition, error) {
			discovered++
			fresh := plugDefinition()
			fresh.Parameters["max_power"] = ParameterDescriptor{
				Type:          TypeFloat,
				API:           "settings",
				ParameterPath: "max_power",
			}
			return fresh, nil
		})
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	// One representative device per type.
	if discovered != 1 {
		t.Errorf("expected 1 discovery for 2 same-type devices, got %d", discovered)
	}
	if !c.HasParameter("SHPLG-S", "max_power") {
		t.Error("expected refreshed definition in the catalogue")
	}
}

func TestCatalogue_RefreshFailureKeepsExisting(t *testing.T) {
	c := newTestCatalogue(t)

	existing := plugDefinition()
	existing.HandEdited = true
	if err := c.Save(existing, false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	devices := []device.Device{
		{ID: "E868E7EA6333", DeviceType: "SHPLG-S", Generation: device.Gen1, IPAddress: "192.168.1.100"},
	}

	err := c.Refresh(context.Background(), devices, RefreshOptions{},
		func(_ context.Context, _ *device.Device) (*Definition, error) {
			return nil, errors.New("device went away")
		})
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	// The hand-edited file survived the failed refresh.
	if !c.HasParameter("SHPLG-S", "eco_mode") {
		t.Error("expected existing definition retained after failed discovery")
	}
}

func TestTypeTable_GenerationFor(t *testing.T) {
	table, err := LoadTypeTable(filepath.Join(t.TempDir(), "device_types.yaml"))
	if err != nil {
		t.Fatalf("LoadTypeTable() error: %v", err)
	}

	tests := []struct {
		sku  string
		want device.Generation
	}{
		{sku: "SHPLG-S", want: device.Gen1},
		{sku: "SHSW-25", want: device.Gen1},
		{sku: "SHSW-99", want: device.Gen1}, // prefix match
		{sku: "Plus1PM", want: device.Gen2},
		{sku: "SNSW-001X16EU", want: device.Gen2},
		{sku: "SPEM-003CEBEU", want: device.Gen2},
		{sku: "S3SW-001X8EU", want: device.Gen3},
		{sku: "S4SW-001X16EU", want: device.Gen4},
		{sku: "TOTALLY-UNKNOWN", want: device.GenerationUnknown},
	}

	for _, tt := range tests {
		if got := table.GenerationFor(tt.sku); got != tt.want {
			t.Errorf("GenerationFor(%q) = %s, want %s", tt.sku, got, tt.want)
		}
	}
}

func TestWriteDefaultTypeTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "device_types.yaml")

	if err := WriteDefaultTypeTable(path); err != nil {
		t.Fatalf("WriteDefaultTypeTable() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file written: %v", err)
	}

	// Writing again is a no-op, not an overwrite.
	if err := WriteDefaultTypeTable(path); err != nil {
		t.Errorf("second WriteDefaultTypeTable() error: %v", err)
	}
}
