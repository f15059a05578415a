package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestYAMLRepository_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	repo := NewYAMLRepository(dir)
	ctx := context.Background()

	d := testDevice("E868E7EA6333")
	d.Name = "kitchen-plug"
	d.FirmwareVersion = "1.11.0"
	d.RawInfo = map[string]any{"type": "SHPLG-S", "auth": false}

	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// Filename encodes type and MAC.
	expected := filepath.Join(dir, "SHPLG-S_E868E7EA6333.yaml")
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("expected device file at %s: %v", expected, err)
	}

	devices, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}

	got := devices[0]
	if got.ID != "E868E7EA6333" || got.Name != "kitchen-plug" || got.FirmwareVersion != "1.11.0" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.RawInfo["type"] != "SHPLG-S" {
		t.Errorf("raw_info not restored: %v", got.RawInfo)
	}
}

func TestYAMLRepository_LoadMissingDirIsEmpty(t *testing.T) {
	repo := NewYAMLRepository(filepath.Join(t.TempDir(), "nope"))

	devices, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected no devices, got %d", len(devices))
	}
}

func TestYAMLRepository_DuplicateMACNewestWins(t *testing.T) {
	dir := t.TempDir()
	repo := NewYAMLRepository(dir)
	ctx := context.Background()

	// Write two files for the same MAC directly, bypassing Save's cleanup.
	old := testDevice("E868E7EA6333")
	old.Name = "old"
	newer := testDevice("E868E7EA6333")
	newer.Name = "newer"

	writeDeviceFile(t, dir, "SHSW-1_E868E7EA6333.yaml", old)
	time.Sleep(10 * time.Millisecond)
	writeDeviceFile(t, dir, "SHPLG-S_E868E7EA6333.yaml", newer)

	devices, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected deduplicated load, got %d devices", len(devices))
	}
	if devices[0].Name != "newer" {
		t.Errorf("expected most recently modified file to win, got %q", devices[0].Name)
	}
}

func TestYAMLRepository_SaveRemovesStaleTypeFile(t *testing.T) {
	dir := t.TempDir()
	repo := NewYAMLRepository(dir)
	ctx := context.Background()

	unknown := testDevice("E868E7EA6333")
	unknown.DeviceType = ""
	if err := repo.Save(ctx, unknown); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	classified := testDevice("E868E7EA6333")
	if err := repo.Save(ctx, classified); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected exactly one file after reclassification, got %v", names)
	}
	if entries[0].Name() != "SHPLG-S_E868E7EA6333.yaml" {
		t.Errorf("unexpected file %q", entries[0].Name())
	}
}

func TestYAMLRepository_MalformedFileSkipped(t *testing.T) {
	dir := t.TempDir()
	repo := NewYAMLRepository(dir)

	if err := os.WriteFile(filepath.Join(dir, "broken_FFFFFFFFFFFF.yaml"), []byte("{not yaml"), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	writeDeviceFile(t, dir, "SHPLG-S_E868E7EA6333.yaml", testDevice("E868E7EA6333"))

	devices, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected malformed file skipped, got %d devices", len(devices))
	}
}

func TestYAMLRepository_Delete(t *testing.T) {
	dir := t.TempDir()
	repo := NewYAMLRepository(dir)
	ctx := context.Background()

	d := testDevice("E868E7EA6333")
	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := repo.Delete(ctx, d); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	devices, _ := repo.Load(ctx)
	if len(devices) != 0 {
		t.Errorf("expected empty repository after delete, got %d", len(devices))
	}

	// Deleting again is not an error.
	if err := repo.Delete(ctx, d); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "e8:68:e7:ea:63:33", want: "E868E7EA6333"},
		{input: "E868E7EA6333", want: "E868E7EA6333"},
		{input: "e8-68-e7-ea-63-33", want: "E868E7EA6333"},
		{input: "e868.e7ea.6333", want: "E868E7EA6333"},
		{input: "E868E7EA63", wantErr: true},
		{input: "E868E7EA6333FF", wantErr: true},
		{input: "GGGGGGGGGGGG", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeMAC(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeMAC(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// writeDeviceFile marshals a device to a named file without Save's stale-file
// cleanup, for constructing duplicate scenarios.
func writeDeviceFile(t *testing.T, dir, name string, d *Device) {
	t.Helper()
	repo := NewYAMLRepository(t.TempDir())
	if err := repo.Save(context.Background(), d); err != nil {
		t.Fatalf("encoding helper save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(repo.Dir(), d.FileName()))
	if err != nil {
		t.Fatalf("reading helper file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
}
