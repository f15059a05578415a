package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// dirPermissions is the permission mode for the devices directory.
const dirPermissions = 0750

// filePermissions is the permission mode for persisted device files.
const filePermissions = 0600

// Repository defines persistence for device records.
type Repository interface {
	// Load returns all persisted devices, deduplicated by MAC.
	Load(ctx context.Context) ([]Device, error)

	// Save persists one device, replacing any previous file for the same MAC.
	Save(ctx context.Context, d *Device) error

	// Delete removes the persisted file for a device.
	Delete(ctx context.Context, d *Device) error
}

// YAMLRepository persists devices as one YAML file per device
// (<device_type>_<MAC>.yaml) in a configured directory. Writes are atomic:
// the file is written to a temp name and renamed into place.
type YAMLRepository struct {
	dir    string
	logger Logger
}

// NewYAMLRepository creates a repository rooted at dir.
// The directory is created on first write if it does not exist.
func NewYAMLRepository(dir string) *YAMLRepository {
	return &YAMLRepository{
		dir:    dir,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the repository.
func (r *YAMLRepository) SetLogger(logger Logger) {
	r.logger = logger
}

// Dir returns the repository's data directory.
func (r *YAMLRepository) Dir() string {
	return r.dir
}

// Load reads every device file in the directory.
//
// Duplicate files for the same MAC are a warning, not an error; the most
// recently modified file wins. Files that fail to parse are skipped with a
// warning so one corrupt file cannot take the fleet down.
func (r *YAMLRepository) Load(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading devices directory: %w", err)
	}

	type candidate struct {
		device  Device
		modTime time.Time
		file    string
	}
	byMAC := make(map[string]candidate)
	var order []string

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("skipping unreadable device file", "file", entry.Name(), "error", err)
			continue
		}

		var d Device
		if err := yaml.Unmarshal(data, &d); err != nil {
			r.logger.Warn("skipping malformed device file", "file", entry.Name(), "error", err)
			continue
		}
		if err := Validate(&d); err != nil {
			r.logger.Warn("skipping invalid device file", "file", entry.Name(), "error", err)
			continue
		}

		info, err := entry.Info()
		modTime := time.Time{}
		if err == nil {
			modTime = info.ModTime()
		}

		if existing, ok := byMAC[d.ID]; ok {
			r.logger.Warn("duplicate device files for mac",
				"mac", d.ID, "kept", existing.file, "other", entry.Name())
			if modTime.After(existing.modTime) {
				byMAC[d.ID] = candidate{device: d, modTime: modTime, file: entry.Name()}
			}
			continue
		}

		byMAC[d.ID] = candidate{device: d, modTime: modTime, file: entry.Name()}
		order = append(order, d.ID)
	}

	sort.Strings(order)
	devices := make([]Device, 0, len(order))
	for _, mac := range order {
		devices = append(devices, byMAC[mac].device)
	}
	return devices, nil
}

// Save writes a device file atomically and removes any stale files carrying
// the same MAC under a different device type (the type can change when a
// later probe classifies an unknown device).
func (r *YAMLRepository) Save(_ context.Context, d *Device) error {
	if err := Validate(d); err != nil {
		return err
	}

	if err := os.MkdirAll(r.dir, dirPermissions); err != nil {
		return fmt.Errorf("creating devices directory: %w", err)
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding device %s: %w", d.ID, err)
	}

	target := filepath.Join(r.dir, d.FileName())
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return fmt.Errorf("writing device file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("renaming device file: %w", err)
	}

	r.removeStaleFiles(d.ID, d.FileName())
	return nil
}

// Delete removes the persisted file for a device. A missing file is not an
// error; the device may never have been persisted.
func (r *YAMLRepository) Delete(_ context.Context, d *Device) error {
	target := filepath.Join(r.dir, d.FileName())
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing device file: %w", err)
	}
	// A rename elsewhere may have left files under an older type prefix.
	r.removeStaleFiles(d.ID, "")
	return nil
}

// removeStaleFiles deletes any "*_<MAC>.yaml" files other than keep.
func (r *YAMLRepository) removeStaleFiles(mac, keep string) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	suffix := "_" + mac + ".yaml"
	for _, entry := range entries {
		name := entry.Name()
		if name == keep || !strings.HasSuffix(name, suffix) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
			r.logger.Warn("removing stale device file", "file", name, "error", err)
		}
	}
}
