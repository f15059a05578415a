package capability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// Logger defines the logging interface used by the Catalogue.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// baseSKUs name the per-generation fallback definitions consulted when no
// SKU-specific file exists for a device.
var baseSKUs = map[device.Generation]string{
	device.Gen1: "gen1-base",
	device.Gen2: "gen2-base",
	device.Gen3: "gen2-base",
	device.Gen4: "gen2-base",
}

// Catalogue holds the capability definitions and the parameter mapping
// table.
//
// The catalogue is read-mostly: lookups take a read lock, and refresh swaps
// in a new snapshot under the write lock so readers never see a torn view.
type Catalogue struct {
	dir     string
	mapping *Mapping
	types   *TypeTable
	logger  Logger

	mu       sync.RWMutex
	defs     map[string]*Definition
	synonyms map[string]string // type_mappings entry → primary device type
}

// NewCatalogue creates a catalogue rooted at dir with the given mapping
// table and static type knowledge.
func NewCatalogue(dir string, mapping *Mapping, types *TypeTable) *Catalogue {
	return &Catalogue{
		dir:      dir,
		mapping:  mapping,
		types:    types,
		logger:   noopLogger{},
		defs:     make(map[string]*Definition),
		synonyms: make(map[string]string),
	}
}

// SetLogger sets the logger for the catalogue.
func (c *Catalogue) SetLogger(logger Logger) {
	c.logger = logger
}

// Mapping returns the parameter mapping table.
func (c *Catalogue) Mapping() *Mapping {
	return c.mapping
}

// Types returns the static device type table.
func (c *Catalogue) Types() *TypeTable {
	return c.types
}

// Dir returns the capability files directory.
func (c *Catalogue) Dir() string {
	return c.dir
}

// Load reads every definition file from disk and swaps in the new snapshot.
// Files that fail to parse or validate are skipped with a warning.
func (c *Catalogue) Load(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading capabilities directory: %w", err)
	}

	defs := make(map[string]*Definition)
	synonyms := make(map[string]string)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(c.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("skipping unreadable capability file", "file", entry.Name(), "error", err)
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			c.logger.Warn("skipping malformed capability file", "file", entry.Name(), "error", err)
			continue
		}
		if err := def.Validate(); err != nil {
			c.logger.Warn("skipping invalid capability file", "file", entry.Name(), "error", err)
			continue
		}

		defs[def.DeviceType] = &def
		for _, synonym := range def.TypeMappings {
			synonyms[synonym] = def.DeviceType
		}
	}

	c.mu.Lock()
	c.defs = defs
	c.synonyms = synonyms
	c.mu.Unlock()

	c.logger.Info("capability catalogue loaded", "definitions", len(defs))
	return nil
}

// Get returns the definition for a device type, falling through
// type_mappings synonyms. Returns ErrDefinitionNotFound when neither exists.
func (c *Catalogue) Get(deviceType string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getLocked(deviceType)
}

func (c *Catalogue) getLocked(deviceType string) (*Definition, error) {
	if def, ok := c.defs[deviceType]; ok {
		return def, nil
	}
	if primary, ok := c.synonyms[deviceType]; ok {
		if def, ok := c.defs[primary]; ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, deviceType)
}

// Resolve returns the best definition for a device record: its device type,
// else its generation's base SKU, else ErrDefinitionNotFound.
func (c *Catalogue) Resolve(d *device.Device) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if d.DeviceType != "" {
		if def, err := c.getLocked(d.DeviceType); err == nil {
			return def, nil
		}
	}
	if base, ok := baseSKUs[d.Generation]; ok {
		if def, err := c.getLocked(base); err == nil {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrDefinitionNotFound, d.DeviceType, d.Generation)
}

// HasParameter reports whether a device type declares the parameter.
func (c *Catalogue) HasParameter(deviceType, name string) bool {
	def, err := c.Get(deviceType)
	if err != nil {
		return false
	}
	return def.HasParameter(name)
}

// ParameterDetails returns the descriptor for a parameter on a device type.
func (c *Catalogue) ParameterDetails(deviceType, name string) (ParameterDescriptor, bool) {
	def, err := c.Get(deviceType)
	if err != nil {
		return ParameterDescriptor{}, false
	}
	return def.Parameter(name)
}

// DevicesSupporting returns all device types whose definition declares the
// parameter, plus a marker entry per generation branch of the mapping table.
func (c *Catalogue) DevicesSupporting(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var types []string
	for deviceType, def := range c.defs {
		if def.HasParameter(name) {
			types = append(types, deviceType)
		}
	}

	if entry, ok := c.mapping.Entry(name); ok {
		if entry.Gen1 != nil {
			types = append(types, "any-gen1")
		}
		if entry.Gen2 != nil {
			types = append(types, "any-gen2+")
		}
	}

	sort.Strings(types)
	return types
}

// List returns all loaded definitions sorted by device type.
func (c *Catalogue) List() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]*Definition, 0, len(c.defs))
	for _, def := range c.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].DeviceType < defs[j].DeviceType })
	return defs
}

// Save persists one definition atomically and folds it into the live
// snapshot. A hand-edited file on disk is only overwritten when force is
// set.
func (c *Catalogue) Save(def *Definition, force bool) error {
	if err := def.Validate(); err != nil {
		return err
	}

	target := filepath.Join(c.dir, def.FileName())

	if !force {
		if existing, err := c.loadFile(target); err == nil && existing.HandEdited {
			return fmt.Errorf("%w: %s", ErrHandEdited, def.DeviceType)
		}
	}

	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return fmt.Errorf("creating capabilities directory: %w", err)
	}

	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("encoding definition %s: %w", def.DeviceType, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing definition file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("renaming definition file: %w", err)
	}

	c.mu.Lock()
	c.defs[def.DeviceType] = def
	for _, synonym := range def.TypeMappings {
		c.synonyms[synonym] = def.DeviceType
	}
	c.mu.Unlock()

	return nil
}

// loadFile reads one definition file.
func (c *Catalogue) loadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// RefreshOptions controls a catalogue refresh.
type RefreshOptions struct {
	// Force overwrites hand-edited files as well.
	Force bool
}

// Refresh deletes generated definition files and repopulates the catalogue
// by running discover for each device handed in. A failed discovery is
// reported but does not invalidate the existing catalogue entry.
//
// The discover callback runs capability discovery against one representative
// device and returns the fresh definition.
func (c *Catalogue) Refresh(ctx context.Context, devices []device.Device, opts RefreshOptions,
	discover func(ctx context.Context, d *device.Device) (*Definition, error)) error {

	// Remove generated files first so abandoned SKUs do not linger.
	entries, err := os.ReadDir(c.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading capabilities directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		def, err := c.loadFile(path)
		if err != nil {
			continue
		}
		if def.HandEdited && !opts.Force {
			continue
		}
		if err := os.Remove(path); err != nil {
			c.logger.Warn("removing generated capability file", "file", entry.Name(), "error", err)
		}
	}

	// One representative device per type is enough.
	seen := make(map[string]bool)
	var failures int
	for i := range devices {
		d := devices[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.DeviceType == "" || seen[d.DeviceType] || !d.Reachable() {
			continue
		}
		seen[d.DeviceType] = true

		def, err := discover(ctx, &d)
		if err != nil {
			failures++
			c.logger.Warn("capability discovery failed", "type", d.DeviceType, "mac", d.ID, "error", err)
			// The generated file was removed above; write the previous
			// definition back so the entry survives the failed discovery.
			if old, getErr := c.Get(d.DeviceType); getErr == nil {
				if _, statErr := os.Stat(filepath.Join(c.dir, old.FileName())); os.IsNotExist(statErr) {
					if saveErr := c.Save(old, false); saveErr != nil {
						c.logger.Warn("restoring previous capability definition", "type", d.DeviceType, "error", saveErr)
					}
				}
			}
			continue
		}
		if err := c.Save(def, opts.Force); err != nil {
			failures++
			c.logger.Warn("saving refreshed definition", "type", d.DeviceType, "error", err)
		}
	}

	if err := c.Load(ctx); err != nil {
		return err
	}

	c.logger.Info("capability refresh complete", "types", len(seen), "failures", failures)
	return nil
}

// RenameDiff records one standardisation rename.
type RenameDiff struct {
	DeviceType string `json:"device_type"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// Standardize applies the Gen1-to-canonical rename table across the
// catalogue. With dryRun it only reports the diff; otherwise renamed
// definitions are persisted.
func (c *Catalogue) Standardize(dryRun bool) ([]RenameDiff, error) {
	aliases := c.mapping.Aliases()

	var diffs []RenameDiff
	for _, def := range c.List() {
		changed := false
		renamed := make(map[string]ParameterDescriptor, len(def.Parameters))

		for name, desc := range def.Parameters {
			canonical, ok := aliases[name]
			if !ok || canonical == name {
				renamed[name] = desc
				continue
			}
			// A definition may already carry the canonical name; keep it.
			if _, exists := def.Parameters[canonical]; exists {
				renamed[name] = desc
				continue
			}
			renamed[canonical] = desc
			changed = true
			diffs = append(diffs, RenameDiff{DeviceType: def.DeviceType, From: name, To: canonical})
		}

		if changed && !dryRun {
			updated := *def
			updated.Parameters = renamed
			updated.GeneratedAt = time.Now().UTC()
			if err := c.Save(&updated, true); err != nil {
				return diffs, fmt.Errorf("saving standardised definition %s: %w", def.DeviceType, err)
			}
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].DeviceType != diffs[j].DeviceType {
			return diffs[i].DeviceType < diffs[j].DeviceType
		}
		return diffs[i].From < diffs[j].From
	})
	return diffs, nil
}
