package group

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
)

// Logger defines the logging interface used by the Repository.
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

// Repository persists groups one YAML file per group and keeps an in-memory
// index. Group names are unique; the reserved all-devices name is rejected.
//
// All public methods are thread-safe.
type Repository struct {
	dir    string
	logger Logger

	mu     sync.RWMutex
	groups map[string]*Group
}

// NewRepository creates a group repository rooted at dir.
// The SHELLY_GROUPS_DIR environment handling happens at config load; dir is
// already resolved here.
func NewRepository(dir string) *Repository {
	return &Repository{
		dir:    dir,
		logger: noopLogger{},
		groups: make(map[string]*Group),
	}
}

// SetLogger sets the logger for the repository.
func (r *Repository) SetLogger(logger Logger) {
	r.logger = logger
}

// Dir returns the groups directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Load reads every group file from the directory.
func (r *Repository) Load(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading groups directory: %w", err)
	}

	groups := make(map[string]*Group)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			r.logger.Warn("skipping unreadable group file", "file", entry.Name(), "error", err)
			continue
		}

		var g Group
		if err := yaml.Unmarshal(data, &g); err != nil {
			r.logger.Warn("skipping malformed group file", "file", entry.Name(), "error", err)
			continue
		}
		if g.Name == "" || g.Name == AllDevicesName {
			r.logger.Warn("skipping group with invalid name", "file", entry.Name(), "name", g.Name)
			continue
		}

		groups[g.Name] = &g
	}

	r.mu.Lock()
	r.groups = groups
	r.mu.Unlock()

	r.logger.Info("groups loaded", "count", len(groups))
	return nil
}

// Create persists a new group.
func (r *Repository) Create(g *Group) error {
	if err := validateName(g.Name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[g.Name]; exists {
		return fmt.Errorf("%w: %s", ErrGroupExists, g.Name)
	}
	// Distinct names may sanitise to the same filename ("Living Room" and
	// "Living/Room" both land on Living_Room.yaml); a silent overwrite
	// would lose a group on the next load.
	if other := r.fileNameOwner(g.Name, ""); other != "" {
		return fmt.Errorf("%w: %s collides on disk with %s", ErrGroupExists, g.Name, other)
	}

	now := time.Now().UTC()
	stored := g.DeepCopy()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := r.writeFile(stored); err != nil {
		return err
	}

	r.groups[stored.Name] = stored
	r.logger.Info("group created", "name", stored.Name, "devices", len(stored.DeviceIDs))
	return nil
}

// Update persists changes to an existing group. Renames are handled by the
// caller via Rename; the name here must already exist.
func (r *Repository) Update(g *Group) error {
	if err := validateName(g.Name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.groups[g.Name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, g.Name)
	}

	stored := g.DeepCopy()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	if err := r.writeFile(stored); err != nil {
		return err
	}

	r.groups[stored.Name] = stored
	return nil
}

// Rename changes a group's name, leaving exactly one file on disk.
func (r *Repository) Rename(oldName, newName string) error {
	if err := validateName(newName); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.groups[oldName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, oldName)
	}
	if _, taken := r.groups[newName]; taken {
		return fmt.Errorf("%w: %s", ErrGroupExists, newName)
	}
	if other := r.fileNameOwner(newName, oldName); other != "" {
		return fmt.Errorf("%w: %s collides on disk with %s", ErrGroupExists, newName, other)
	}

	renamed := existing.DeepCopy()
	renamed.Name = newName
	renamed.UpdatedAt = time.Now().UTC()

	if err := r.writeFile(renamed); err != nil {
		return err
	}
	// Remove the old file only when the sanitised path actually changed;
	// "kitchen ish" → "kitchen/ish" keeps the same file, and removing it
	// here would delete the rename we just wrote. Exactly one file per
	// group survives either way.
	if renamed.FileName() != existing.FileName() {
		if err := os.Remove(filepath.Join(r.dir, existing.FileName())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing old group file: %w", err)
		}
	}

	delete(r.groups, oldName)
	r.groups[newName] = renamed
	r.logger.Info("group renamed", "from", oldName, "to", newName)
	return nil
}

// Delete removes a group from the index and disk.
func (r *Repository) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.groups[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}

	if err := os.Remove(filepath.Join(r.dir, existing.FileName())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing group file: %w", err)
	}

	delete(r.groups, name)
	r.logger.Info("group deleted", "name", name)
	return nil
}

// Get returns a group by name as a deep copy.
func (r *Repository) Get(name string) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, exists := r.groups[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	return g.DeepCopy(), nil
}

// List returns all groups sorted by name.
func (r *Repository) List() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, *g.DeepCopy())
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// GroupsForDevice returns the groups referencing a MAC, sorted by name.
func (r *Repository) GroupsForDevice(mac string) []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var groups []Group
	for _, g := range r.groups {
		if g.HasDevice(mac) {
			groups = append(groups, *g.DeepCopy())
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// AllDeviceIDs returns the union of all group members.
func (r *Repository) AllDeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, g := range r.groups {
		for _, id := range g.DeviceIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// writeFile persists one group atomically. Caller holds the lock.
func (r *Repository) writeFile(g *Group) error {
	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return fmt.Errorf("creating groups directory: %w", err)
	}

	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding group %s: %w", g.Name, err)
	}

	target := filepath.Join(r.dir, g.FileName())
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing group file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("renaming group file: %w", err)
	}
	return nil
}

// fileNameOwner returns the name of a different group whose sanitised
// filename matches name's, or "" when the filename is free. The exclude
// name is skipped (the group being renamed). Caller holds the lock.
func (r *Repository) fileNameOwner(name, exclude string) string {
	file := SafeFileName(name) + ".yaml"
	for _, g := range r.groups {
		if g.Name == name || g.Name == exclude {
			continue
		}
		if g.FileName() == file {
			return g.Name
		}
	}
	return ""
}

// validateName rejects empty and reserved names.
func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if name == AllDevicesName {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	return nil
}
