package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry holds the current known set of devices, keyed by MAC.
//
// It wraps a Repository and adds an in-memory index for fast lookups.
// Insertion order is preserved so group fan-outs dispatch deterministically.
//
// Concurrency model: the index is guarded by a read-write lock; readers
// always observe consistent snapshots (every read returns a deep copy).
// In addition each device carries a per-device operation mutex, handed out
// via OpLock, which the parameter engine holds across a device exchange so
// two concurrent writes cannot interleave queries against the same embedded
// HTTP server.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	logger Logger

	mu    sync.RWMutex
	cache map[string]*Device
	order []string // MACs in insertion order

	opMu    sync.Mutex
	opLocks map[string]*sync.Mutex
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds the index.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		logger:  noopLogger{},
		cache:   make(map[string]*Device),
		opLocks: make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load populates the index from the repository.
// This should be called once on application startup.
func (r *Registry) Load(ctx context.Context) error {
	devices, err := r.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	r.order = r.order[:0]
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
		r.order = append(r.order, d.ID)
	}

	r.logger.Info("device registry loaded", "count", len(devices))
	return nil
}

// Get retrieves a device by MAC.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.cache[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// GetByName retrieves a device by its user-set name.
// Returns ErrDeviceNotFound when no device carries the name.
func (r *Registry) GetByName(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, mac := range r.order {
		if d := r.cache[mac]; d.Name == name {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

// List retrieves all devices in insertion order.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.order))
	for _, mac := range r.order {
		devices = append(devices, *r.cache[mac].DeepCopy())
	}
	return devices
}

// ListByGeneration retrieves all devices of one generation, in insertion order.
func (r *Registry) ListByGeneration(gen Generation) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []Device
	for _, mac := range r.order {
		if d := r.cache[mac]; d.Generation == gen {
			devices = append(devices, *d.DeepCopy())
		}
	}
	return devices
}

// Upsert reconciles a discovery observation (or manual insert) into the
// registry and persists the result.
//
// A new MAC is appended; an existing record is merged under the
// classification contract (see Device.Merge). The stored record is
// returned as a deep copy.
func (r *Registry) Upsert(ctx context.Context, incoming *Device) (*Device, error) {
	if err := Validate(incoming); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	existing, ok := r.cache[incoming.ID]
	if !ok {
		record := incoming.DeepCopy()
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		if record.LastSeenAt.IsZero() {
			record.LastSeenAt = now
		}
		record.UpdatedAt = now

		if err := r.repo.Save(ctx, record); err != nil {
			return nil, err
		}

		r.cache[record.ID] = record
		r.order = append(r.order, record.ID)
		r.logger.Info("device added", "mac", record.ID, "type", record.DeviceType, "ip", record.IPAddress)
		return record.DeepCopy(), nil
	}

	updated := existing.DeepCopy()
	updated.Merge(incoming)
	updated.UpdatedAt = now

	if err := r.repo.Save(ctx, updated); err != nil {
		return nil, err
	}

	r.cache[updated.ID] = updated
	r.logger.Debug("device updated", "mac", updated.ID, "ip", updated.IPAddress)
	return updated.DeepCopy(), nil
}

// Update applies a mutation to one device under the index lock and persists
// the result. Used by the engine to write back name or firmware changes
// after a successful device operation.
func (r *Registry) Update(ctx context.Context, id string, mutate func(*Device)) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.cache[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	updated := existing.DeepCopy()
	mutate(updated)
	updated.ID = existing.ID // Identity is immutable
	updated.UpdatedAt = time.Now().UTC()

	if err := r.repo.Save(ctx, updated); err != nil {
		return nil, err
	}

	r.cache[id] = updated
	return updated.DeepCopy(), nil
}

// Delete removes a device from the registry and disk.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.cache[id]
	if !ok {
		return ErrDeviceNotFound
	}

	if err := r.repo.Delete(ctx, d); err != nil {
		return err
	}

	delete(r.cache, id)
	for i, mac := range r.order {
		if mac == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("device deleted", "mac", id)
	return nil
}

// OpLock returns the per-device operation mutex for a MAC.
//
// The engine holds this lock across a read-modify exchange so operations on
// one device are serialised; embedded Shelly HTTP servers mishandle
// concurrent config writes. Locks are created on demand and never freed;
// the set of MACs is small.
func (r *Registry) OpLock(id string) *sync.Mutex {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if mu, ok := r.opLocks[id]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	r.opLocks[id] = mu
	return mu
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByGeneration: make(map[Generation]int),
		ByType:       make(map[string]int),
		ByStatus:     make(map[Status]int),
	}

	for _, d := range r.cache {
		stats.ByGeneration[d.Generation]++
		stats.ByType[d.DeviceType]++
		stats.ByStatus[d.Status]++
	}

	return stats
}
