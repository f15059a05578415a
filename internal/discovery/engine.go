package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

// Logger defines the logging interface used by the Engine.
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

// eventBufferSize bounds the out-channel; a slow consumer loses events
// rather than stalling the scan.
const eventBufferSize = 256

// Engine finds Shelly devices via mDNS announcements and active HTTP
// probing, classifies their generation, and reconciles results into the
// device registry.
//
// All methods are safe for concurrent use; one scan runs at a time.
type Engine struct {
	transport *transport.Client
	registry  *device.Registry
	types     *capability.TypeTable
	logger    Logger

	events chan Event

	mu       sync.Mutex
	scanning bool
}

// NewEngine creates a discovery engine.
func NewEngine(tc *transport.Client, registry *device.Registry, types *capability.TypeTable) *Engine {
	return &Engine{
		transport: tc,
		registry:  registry,
		types:     types,
		logger:    noopLogger{},
		events:    make(chan Event, eventBufferSize),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Events returns the engine's out-channel. Delivery is lossy: when the
// buffer is full events are dropped, never blocking a scan.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// emit sends an event without blocking.
func (e *Engine) emit(event Event) {
	select {
	case e.events <- event:
	default:
		e.logger.Debug("discovery event dropped", "type", event.Type)
	}
}

// Scan runs one discovery pass with the given options and returns the
// devices observed during this pass.
//
// Both strategies run concurrently. Found devices are upserted into the
// registry as soon as they are classified, so cancelling a scan keeps the
// partial results already delivered.
func (e *Engine) Scan(ctx context.Context, opts Options) ([]device.Device, error) {
	opts = opts.withDefaults()

	e.mu.Lock()
	if e.scanning {
		e.mu.Unlock()
		return nil, ErrScanInProgress
	}
	e.scanning = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.scanning = false
		e.mu.Unlock()
	}()

	started := time.Now()
	e.emit(Event{Type: EventScanStarted})
	e.logger.Info("discovery scan started",
		"mdns", opts.MDNS, "http_probe", opts.HTTPProbe, "networks", opts.Networks)

	var (
		resultMu sync.Mutex
		found    []device.Device
		probed   int
	)
	record := func(d *device.Device) {
		resultMu.Lock()
		defer resultMu.Unlock()
		found = append(found, *d)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if opts.MDNS {
		group.Go(func() error {
			e.browseMDNS(groupCtx, opts, record)
			return nil
		})
	}

	if opts.HTTPProbe {
		group.Go(func() error {
			n, err := e.probeTargets(groupCtx, opts, record)
			resultMu.Lock()
			probed = n
			resultMu.Unlock()
			return err
		})
	}

	err := group.Wait()

	stats := ScanStats{
		ProbedIPs: probed,
		Found:     len(found),
		Duration:  time.Since(started),
	}
	e.emit(Event{Type: EventScanFinished, Stats: &stats})
	e.logger.Info("discovery scan finished",
		"probed", stats.ProbedIPs, "found", stats.Found, "duration", stats.Duration)

	return found, err
}

// probeTargets expands the configured networks, then probes in chunks of at
// most ChunkSize simultaneous IPs. Each chunk completes before the next
// starts, bounding socket usage on weaker networks.
func (e *Engine) probeTargets(ctx context.Context, opts Options, record func(*device.Device)) (int, error) {
	targets, err := expandTargets(opts.Networks, opts.IPs)
	if err != nil {
		return 0, err
	}

	probed := 0
	for start := 0; start < len(targets); start += opts.ChunkSize {
		if ctx.Err() != nil {
			return probed, ctx.Err()
		}

		end := min(start+opts.ChunkSize, len(targets))
		chunk := targets[start:end]

		group, chunkCtx := errgroup.WithContext(ctx)
		for _, ip := range chunk {
			group.Go(func() error {
				d, ok := e.probeIP(chunkCtx, ip, opts.ProbeTimeout)
				if !ok {
					return nil
				}
				if stored := e.reconcile(chunkCtx, d); stored != nil {
					record(stored)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return probed, err
		}
		probed += len(chunk)
	}

	return probed, nil
}

// probeIP issues GET /shelly against one IP with a short connect timeout and
// classifies the response. Non-Shelly responders are silently discarded.
func (e *Engine) probeIP(ctx context.Context, ip string, timeout time.Duration) (*device.Device, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, status, err := e.transport.Gen1Call(probeCtx, ip, http.MethodGet, "shelly", nil)
	if err != nil || status != http.StatusOK {
		return nil, false
	}

	d, ok := e.classify(ip, payload)
	if !ok {
		return nil, false
	}

	e.enrich(ctx, d)
	return d, true
}

// enrich fills name, hostname and firmware from the device's configuration
// surface. Best effort; a failed enrichment keeps the classified record.
func (e *Engine) enrich(ctx context.Context, d *device.Device) {
	if d.Generation == device.Gen1 {
		payload, status, err := e.transport.Gen1Call(ctx, d.IPAddress, http.MethodGet, "settings", nil)
		if err != nil || status != http.StatusOK {
			return
		}
		obj, ok := payload.(map[string]any)
		if !ok {
			return
		}
		if name, ok := stringField(obj, "name"); ok {
			d.Name = name
		}
		if dev, ok := obj["device"].(map[string]any); ok {
			if hostname, ok := stringField(dev, "hostname"); ok {
				d.Hostname = hostname
			}
		}
		return
	}

	result, rpcErr, err := e.transport.Gen2Call(ctx, d.IPAddress, "Shelly.GetDeviceInfo", nil)
	if err != nil || rpcErr != nil {
		return
	}
	obj, ok := result.(map[string]any)
	if !ok {
		return
	}
	if name, ok := stringField(obj, "name"); ok {
		d.Name = name
	}
	if id, ok := stringField(obj, "id"); ok {
		d.Hostname = id
	}
}

// reconcile upserts one observation and emits the matching event.
func (e *Engine) reconcile(ctx context.Context, d *device.Device) *device.Device {
	_, existsErr := e.registry.Get(d.ID)
	isNew := existsErr != nil

	stored, err := e.registry.Upsert(ctx, d)
	if err != nil {
		e.logger.Warn("reconciling discovered device", "mac", d.ID, "error", err)
		return nil
	}

	if isNew {
		e.emit(Event{Type: EventDeviceFound, Device: stored})
	} else {
		e.emit(Event{Type: EventDeviceUpdated, Device: stored})
	}
	return stored
}

// expandTargets resolves CIDR blocks and explicit IPs into a probe list.
func expandTargets(networks, ips []string) ([]string, error) {
	var targets []string
	seen := make(map[string]bool)

	add := func(ip string) {
		if !seen[ip] {
			seen[ip] = true
			targets = append(targets, ip)
		}
	}

	for _, network := range networks {
		hosts, err := hostsInCIDR(network)
		if err != nil {
			return nil, err
		}
		for _, ip := range hosts {
			add(ip)
		}
	}
	for _, ip := range ips {
		add(ip)
	}

	return targets, nil
}

// hostsInCIDR enumerates usable host addresses in a CIDR block, excluding
// the network and broadcast addresses.
func hostsInCIDR(cidr string) ([]string, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("parsing network %q: %w", cidr, err)
	}

	var hosts []string
	for addr := ip.Mask(ipNet.Mask); ipNet.Contains(addr); incIP(addr) {
		hosts = append(hosts, addr.String())
	}

	// Drop network and broadcast addresses for conventional subnets.
	if len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}

// incIP increments an IP address in place.
func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
