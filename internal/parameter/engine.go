package parameter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

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

// defaultRebootGrace is the bounded wait after a coordinated reboot.
const defaultRebootGrace = 10 * time.Second

// Meta describes how a logical name resolved for one device.
type Meta struct {
	Descriptor capability.ParameterDescriptor `json:"descriptor"`

	// Source is "capability" when the SKU definition declared the
	// parameter, "mapping" when the cross-generation table supplied it.
	Source string `json:"source"`
}

// SetOptions controls a parameter write.
type SetOptions struct {
	// RebootIfNeeded reboots the device after a successful write that
	// requires a restart, waiting a bounded grace.
	RebootIfNeeded bool

	// VerifyReadBack reads the parameter back after the write to detect
	// silent clamping. On by default from the executor.
	VerifyReadBack bool
}

// Supported lists what the engine can do against one device.
type Supported struct {
	Parameters []string `json:"parameters"`
	Operations []string `json:"operations"`
}

// Engine resolves logical parameter names and control verbs to concrete
// wire calls, one code path parameterised by the generation dialect.
//
// Resolution order for a logical name: the device's capability definition
// first, then the cross-generation mapping table, else the parameter is
// unsupported.
//
// Within one device, operations are serialised by the registry's per-device
// mutex; embedded Shelly HTTP servers mishandle concurrent config writes.
type Engine struct {
	transport *transport.Client
	catalogue *capability.Catalogue
	registry  *device.Registry
	verbs     *VerbTable
	logger    Logger

	rebootGrace time.Duration
}

// NewEngine creates a parameter engine with the default verb table.
func NewEngine(tc *transport.Client, catalogue *capability.Catalogue, registry *device.Registry) *Engine {
	return &Engine{
		transport:   tc,
		catalogue:   catalogue,
		registry:    registry,
		verbs:       DefaultVerbTable(),
		logger:      noopLogger{},
		rebootGrace: defaultRebootGrace,
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetRebootGrace overrides the post-reboot wait.
func (e *Engine) SetRebootGrace(grace time.Duration) {
	e.rebootGrace = grace
}

// Verbs returns the engine's verb table for extension.
func (e *Engine) Verbs() *VerbTable {
	return e.verbs
}

// resolve finds the descriptor for a logical name on a device.
func (e *Engine) resolve(d *device.Device, name string) (capability.ParameterDescriptor, string, error) {
	if def, err := e.catalogue.Resolve(d); err == nil {
		if desc, ok := def.Parameter(name); ok {
			return desc, "capability", nil
		}
	}

	if desc, ok := e.catalogue.Mapping().Descriptor(name, d.Generation); ok {
		return desc, "mapping", nil
	}

	return capability.ParameterDescriptor{}, "", fmt.Errorf("%w: %s on %s (%s)",
		ErrUnsupportedParameter, name, d.ID, d.Generation)
}

// Get reads a logical parameter from a device.
func (e *Engine) Get(ctx context.Context, d *device.Device, name string) (any, *Meta, error) {
	desc, source, err := e.resolve(d, name)
	if err != nil {
		return nil, nil, err
	}

	mu := e.registry.OpLock(d.ID)
	mu.Lock()
	defer mu.Unlock()

	value, err := e.read(ctx, d, desc)
	if err != nil {
		return nil, nil, err
	}

	return value, &Meta{Descriptor: desc, Source: source}, nil
}

// read dispatches a raw parameter read by generation dialect.
func (e *Engine) read(ctx context.Context, d *device.Device, desc capability.ParameterDescriptor) (any, error) {
	if d.Generation == device.Gen1 {
		return e.readGen1(ctx, d, desc)
	}
	return e.readGen2(ctx, d, desc)
}

// Set writes a logical parameter to a device.
//
// The operation traverses Pending → Resolving → Dispatching →
// AwaitingResponse → (Succeeded|Failed|Cancelled) → (MaybeRebooting →
// Finalized); only the succeeded path may re-enter network I/O for the
// coordinated reboot.
func (e *Engine) Set(ctx context.Context, d *device.Device, name string, value any, opts SetOptions) OperationResult {
	result := newResult(d.ID)

	// Resolving
	desc, _, err := e.resolve(d, name)
	if err != nil {
		result.failFromError(err)
		return result
	}
	if desc.ReadOnly {
		result.failFromError(fmt.Errorf("%w: %s", ErrReadOnlyParameter, name))
		return result
	}

	coerced, err := Coerce(value, desc)
	if err != nil {
		result.failFromError(err)
		return result
	}

	if !d.Reachable() {
		result.failFromError(transport.ErrNoAddress)
		return result
	}

	mu := e.registry.OpLock(d.ID)
	mu.Lock()
	defer mu.Unlock()

	// Dispatching / AwaitingResponse
	var restartRequired bool
	if d.Generation == device.Gen1 {
		restartRequired, err = e.writeGen1(ctx, d, desc, coerced, &result)
	} else {
		restartRequired, err = e.writeGen2(ctx, d, desc, coerced, &result)
	}
	if err != nil {
		result.failFromError(err)
		return result
	}

	result.RebootRequired = restartRequired || desc.RequiresRestart
	result.succeed(result.ResponseSummary)

	if opts.VerifyReadBack {
		e.verifyReadBack(ctx, d, desc, coerced, &result)
	}

	// MaybeRebooting
	if opts.RebootIfNeeded && result.RebootRequired {
		if err := e.reboot(ctx, d); err != nil {
			// A failed reboot does not retroactively invalidate the write.
			result.SecondaryError = fmt.Sprintf("reboot failed: %v", err)
		}
	}

	// Write back observable registry state.
	if name == "name" {
		if s, ok := coerced.(string); ok {
			if _, err := e.registry.Update(ctx, d.ID, func(rec *device.Device) { rec.Name = s }); err != nil {
				e.logger.Warn("writing back device name", "mac", d.ID, "error", err)
			}
		}
	}

	return result
}

// verifyReadBack compares the device's applied value with the request and
// flags silent clamping as a warning, never a failure.
func (e *Engine) verifyReadBack(ctx context.Context, d *device.Device, desc capability.ParameterDescriptor, requested any, result *OperationResult) {
	observed, err := e.read(ctx, d, desc)
	if err != nil {
		e.logger.Debug("read-back verification failed", "mac", d.ID, "error", err)
		return
	}
	if !valuesEqual(requested, observed) {
		result.Warning = WarningClamped
		result.ResponseSummary = fmt.Sprintf("device applied %v", observed)
	}
}

// SetMany applies multiple parameter writes to one device in deterministic
// (sorted) order, one OperationResult per parameter.
func (e *Engine) SetMany(ctx context.Context, d *device.Device, values map[string]any, opts SetOptions) []OperationResult {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]OperationResult, 0, len(names))
	for _, name := range names {
		results = append(results, e.Set(ctx, d, name, values[name], opts))
	}
	return results
}

// Operate executes a named control verb against a device.
func (e *Engine) Operate(ctx context.Context, d *device.Device, verb string, args map[string]any) OperationResult {
	result := newResult(d.ID)

	recipe, ok := e.verbs.Get(verb)
	if !ok {
		result.fail(KindInternal, fmt.Errorf("%w: %s", ErrUnknownVerb, verb))
		return result
	}

	if !d.Reachable() {
		result.failFromError(transport.ErrNoAddress)
		return result
	}

	profile := e.profileFor(d)

	mu := e.registry.OpLock(d.ID)
	mu.Lock()
	defer mu.Unlock()

	if d.Generation == device.Gen1 {
		e.operateGen1(ctx, d, recipe, profile, args, &result)
	} else {
		e.operateGen2(ctx, d, recipe, profile, args, &result)
	}
	return result
}

// Supported reports the parameters and operations available on a device.
func (e *Engine) Supported(d *device.Device) Supported {
	names := make(map[string]bool)

	if def, err := e.catalogue.Resolve(d); err == nil {
		for name := range def.Parameters {
			names[name] = true
		}
	}
	for _, name := range e.catalogue.Mapping().Names() {
		if _, ok := e.catalogue.Mapping().Descriptor(name, d.Generation); ok {
			names[name] = true
		}
	}

	parameters := make([]string, 0, len(names))
	for name := range names {
		parameters = append(parameters, name)
	}
	sort.Strings(parameters)

	return Supported{
		Parameters: parameters,
		Operations: e.verbs.Names(),
	}
}

// reboot issues the generation's reboot call and waits a bounded grace.
// The wait is cancellable; a reboot already dispatched is not recalled.
func (e *Engine) reboot(ctx context.Context, d *device.Device) error {
	e.logger.Info("rebooting device after config write", "mac", d.ID)

	if d.Generation == device.Gen1 {
		_, status, err := e.transport.Gen1Call(ctx, d.IPAddress, http.MethodGet, "reboot", nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return &transport.HTTPError{Status: status}
		}
	} else {
		_, rpcErr, err := e.transport.Gen2Call(ctx, d.IPAddress, "Shelly.Reboot", nil)
		if err != nil {
			return err
		}
		if rpcErr != nil {
			return fmt.Errorf("%w: %s", ErrDeviceError, rpcErr.Message)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.rebootGrace):
		return nil
	}
}

// profileFor determines the control channel family for a device: Gen1
// relay/light/roller path, Gen2 Switch/Light/Cover component.
func (e *Engine) profileFor(d *device.Device) Profile {
	profile := Profile{Gen1Channel: "relay/0", Gen2Family: "Switch"}

	if def, err := e.catalogue.Resolve(d); err == nil {
		if def.HasAPI("settings/light/0") {
			profile.Gen1Channel = "light/0"
			profile.Gen2Family = "Light"
			return profile
		}
		if def.HasAPI("settings/roller/0") && !def.HasAPI("settings/relay/0") {
			profile.Gen1Channel = "roller/0"
			profile.Gen2Family = "Cover"
			return profile
		}
	}

	if info, ok := e.catalogue.Types().Info(d.DeviceType); ok {
		for _, feature := range info.Features {
			switch feature {
			case "light", "color":
				profile.Gen1Channel = "light/0"
				profile.Gen2Family = "Light"
				return profile
			}
		}
	}

	return profile
}

// IsUnsupported reports whether an error means the logical name cannot be
// resolved for the device.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedParameter)
}
