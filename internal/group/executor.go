package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/parameter"
)

// defaultConcurrency bounds simultaneous per-device operations in a run.
const defaultConcurrency = 16

// ActionKind is the flavour of a group request.
type ActionKind string

// ActionKind constants.
const (
	ActionVerb    ActionKind = "verb"
	ActionGet     ActionKind = "get"
	ActionSet     ActionKind = "set"
	ActionBulkSet ActionKind = "bulk-set"
)

// Request is one logical request against a group.
type Request struct {
	GroupName string     `json:"group"`
	Kind      ActionKind `json:"kind"`

	// Verb and Args apply to ActionVerb.
	Verb string         `json:"verb,omitempty"`
	Args map[string]any `json:"args,omitempty"`

	// Parameter and Value apply to ActionGet / ActionSet.
	Parameter string `json:"parameter,omitempty"`
	Value     any    `json:"value,omitempty"`

	// Values applies to ActionBulkSet.
	Values map[string]any `json:"values,omitempty"`

	// Confirm acknowledges the all-devices safety interlock.
	Confirm bool `json:"confirm,omitempty"`

	// RebootIfNeeded forwards to the engine's write options.
	RebootIfNeeded bool `json:"reboot_if_needed,omitempty"`
}

// describe summarises the request for logs and history.
func (r Request) describe() string {
	switch r.Kind {
	case ActionVerb:
		return r.Verb
	case ActionGet:
		return "get " + r.Parameter
	case ActionSet:
		return "set " + r.Parameter
	case ActionBulkSet:
		return fmt.Sprintf("apply %d parameters", len(r.Values))
	default:
		return string(r.Kind)
	}
}

// GroupResult aggregates per-device results of one run, in input device
// order regardless of completion order.
type GroupResult struct {
	RunID     string        `json:"run_id"`
	Group     string        `json:"group"`
	Action    string        `json:"action"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Results []parameter.OperationResult `json:"results"`

	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	SkippedCount int `json:"skipped_count"`
}

// Recorder receives completed group runs (history store, telemetry sink).
// Recording is best effort and never affects the run outcome.
type Recorder interface {
	RecordRun(ctx context.Context, result *GroupResult)
}

// ExecutorLogger defines the logging interface used by the Executor.
type ExecutorLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config tunes the executor.
type Config struct {
	// Concurrency bounds simultaneous per-device operations. Defaults to 16.
	Concurrency int

	// DestructiveVerbs require confirm=true when the target resolves to the
	// implicit all-devices set.
	DestructiveVerbs []string
}

// target is one fan-out slot: a resolvable member or a skip marker.
type target struct {
	mac string
	dev *device.Device // nil when the member is missing from the registry
}

// Executor resolves a group to a device set and fans a logical request out
// across it concurrently, aggregating per-device results.
//
// Partial failure is the norm: one device's failure never aborts the
// remainder, and leaf errors never propagate out of the executor. Caller
// contract violations (unknown group, unknown verb, the safety interlock)
// are surfaced as a single fleet error instead.
type Executor struct {
	registry *device.Registry
	engine   *parameter.Engine
	repo     *Repository
	logger   ExecutorLogger

	concurrency int64
	destructive map[string]bool
	recorder    Recorder
}

// NewExecutor creates a group executor.
func NewExecutor(registry *device.Registry, engine *parameter.Engine, repo *Repository, cfg Config) *Executor {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	if cfg.DestructiveVerbs == nil {
		cfg.DestructiveVerbs = []string{"off", "reboot", "update_firmware"}
	}
	destructive := make(map[string]bool, len(cfg.DestructiveVerbs))
	for _, verb := range cfg.DestructiveVerbs {
		destructive[verb] = true
	}

	return &Executor{
		registry:    registry,
		engine:      engine,
		repo:        repo,
		logger:      noopLogger{},
		concurrency: int64(concurrency),
		destructive: destructive,
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger ExecutorLogger) {
	e.logger = logger
}

// SetRecorder attaches a run recorder.
func (e *Executor) SetRecorder(recorder Recorder) {
	e.recorder = recorder
}

// Execute runs one logical request against a group.
func (e *Executor) Execute(ctx context.Context, req Request) (*GroupResult, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	targets, err := e.resolveTargets(req)
	if err != nil {
		return nil, err
	}

	result := &GroupResult{
		RunID:     uuid.NewString(),
		Group:     req.GroupName,
		Action:    req.describe(),
		StartedAt: time.Now().UTC(),
	}

	e.logger.Info("group run started",
		"run_id", result.RunID, "group", req.GroupName, "action", result.Action,
		"targets", len(targets))

	result.Results = e.fanOut(ctx, targets, req)

	for _, r := range result.Results {
		switch {
		case r.Skipped:
			result.SkippedCount++
		case r.Success:
			result.SuccessCount++
		default:
			result.FailureCount++
		}
	}
	result.Duration = time.Since(result.StartedAt)

	e.logger.Info("group run finished",
		"run_id", result.RunID,
		"success", result.SuccessCount, "failure", result.FailureCount, "skipped", result.SkippedCount)

	if e.recorder != nil {
		e.recorder.RecordRun(ctx, result)
	}

	return result, nil
}

// validate rejects caller contract violations before any device I/O.
func (e *Executor) validate(req Request) error {
	switch req.Kind {
	case ActionVerb:
		if !e.engine.Verbs().Known(req.Verb) {
			return fmt.Errorf("%w: %s", ErrUnknownVerb, req.Verb)
		}
	case ActionGet, ActionSet:
		if req.Parameter == "" {
			return fmt.Errorf("%w: parameter name required", ErrUnknownVerb)
		}
	case ActionBulkSet:
		if len(req.Values) == 0 {
			return fmt.Errorf("%w: no parameters to apply", ErrUnknownVerb)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVerb, req.Kind)
	}

	// Safety interlock: destructive actions against the implicit
	// all-devices set refuse to run unconfirmed. Zero device I/O happens.
	if req.GroupName == AllDevicesName && e.isDestructive(req) && !req.Confirm {
		return fmt.Errorf("%w: %s on %s", ErrConfirmationRequired, req.describe(), AllDevicesName)
	}

	return nil
}

// isDestructive reports whether a request falls under the interlock: a
// configured destructive verb, or any write touching wifi configuration.
func (e *Executor) isDestructive(req Request) bool {
	switch req.Kind {
	case ActionVerb:
		return e.destructive[req.Verb]
	case ActionSet:
		return strings.HasPrefix(req.Parameter, "wifi.")
	case ActionBulkSet:
		for name := range req.Values {
			if strings.HasPrefix(name, "wifi.") {
				return true
			}
		}
	}
	return false
}

// resolveTargets expands the group into ordered fan-out slots. Members
// missing from the registry become skip markers but keep their position.
func (e *Executor) resolveTargets(req Request) ([]target, error) {
	if req.GroupName == AllDevicesName {
		// Snapshot at call time, in registry insertion order.
		devices := e.registry.List()
		targets := make([]target, len(devices))
		for i := range devices {
			targets[i] = target{mac: devices[i].ID, dev: &devices[i]}
		}
		return targets, nil
	}

	g, err := e.repo.Get(req.GroupName)
	if err != nil {
		return nil, err
	}

	targets := make([]target, 0, len(g.DeviceIDs))
	for _, mac := range g.DeviceIDs {
		d, err := e.registry.Get(mac)
		if err != nil {
			targets = append(targets, target{mac: mac})
			continue
		}
		targets = append(targets, target{mac: mac, dev: d})
	}
	return targets, nil
}

// fanOut dispatches the request to every slot with bounded concurrency.
// Slots are dispatched in input order and results land in their slot, so
// per-device results are reported in input order regardless of completion
// order. Each operation derives its cancellation from the group's context.
func (e *Executor) fanOut(ctx context.Context, targets []target, req Request) []parameter.OperationResult {
	results := make([]parameter.OperationResult, len(targets))
	sem := semaphore.NewWeighted(e.concurrency)

	for i := range targets {
		if targets[i].dev == nil {
			results[i] = parameter.OperationResult{
				DeviceID:     targets[i].mac,
				AttemptedAt:  time.Now().UTC(),
				Skipped:      true,
				ErrorKind:    parameter.KindUnknownDevice,
				ErrorMessage: fmt.Sprintf("device %s not in registry", targets[i].mac),
			}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// Group cancelled: mark the remainder cancelled, never dispatched.
			for j := i; j < len(targets); j++ {
				if targets[j].dev == nil {
					continue
				}
				results[j] = parameter.OperationResult{
					DeviceID:     targets[j].mac,
					AttemptedAt:  time.Now().UTC(),
					ErrorKind:    parameter.KindCancelled,
					ErrorMessage: "group run cancelled",
				}
			}
			break
		}

		go func(slot int, d device.Device) {
			defer sem.Release(1)
			results[slot] = e.dispatch(ctx, &d, req)
		}(i, *targets[i].dev)
	}

	// Drain all in-flight operations before reading the slots.
	_ = sem.Acquire(context.Background(), e.concurrency)
	sem.Release(e.concurrency)

	return results
}

// dispatch runs the request against one device.
func (e *Executor) dispatch(ctx context.Context, d *device.Device, req Request) parameter.OperationResult {
	opts := parameter.SetOptions{
		RebootIfNeeded: req.RebootIfNeeded,
		VerifyReadBack: true,
	}

	switch req.Kind {
	case ActionGet:
		result := parameter.OperationResult{
			DeviceID:    d.ID,
			AttemptedAt: time.Now().UTC(),
		}
		value, _, err := e.engine.Get(ctx, d, req.Parameter)
		if err != nil {
			result.ErrorKind = parameter.Classify(err)
			result.ErrorMessage = err.Error()
			return result
		}
		result.Success = true
		result.Value = value
		return result

	case ActionSet:
		return e.engine.Set(ctx, d, req.Parameter, req.Value, opts)

	case ActionBulkSet:
		return collapseBulk(d.ID, e.engine.SetMany(ctx, d, req.Values, opts))

	default: // ActionVerb
		return e.engine.Operate(ctx, d, req.Verb, e.mergeGroupConfig(req))
	}
}

// mergeGroupConfig overlays the group's config onto the request args.
// Request args win on conflict.
func (e *Executor) mergeGroupConfig(req Request) map[string]any {
	if req.GroupName == AllDevicesName {
		return req.Args
	}
	g, err := e.repo.Get(req.GroupName)
	if err != nil || len(g.Config) == 0 {
		return req.Args
	}

	merged := make(map[string]any, len(g.Config)+len(req.Args))
	for k, v := range g.Config {
		merged[k] = v
	}
	for k, v := range req.Args {
		merged[k] = v
	}
	return merged
}

// collapseBulk folds a bulk setter's per-parameter results into one
// per-device result: success only when every parameter applied.
func collapseBulk(deviceID string, results []parameter.OperationResult) parameter.OperationResult {
	out := parameter.OperationResult{
		DeviceID:    deviceID,
		AttemptedAt: time.Now().UTC(),
		Success:     true,
	}
	var failures []string
	for _, r := range results {
		if r.RebootRequired {
			out.RebootRequired = true
		}
		if r.Warning != "" && out.Warning == "" {
			out.Warning = r.Warning
		}
		if !r.Success {
			out.Success = false
			if out.ErrorKind == parameter.KindNone {
				out.ErrorKind = r.ErrorKind
			}
			failures = append(failures, r.ErrorMessage)
		}
	}
	if len(failures) > 0 {
		out.ErrorMessage = strings.Join(failures, "; ")
	}
	return out
}
