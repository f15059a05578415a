package parameter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/jsonpath"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

// Profile selects the control channel family for a device: the Gen1 URL
// prefix and the Gen2 RPC component family.
type Profile struct {
	Gen1Channel string // "relay/0", "light/0", "roller/0"
	Gen2Family  string // "Switch", "Light", "Cover"
}

// Gen1Recipe builds the REST call for a verb on a Gen1 device.
type Gen1Recipe func(profile Profile, args map[string]any) (subpath string, query url.Values, err error)

// Gen2Recipe builds the RPC call for a verb on a Gen2+ device.
type Gen2Recipe func(profile Profile, args map[string]any) (method string, params any, err error)

// Recipe is one control verb's per-generation wire mapping.
type Recipe struct {
	Gen1 Gen1Recipe
	Gen2 Gen2Recipe

	// Interpret extracts the caller-facing value from the raw response
	// (e.g. the has_update flag). Nil keeps the raw payload for
	// status-flavoured verbs and nothing for plain commands.
	Interpret func(gen device.Generation, payload any) any
}

// VerbTable maps control verbs to recipes. The table is extensible without
// touching the engine: Register adds or replaces a verb at runtime.
type VerbTable struct {
	mu      sync.RWMutex
	recipes map[string]Recipe
}

// NewVerbTable creates an empty verb table.
func NewVerbTable() *VerbTable {
	return &VerbTable{recipes: make(map[string]Recipe)}
}

// Register adds or replaces a verb.
func (t *VerbTable) Register(verb string, recipe Recipe) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recipes[verb] = recipe
}

// Get returns the recipe for a verb.
func (t *VerbTable) Get(verb string) (Recipe, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	recipe, ok := t.recipes[verb]
	return recipe, ok
}

// Known reports whether a verb has a recipe.
func (t *VerbTable) Known(verb string) bool {
	_, ok := t.Get(verb)
	return ok
}

// Names returns all registered verbs, sorted.
func (t *VerbTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.recipes))
	for name := range t.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultVerbTable builds the standard verb set.
func DefaultVerbTable() *VerbTable {
	t := NewVerbTable()

	t.Register("on", turnRecipe("on", true))
	t.Register("off", turnRecipe("off", false))

	t.Register("toggle", Recipe{
		Gen1: func(profile Profile, _ map[string]any) (string, url.Values, error) {
			return profile.Gen1Channel, url.Values{"turn": []string{"toggle"}}, nil
		},
		Gen2: func(profile Profile, _ map[string]any) (string, any, error) {
			return profile.Gen2Family + ".Toggle", map[string]any{"id": 0}, nil
		},
	})

	t.Register("brightness", Recipe{
		Gen1: func(_ Profile, args map[string]any) (string, url.Values, error) {
			level, err := brightnessArg(args)
			if err != nil {
				return "", nil, err
			}
			return "light/0", url.Values{"brightness": []string{strconv.Itoa(level)}}, nil
		},
		Gen2: func(_ Profile, args map[string]any) (string, any, error) {
			level, err := brightnessArg(args)
			if err != nil {
				return "", nil, err
			}
			return "Light.Set", map[string]any{"id": 0, "brightness": level}, nil
		},
	})

	t.Register("status", Recipe{
		Gen1: func(_ Profile, _ map[string]any) (string, url.Values, error) {
			return "status", nil, nil
		},
		Gen2: func(_ Profile, _ map[string]any) (string, any, error) {
			return "Shelly.GetStatus", nil, nil
		},
		Interpret: func(_ device.Generation, payload any) any {
			return payload
		},
	})

	t.Register("reboot", Recipe{
		Gen1: func(_ Profile, _ map[string]any) (string, url.Values, error) {
			return "reboot", nil, nil
		},
		Gen2: func(_ Profile, _ map[string]any) (string, any, error) {
			return "Shelly.Reboot", nil, nil
		},
	})

	t.Register("check_updates", Recipe{
		Gen1: func(_ Profile, _ map[string]any) (string, url.Values, error) {
			return "status", nil, nil
		},
		Gen2: func(_ Profile, _ map[string]any) (string, any, error) {
			return "Shelly.GetStatus", nil, nil
		},
		Interpret: interpretUpdateCheck,
	})

	t.Register("update_firmware", Recipe{
		Gen1: func(_ Profile, _ map[string]any) (string, url.Values, error) {
			return "ota", url.Values{"update": []string{"true"}}, nil
		},
		Gen2: func(_ Profile, _ map[string]any) (string, any, error) {
			return "Shelly.Update", map[string]any{"stage": "stable"}, nil
		},
	})

	return t
}

// turnRecipe builds the on/off recipe pair; the two verbs mirror each other.
func turnRecipe(gen1Value string, on bool) Recipe {
	return Recipe{
		Gen1: func(profile Profile, _ map[string]any) (string, url.Values, error) {
			return profile.Gen1Channel, url.Values{"turn": []string{gen1Value}}, nil
		},
		Gen2: func(profile Profile, _ map[string]any) (string, any, error) {
			switch profile.Gen2Family {
			case "Cover":
				if on {
					return "Cover.Open", map[string]any{"id": 0}, nil
				}
				return "Cover.Close", map[string]any{"id": 0}, nil
			default:
				return profile.Gen2Family + ".Set", map[string]any{"id": 0, "on": on}, nil
			}
		},
	}
}

// brightnessArg extracts and bounds the brightness level.
func brightnessArg(args map[string]any) (int, error) {
	raw, ok := args["brightness"]
	if !ok {
		return 0, fmt.Errorf("%w: brightness argument required", ErrUnknownVerb)
	}
	level, ok := toFloat(raw)
	if !ok {
		return 0, fmt.Errorf("%w: brightness must be a number", ErrTypeMismatch)
	}
	if level < 0 || level > 100 {
		return 0, fmt.Errorf("%w: brightness %v out of range 0-100", ErrTypeMismatch, level)
	}
	return int(level), nil
}

// interpretUpdateCheck extracts firmware update availability from a status
// payload (stable channel only).
func interpretUpdateCheck(gen device.Generation, payload any) any {
	out := map[string]any{"has_update": false}

	if gen == device.Gen1 {
		if has, err := jsonpath.Resolve(payload, "update.has_update"); err == nil {
			out["has_update"], _ = has.(bool)
		}
		if version, err := jsonpath.Resolve(payload, "update.new_version"); err == nil {
			out["new_version"] = version
		}
		return out
	}

	if version, err := jsonpath.Resolve(payload, "sys.available_updates.stable.version"); err == nil && version != nil {
		out["has_update"] = true
		out["new_version"] = version
	}
	return out
}

// operateGen1 executes one verb against a Gen1 device.
func (e *Engine) operateGen1(ctx context.Context, d *device.Device, recipe Recipe, profile Profile, args map[string]any, result *OperationResult) {
	if recipe.Gen1 == nil {
		result.fail(KindInternal, fmt.Errorf("%w: verb has no gen1 recipe", ErrUnknownVerb))
		return
	}

	subpath, query, err := recipe.Gen1(profile, args)
	if err != nil {
		result.failFromError(err)
		return
	}

	summary := "GET /" + subpath
	if len(query) > 0 {
		summary += "?" + query.Encode()
	}
	result.RequestSummary = summary

	payload, status, err := e.transport.Gen1Call(ctx, d.IPAddress, http.MethodGet, subpath, query)
	if err != nil {
		result.failFromError(err)
		return
	}
	if status != http.StatusOK {
		result.failFromError(&transport.HTTPError{Status: status})
		return
	}
	if err := gen1DeviceError(payload); err != nil {
		result.failFromError(err)
		return
	}

	if recipe.Interpret != nil {
		result.Value = recipe.Interpret(device.Gen1, payload)
	}
	result.succeed(fmt.Sprintf("HTTP %d", status))
}

// operateGen2 executes one verb against a Gen2+ device.
func (e *Engine) operateGen2(ctx context.Context, d *device.Device, recipe Recipe, profile Profile, args map[string]any, result *OperationResult) {
	if recipe.Gen2 == nil {
		result.fail(KindInternal, fmt.Errorf("%w: verb has no gen2 recipe", ErrUnknownVerb))
		return
	}

	method, params, err := recipe.Gen2(profile, args)
	if err != nil {
		result.failFromError(err)
		return
	}

	result.RequestSummary = "POST /rpc " + method

	payload, rpcErr, err := e.transport.Gen2Call(ctx, d.IPAddress, method, params)
	if err != nil {
		result.failFromError(err)
		return
	}
	if rpcErr != nil {
		result.failFromError(fmt.Errorf("%w: rpc %d %s", ErrDeviceError, rpcErr.Code, rpcErr.Message))
		return
	}

	if recipe.Interpret != nil {
		result.Value = recipe.Interpret(d.Generation, payload)
	}
	result.succeed("rpc ok")
}

// UpdateOptions controls update_firmware behaviour.
//
// Whether the verb should wait for the update to complete is an explicit
// option: the call itself only dispatches the OTA request.
type UpdateOptions struct {
	WaitForCompletion bool
	PollInterval      time.Duration
	PollTimeout       time.Duration
}

// withDefaults fills unset polling fields.
func (o UpdateOptions) withDefaults() UpdateOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 2 * time.Minute
	}
	return o
}

// UpdateFirmware dispatches the OTA call and, when requested, polls the
// update status until the device reports no pending update or the poll
// window closes.
func (e *Engine) UpdateFirmware(ctx context.Context, d *device.Device, opts UpdateOptions) OperationResult {
	result := e.Operate(ctx, d, "update_firmware", nil)
	if !result.Success || !opts.WaitForCompletion {
		return result
	}
	opts = opts.withDefaults()

	deadline := time.Now().Add(opts.PollTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			result.SecondaryError = "update poll cancelled"
			return result
		case <-time.After(opts.PollInterval):
		}

		check := e.Operate(ctx, d, "check_updates", nil)
		if !check.Success {
			continue // Device reboots mid-update; keep polling.
		}
		if info, ok := check.Value.(map[string]any); ok {
			if has, _ := info["has_update"].(bool); !has {
				result.ResponseSummary = "update applied"
				return result
			}
		}
	}

	result.SecondaryError = "update still pending after poll window"
	return result
}
