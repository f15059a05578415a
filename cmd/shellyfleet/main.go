// Shelly Fleet Core - Device Fleet Control Plane
//
// This is the main entry point for the shellyfleet CLI and service. It
// manages a fleet of Shelly smart devices across hardware generations:
// discovery, capability cataloguing, uniform parameter access, and group
// fan-out operations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/api"
	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/discovery"
	"github.com/nerrad567/shelly-fleet-core/internal/group"
	"github.com/nerrad567/shelly-fleet-core/internal/history"
	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/config"
	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/database"
	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/tsdb"
	"github.com/nerrad567/shelly-fleet-core/internal/parameter"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Exit codes for the CLI façade.
const (
	exitOK         = 0 // all per-device results succeeded
	exitPartial    = 1 // one or more per-device failures
	exitBadRequest = 2 // confirmation required or invalid arguments
	exitInternal   = 3 // internal error
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:]))
}

// run dispatches the CLI and returns the process exit code.
func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		usage()
		return exitBadRequest
	}

	configPath := os.Getenv("SHELLYFLEET_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInternal
	}

	log := logging.New(cfg.Logging, version)

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInternal
	}
	defer app.close()

	code, err := app.dispatch(ctx, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}

// app wires the core subsystems. Initialisation order: catalogue →
// registry → discovery → engine → executor.
type app struct {
	cfg *config.Config
	log *logging.Logger

	transport  *transport.Client
	catalogue  *capability.Catalogue
	discoverer *capability.Discoverer
	registry   *device.Registry
	scanner    *discovery.Engine
	engine     *parameter.Engine
	groups     *group.Repository
	executor   *group.Executor
}

func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app, error) {
	tc := transport.New(transport.Config{
		Timeout:            time.Duration(cfg.Transport.Timeout) * time.Second,
		RetryBackoff:       time.Duration(cfg.Transport.RetryBackoffMs) * time.Millisecond,
		IdleConnTimeout:    time.Duration(cfg.Transport.IdleConnTimeout) * time.Second,
		BreakerEnabled:     cfg.Transport.Breaker.Enabled,
		BreakerMaxFailures: uint32(cfg.Transport.Breaker.MaxFailures), //nolint:gosec // validated positive
		BreakerOpenFor:     time.Duration(cfg.Transport.Breaker.OpenSeconds) * time.Second,
	})
	tc.SetLogger(log.Component("transport"))

	// Catalogue: mapping table, static type knowledge, per-SKU definitions.
	mapping, err := capability.LoadMapping(cfg.Data.ParameterMappingsFile)
	if err != nil {
		return nil, fmt.Errorf("loading parameter mappings: %w", err)
	}
	if err := capability.WriteDefaultTypeTable(cfg.Data.DeviceTypesFile); err != nil {
		return nil, fmt.Errorf("writing default device types: %w", err)
	}
	types, err := capability.LoadTypeTable(cfg.Data.DeviceTypesFile)
	if err != nil {
		return nil, fmt.Errorf("loading device types: %w", err)
	}
	catalogue := capability.NewCatalogue(cfg.Data.CapabilitiesDir, mapping, types)
	catalogue.SetLogger(log.Component("capability"))
	if err := catalogue.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading capability catalogue: %w", err)
	}

	// Registry.
	repo := device.NewYAMLRepository(cfg.Data.DevicesDir)
	repo.SetLogger(log.Component("device"))
	registry := device.NewRegistry(repo)
	registry.SetLogger(log.Component("device"))
	if err := registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}

	// Discovery.
	scanner := discovery.NewEngine(tc, registry, types)
	scanner.SetLogger(log.Component("discovery"))

	// Engine.
	engine := parameter.NewEngine(tc, catalogue, registry)
	engine.SetLogger(log.Component("parameter"))
	engine.SetRebootGrace(time.Duration(cfg.Executor.RebootGrace) * time.Second)

	// Groups + executor.
	groups := group.NewRepository(cfg.Data.GroupsDir)
	groups.SetLogger(log.Component("group"))
	if err := groups.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading groups: %w", err)
	}
	executor := group.NewExecutor(registry, engine, groups, group.Config{
		Concurrency:      cfg.Executor.Concurrency,
		DestructiveVerbs: cfg.Executor.DestructiveVerbs,
	})
	executor.SetLogger(log.Component("executor"))

	return &app{
		cfg:        cfg,
		log:        log,
		transport:  tc,
		catalogue:  catalogue,
		discoverer: capability.NewDiscoverer(tc, mapping),
		registry:   registry,
		scanner:    scanner,
		engine:     engine,
		groups:     groups,
		executor:   executor,
	}, nil
}

func (a *app) close() {
	a.transport.Close()
}

// dispatch routes the top-level command.
func (a *app) dispatch(ctx context.Context, args []string) (int, error) {
	switch args[0] {
	case "discover":
		return a.cmdDiscover(ctx, args[1:])
	case "devices":
		return a.cmdDevices(ctx, args[1:])
	case "groups":
		return a.cmdGroups(ctx, args[1:])
	case "parameters":
		return a.cmdParameters(ctx, args[1:])
	case "capabilities":
		return a.cmdCapabilities(ctx, args[1:])
	case "serve":
		return a.cmdServe(ctx, args[1:])
	case "version":
		fmt.Printf("shellyfleet %s (%s, %s)\n", version, commit, date)
		return exitOK, nil
	case "help", "-h", "--help":
		usage()
		return exitOK, nil
	default:
		usage()
		return exitBadRequest, fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: shellyfleet <command> [arguments]

Commands:
  discover                        scan the network for devices
  devices   list|show|refresh|delete   manage known devices
  groups    create|list|show|update|delete|add-device|remove-device|operate
  parameters list|get|set|apply   read and write logical parameters
  capabilities list|show|discover|refresh|check-parameter|standardize
  serve                           run the HTTP service
  version                         print version information
`)
}

// printJSON renders a result to stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v) //nolint:errcheck // Best-effort terminal output
}

// exitForGroupResult maps aggregate counts onto the CLI contract.
func exitForGroupResult(result *group.GroupResult) int {
	if result.FailureCount > 0 {
		return exitPartial
	}
	return exitOK
}

// exitForFleetError maps contract violations onto the CLI contract.
func exitForFleetError(err error) int {
	if errors.Is(err, group.ErrConfirmationRequired) ||
		errors.Is(err, group.ErrUnknownVerb) ||
		errors.Is(err, group.ErrGroupNotFound) ||
		errors.Is(err, group.ErrReservedName) {
		return exitBadRequest
	}
	return exitInternal
}

// cmdDiscover runs one discovery scan.
func (a *app) cmdDiscover(ctx context.Context, args []string) (int, error) {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	network := fs.String("network", "", "CIDR block to probe (repeatable via comma)")
	ips := fs.String("ips", "", "comma-separated explicit IPs to probe")
	noMDNS := fs.Bool("no-mdns", false, "disable the mDNS listener")
	if err := fs.Parse(args); err != nil {
		return exitBadRequest, nil
	}

	opts := discovery.Options{
		MDNS:         a.cfg.Discovery.MDNS && !*noMDNS,
		HTTPProbe:    a.cfg.Discovery.HTTPProbe,
		Networks:     a.cfg.Discovery.Networks,
		ChunkSize:    a.cfg.Discovery.ChunkSize,
		ProbeTimeout: time.Duration(a.cfg.Discovery.ProbeTimeout) * time.Second,
		MDNSWindow:   time.Duration(a.cfg.Discovery.MDNSWindow) * time.Second,
	}
	if *network != "" {
		opts.Networks = splitComma(*network)
	}
	if *ips != "" {
		opts.IPs = splitComma(*ips)
	}

	found, err := a.scanner.Scan(ctx, opts)
	if err != nil {
		return exitInternal, err
	}

	printJSON(map[string]any{"found": len(found), "devices": found})
	return exitOK, nil
}

// cmdDevices manages the registry.
func (a *app) cmdDevices(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 {
		return exitBadRequest, fmt.Errorf("devices: subcommand required (list|show|refresh|delete)")
	}

	switch args[0] {
	case "list":
		printJSON(map[string]any{"devices": a.registry.List()})
		return exitOK, nil

	case "show":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("devices show: MAC required")
		}
		mac, err := device.NormalizeMAC(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		d, err := a.registry.Get(mac)
		if err != nil {
			return exitBadRequest, err
		}
		printJSON(d)
		return exitOK, nil

	case "refresh":
		// Re-probe known devices (one MAC, or the whole registry) so IPs,
		// firmware and names catch up with reality.
		var ips []string
		if len(args) >= 2 {
			mac, err := device.NormalizeMAC(args[1])
			if err != nil {
				return exitBadRequest, err
			}
			d, err := a.registry.Get(mac)
			if err != nil {
				return exitBadRequest, err
			}
			if !d.Reachable() {
				return exitPartial, fmt.Errorf("device %s has no ip address", mac)
			}
			ips = []string{d.IPAddress}
		} else {
			for _, d := range a.registry.List() {
				if d.Reachable() {
					ips = append(ips, d.IPAddress)
				}
			}
		}

		found, err := a.scanner.Scan(ctx, discovery.Options{
			HTTPProbe:    true,
			IPs:          ips,
			ChunkSize:    a.cfg.Discovery.ChunkSize,
			ProbeTimeout: time.Duration(a.cfg.Discovery.ProbeTimeout) * time.Second,
		})
		if err != nil {
			return exitInternal, err
		}
		printJSON(map[string]any{"refreshed": len(found), "devices": found})
		return exitOK, nil

	case "delete":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("devices delete: MAC required")
		}
		mac, err := device.NormalizeMAC(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		if err := a.registry.Delete(ctx, mac); err != nil {
			return exitBadRequest, err
		}
		printJSON(map[string]any{"deleted": mac})
		return exitOK, nil

	default:
		return exitBadRequest, fmt.Errorf("devices: unknown subcommand %q", args[0])
	}
}

// cmdGroups manages groups and runs group operations.
func (a *app) cmdGroups(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 {
		return exitBadRequest, fmt.Errorf("groups: subcommand required")
	}

	switch args[0] {
	case "list":
		printJSON(map[string]any{"groups": a.groups.List()})
		return exitOK, nil

	case "show":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("groups show: name required")
		}
		g, err := a.groups.Get(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		printJSON(g)
		return exitOK, nil

	case "create":
		fs := flag.NewFlagSet("groups create", flag.ContinueOnError)
		description := fs.String("description", "", "group description")
		devices := fs.String("devices", "", "comma-separated MACs")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() < 1 {
			return exitBadRequest, fmt.Errorf("groups create: name required")
		}
		g := &group.Group{
			Name:        fs.Arg(0),
			Description: *description,
		}
		for _, mac := range splitComma(*devices) {
			normalized, err := device.NormalizeMAC(mac)
			if err != nil {
				return exitBadRequest, err
			}
			g.AddDevice(normalized)
		}
		if err := a.groups.Create(g); err != nil {
			return exitForFleetError(err), err
		}
		printJSON(g)
		return exitOK, nil

	case "update":
		fs := flag.NewFlagSet("groups update", flag.ContinueOnError)
		rename := fs.String("rename", "", "new group name")
		description := fs.String("description", "", "new description")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() < 1 {
			return exitBadRequest, fmt.Errorf("groups update: name required")
		}
		name := fs.Arg(0)
		if *rename != "" {
			if err := a.groups.Rename(name, *rename); err != nil {
				return exitForFleetError(err), err
			}
			name = *rename
		}
		if *description != "" {
			g, err := a.groups.Get(name)
			if err != nil {
				return exitBadRequest, err
			}
			g.Description = *description
			if err := a.groups.Update(g); err != nil {
				return exitForFleetError(err), err
			}
		}
		g, err := a.groups.Get(name)
		if err != nil {
			return exitBadRequest, err
		}
		printJSON(g)
		return exitOK, nil

	case "delete":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("groups delete: name required")
		}
		if err := a.groups.Delete(args[1]); err != nil {
			return exitForFleetError(err), err
		}
		printJSON(map[string]any{"deleted": args[1]})
		return exitOK, nil

	case "add-device", "remove-device":
		if len(args) < 3 {
			return exitBadRequest, fmt.Errorf("groups %s: name and MAC required", args[0])
		}
		mac, err := device.NormalizeMAC(args[2])
		if err != nil {
			return exitBadRequest, err
		}
		g, err := a.groups.Get(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		if args[0] == "add-device" {
			g.AddDevice(mac)
		} else {
			g.RemoveDevice(mac)
		}
		if err := a.groups.Update(g); err != nil {
			return exitForFleetError(err), err
		}
		printJSON(g)
		return exitOK, nil

	case "operate":
		fs := flag.NewFlagSet("groups operate", flag.ContinueOnError)
		confirm := fs.Bool("confirm", false, "confirm destructive all-devices operations")
		reboot := fs.Bool("reboot-if-needed", false, "reboot devices flagging restart_required")
		brightness := fs.Int("brightness", -1, "brightness level for the brightness verb")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() < 2 {
			return exitBadRequest, fmt.Errorf("groups operate: name and verb required")
		}

		req := group.Request{
			GroupName:      fs.Arg(0),
			Kind:           group.ActionVerb,
			Verb:           fs.Arg(1),
			Confirm:        *confirm,
			RebootIfNeeded: *reboot,
		}
		if *brightness >= 0 {
			req.Args = map[string]any{"brightness": *brightness}
		}

		result, err := a.executor.Execute(ctx, req)
		if err != nil {
			return exitForFleetError(err), err
		}
		printJSON(result)
		return exitForGroupResult(result), nil

	default:
		return exitBadRequest, fmt.Errorf("groups: unknown subcommand %q", args[0])
	}
}

// cmdParameters reads and writes logical parameters.
func (a *app) cmdParameters(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 {
		return exitBadRequest, fmt.Errorf("parameters: subcommand required (list|get|set|apply)")
	}

	switch args[0] {
	case "list":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("parameters list: MAC required")
		}
		mac, err := device.NormalizeMAC(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		d, err := a.registry.Get(mac)
		if err != nil {
			return exitBadRequest, err
		}
		printJSON(a.engine.Supported(d))
		return exitOK, nil

	case "get":
		if len(args) < 3 {
			return exitBadRequest, fmt.Errorf("parameters get: MAC and name required")
		}
		mac, err := device.NormalizeMAC(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		d, err := a.registry.Get(mac)
		if err != nil {
			return exitBadRequest, err
		}
		value, meta, err := a.engine.Get(ctx, d, args[2])
		if err != nil {
			return exitPartial, err
		}
		printJSON(map[string]any{"device_id": mac, "parameter": args[2], "value": value, "meta": meta})
		return exitOK, nil

	case "set":
		fs := flag.NewFlagSet("parameters set", flag.ContinueOnError)
		reboot := fs.Bool("reboot-if-needed", false, "reboot when the write requires restart")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() < 3 {
			return exitBadRequest, fmt.Errorf("parameters set: MAC, name and value required")
		}
		mac, err := device.NormalizeMAC(fs.Arg(0))
		if err != nil {
			return exitBadRequest, err
		}
		d, err := a.registry.Get(mac)
		if err != nil {
			return exitBadRequest, err
		}

		result := a.engine.Set(ctx, d, fs.Arg(1), parseValue(fs.Arg(2)), parameter.SetOptions{
			RebootIfNeeded: *reboot,
			VerifyReadBack: true,
		})
		printJSON(result)
		if !result.Success {
			return exitPartial, nil
		}
		return exitOK, nil

	case "apply":
		fs := flag.NewFlagSet("parameters apply", flag.ContinueOnError)
		confirm := fs.Bool("confirm", false, "confirm destructive all-devices writes")
		reboot := fs.Bool("reboot-if-needed", false, "reboot when writes require restart")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() < 3 {
			return exitBadRequest, fmt.Errorf("parameters apply: group, name and value required")
		}

		result, err := a.executor.Execute(ctx, group.Request{
			GroupName:      fs.Arg(0),
			Kind:           group.ActionSet,
			Parameter:      fs.Arg(1),
			Value:          parseValue(fs.Arg(2)),
			Confirm:        *confirm,
			RebootIfNeeded: *reboot,
		})
		if err != nil {
			return exitForFleetError(err), err
		}
		printJSON(result)
		return exitForGroupResult(result), nil

	default:
		return exitBadRequest, fmt.Errorf("parameters: unknown subcommand %q", args[0])
	}
}

// cmdCapabilities manages the capability catalogue.
func (a *app) cmdCapabilities(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 {
		return exitBadRequest, fmt.Errorf("capabilities: subcommand required")
	}

	switch args[0] {
	case "list":
		defs := a.catalogue.List()
		out := make([]map[string]any, 0, len(defs))
		for _, def := range defs {
			out = append(out, map[string]any{
				"device_type": def.DeviceType,
				"name":        def.Name,
				"generation":  def.Generation,
				"apis":        len(def.APIs),
				"parameters":  len(def.Parameters),
			})
		}
		printJSON(map[string]any{"capabilities": out})
		return exitOK, nil

	case "show":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("capabilities show: device type required")
		}
		def, err := a.catalogue.Get(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		printJSON(def)
		return exitOK, nil

	case "discover":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("capabilities discover: MAC required")
		}
		mac, err := device.NormalizeMAC(args[1])
		if err != nil {
			return exitBadRequest, err
		}
		d, err := a.registry.Get(mac)
		if err != nil {
			return exitBadRequest, err
		}
		def, err := a.discoverer.Discover(ctx, d)
		if err != nil {
			return exitPartial, err
		}
		if err := a.catalogue.Save(def, false); err != nil {
			return exitInternal, err
		}
		printJSON(def)
		return exitOK, nil

	case "refresh":
		fs := flag.NewFlagSet("capabilities refresh", flag.ContinueOnError)
		force := fs.Bool("force", false, "overwrite hand-edited files")
		if err := fs.Parse(args[1:]); err != nil {
			return exitBadRequest, nil
		}
		err := a.catalogue.Refresh(ctx, a.registry.List(),
			capability.RefreshOptions{Force: *force}, a.discoverer.Discover)
		if err != nil {
			return exitInternal, err
		}
		printJSON(map[string]any{"definitions": len(a.catalogue.List())})
		return exitOK, nil

	case "check-parameter":
		if len(args) < 2 {
			return exitBadRequest, fmt.Errorf("capabilities check-parameter: name required")
		}
		printJSON(map[string]any{
			"parameter":    args[1],
			"device_types": a.catalogue.DevicesSupporting(args[1]),
		})
		return exitOK, nil

	case "standardize":
		fs := flag.NewFlagSet("capabilities standardize", flag.ContinueOnError)
		dryRun := fs.Bool("dry-run", false, "report the diff without applying")
		if err := fs.Parse(args[1:]); err != nil {
			return exitBadRequest, nil
		}
		diffs, err := a.catalogue.Standardize(*dryRun)
		if err != nil {
			return exitInternal, err
		}
		printJSON(map[string]any{"dry_run": *dryRun, "renames": diffs})
		return exitOK, nil

	default:
		return exitBadRequest, fmt.Errorf("capabilities: unknown subcommand %q", args[0])
	}
}

// cmdServe runs the long-lived HTTP service with the history store and the
// optional telemetry sink wired in.
func (a *app) cmdServe(ctx context.Context, _ []string) (int, error) {
	started := time.Now()

	// Operation history (best effort: a failed open disables history).
	var store *history.Store
	db, err := database.Open(database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		a.log.Warn("operation history disabled", "error", err)
	} else {
		defer db.Close() //nolint:errcheck // Shutdown path
		if err := db.Migrate(ctx); err != nil {
			return exitInternal, fmt.Errorf("running migrations: %w", err)
		}
		store = history.NewStore(db)
		store.SetLogger(a.log.Component("history"))
		a.executor.SetRecorder(store)
		a.log.Info("operation history enabled", "path", a.cfg.Database.Path)
	}

	// Optional telemetry sink.
	if sink, err := tsdb.Connect(a.cfg.TSDB); err == nil {
		defer sink.Close()
		sink.SetOnError(func(err error) {
			a.log.Warn("telemetry write failed", "error", err)
		})
		if store != nil {
			a.executor.SetRecorder(multiRecorder{store, sink})
		} else {
			a.executor.SetRecorder(sink)
		}
		a.log.Info("telemetry sink connected", "url", a.cfg.TSDB.URL)
	} else if !errors.Is(err, tsdb.ErrDisabled) {
		a.log.Warn("telemetry sink unavailable", "error", err)
	}

	server := api.New(api.Deps{
		Config:     a.cfg.API,
		WS:         a.cfg.WebSocket,
		Discovery:  a.cfg.Discovery,
		Logger:     a.log,
		Registry:   a.registry,
		Catalogue:  a.catalogue,
		Discoverer: a.discoverer,
		Scanner:    a.scanner,
		Engine:     a.engine,
		Executor:   a.executor,
		Groups:     a.groups,
		History:    store,
		Version:    version,
		Started:    started,
	})

	server.Start(ctx)
	a.log.Info("shellyfleet service started",
		"version", version, "commit", commit, "build_date", date,
		"devices", a.registry.Count())

	<-ctx.Done()
	a.log.Info("shutting down")
	if err := server.Close(); err != nil {
		return exitInternal, err
	}
	return exitOK, nil
}

// multiRecorder fans run records out to several recorders.
type multiRecorder []group.Recorder

func (m multiRecorder) RecordRun(ctx context.Context, result *group.GroupResult) {
	for _, r := range m {
		r.RecordRun(ctx, result)
	}
}

// parseValue interprets a CLI value literally: booleans and numbers decode,
// everything else stays a string. The engine's coercion layer owns
// strictness.
func parseValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// splitComma splits a comma-separated flag value into trimmed entries.
func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
