package group

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/parameter"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

// harness wires a registry, engine and executor over httptest devices.
type harness struct {
	executor *Executor
	registry *device.Registry
	repo     *Repository
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	dir := t.TempDir()
	mapping, err := capability.LoadMapping(filepath.Join(dir, "parameter_mappings.yaml"))
	if err != nil {
		t.Fatalf("LoadMapping() error: %v", err)
	}
	types, err := capability.LoadTypeTable(filepath.Join(dir, "device_types.yaml"))
	if err != nil {
		t.Fatalf("LoadTypeTable() error: %v", err)
	}
	catalogue := capability.NewCatalogue(filepath.Join(dir, "capabilities"), mapping, types)

	registry := device.NewRegistry(device.NewYAMLRepository(filepath.Join(dir, "devices")))

	tc := transport.New(transport.Config{
		Timeout:        time.Second,
		RetryBackoff:   time.Millisecond,
		BreakerEnabled: false,
	})
	engine := parameter.NewEngine(tc, catalogue, registry)

	repo := NewRepository(filepath.Join(dir, "groups"))

	return &harness{
		executor: NewExecutor(registry, engine, repo, cfg),
		registry: registry,
		repo:     repo,
	}
}

// addGen1Device registers a gen1 device backed by an httptest server, or an
// unreachable one when server is nil.
func (h *harness) addGen1Device(t *testing.T, mac string, server *httptest.Server) {
	t.Helper()

	d := &device.Device{
		ID:         mac,
		DeviceType: "SHPLG-S",
		Generation: device.Gen1,
	}
	if server != nil {
		u, err := url.Parse(server.URL)
		if err != nil {
			t.Fatalf("parsing server url: %v", err)
		}
		d.IPAddress = u.Host
	} else {
		// A dead port: reserve then close.
		dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		u, _ := url.Parse(dead.URL)
		dead.Close()
		d.IPAddress = u.Host
	}

	if _, err := h.registry.Upsert(context.Background(), d); err != nil {
		t.Fatalf("Upsert(%s) error: %v", mac, err)
	}
}

// okGen1Server answers every request with an empty relay payload.
func okGen1Server(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ison":true}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestExecute_PartialFailureInInputOrder(t *testing.T) {
	h := newHarness(t, Config{})

	serverA := okGen1Server(t)
	serverC := okGen1Server(t)

	h.addGen1Device(t, "AAAAAAAAAA01", serverA)
	h.addGen1Device(t, "BBBBBBBBBB02", nil) // unreachable
	h.addGen1Device(t, "CCCCCCCCCC03", serverC)

	if err := h.repo.Create(testGroup("kitchen", "AAAAAAAAAA01", "BBBBBBBBBB02", "CCCCCCCCCC03")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	result, err := h.executor.Execute(context.Background(), Request{
		GroupName: "kitchen",
		Kind:      ActionVerb,
		Verb:      "toggle",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if result.SuccessCount != 2 || result.FailureCount != 1 || result.SkippedCount != 0 {
		t.Fatalf("expected 2/1/0, got %d/%d/%d",
			result.SuccessCount, result.FailureCount, result.SkippedCount)
	}

	// Per-device results in input order [A, B, C].
	if len(result.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(result.Results))
	}
	order := []string{"AAAAAAAAAA01", "BBBBBBBBBB02", "CCCCCCCCCC03"}
	for i, mac := range order {
		if result.Results[i].DeviceID != mac {
			t.Errorf("position %d: expected %s, got %s", i, mac, result.Results[i].DeviceID)
		}
	}

	if !result.Results[0].Success || !result.Results[2].Success {
		t.Error("expected A and C to succeed")
	}
	if result.Results[1].ErrorKind != parameter.KindUnreachable {
		t.Errorf("expected B unreachable, got %s", result.Results[1].ErrorKind)
	}
}

func TestExecute_UnknownMemberSkipped(t *testing.T) {
	h := newHarness(t, Config{})

	server := okGen1Server(t)
	h.addGen1Device(t, "AAAAAAAAAA01", server)

	if err := h.repo.Create(testGroup("kitchen", "AAAAAAAAAA01", "DEADBEEF0000")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	result, err := h.executor.Execute(context.Background(), Request{
		GroupName: "kitchen",
		Kind:      ActionVerb,
		Verb:      "toggle",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if result.SuccessCount != 1 || result.SkippedCount != 1 {
		t.Fatalf("expected 1 success 1 skipped, got %d/%d", result.SuccessCount, result.SkippedCount)
	}
	skippedResult := result.Results[1]
	if !skippedResult.Skipped || skippedResult.ErrorKind != parameter.KindUnknownDevice {
		t.Errorf("expected skipped unknown-device, got %+v", skippedResult)
	}
}

func TestExecute_AllDevicesInterlock(t *testing.T) {
	h := newHarness(t, Config{})

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"ison":false}`))
	}))
	defer server.Close()

	h.addGen1Device(t, "AAAAAAAAAA01", server)

	// Destructive verb without confirmation: single fleet error, zero I/O.
	_, err := h.executor.Execute(context.Background(), Request{
		GroupName: AllDevicesName,
		Kind:      ActionVerb,
		Verb:      "off",
	})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("expected zero device I/O, got %d requests", hits)
	}

	// With confirm=true the run dispatches to the registry snapshot.
	result, err := h.executor.Execute(context.Background(), Request{
		GroupName: AllDevicesName,
		Kind:      ActionVerb,
		Verb:      "off",
		Confirm:   true,
	})
	if err != nil {
		t.Fatalf("Execute(confirm) error: %v", err)
	}
	if result.SuccessCount != 1 {
		t.Errorf("expected 1 success, got %d", result.SuccessCount)
	}
	if hits == 0 {
		t.Error("expected device I/O after confirmation")
	}
}

func TestExecute_NonDestructiveVerbNeedsNoConfirmation(t *testing.T) {
	h := newHarness(t, Config{})

	server := okGen1Server(t)
	h.addGen1Device(t, "AAAAAAAAAA01", server)

	result, err := h.executor.Execute(context.Background(), Request{
		GroupName: AllDevicesName,
		Kind:      ActionVerb,
		Verb:      "on",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.SuccessCount != 1 {
		t.Errorf("expected success without confirmation for non-destructive verb")
	}
}

func TestExecute_WifiWriteTriggersInterlock(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.executor.Execute(context.Background(), Request{
		GroupName: AllDevicesName,
		Kind:      ActionSet,
		Parameter: "wifi.ssid",
		Value:     "newnet",
	})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("expected ErrConfirmationRequired for wifi write, got %v", err)
	}
}

func TestExecute_UnknownGroupIsFleetError(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.executor.Execute(context.Background(), Request{
		GroupName: "nope",
		Kind:      ActionVerb,
		Verb:      "toggle",
	})
	if !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestExecute_UnknownVerbIsFleetError(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.executor.Execute(context.Background(), Request{
		GroupName: AllDevicesName,
		Kind:      ActionVerb,
		Verb:      "frobnicate",
	})
	if !errors.Is(err, ErrUnknownVerb) {
		t.Errorf("expected ErrUnknownVerb, got %v", err)
	}
}

func TestExecute_SetAcrossGroup(t *testing.T) {
	h := newHarness(t, Config{})

	var mu sync.Mutex
	queries := make([]string, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"eco_mode_enabled":true}`))
	}))
	defer server.Close()

	h.addGen1Device(t, "AAAAAAAAAA01", server)
	if err := h.repo.Create(testGroup("kitchen", "AAAAAAAAAA01")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	result, err := h.executor.Execute(context.Background(), Request{
		GroupName: "kitchen",
		Kind:      ActionSet,
		Parameter: "eco_mode",
		Value:     true,
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.SuccessCount != 1 {
		t.Fatalf("expected success, got %+v", result.Results[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(queries) == 0 || queries[0] != "eco_mode_enabled=true" {
		t.Errorf("expected legacy wire write, got %v", queries)
	}
}

func TestExecute_GroupConfigOverlay(t *testing.T) {
	h := newHarness(t, Config{})

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/light/0" {
			gotQuery = r.URL.RawQuery
		}
		_, _ = w.Write([]byte(`{"ison":true}`))
	}))
	defer server.Close()

	h.addGen1Device(t, "AAAAAAAAAA01", server)

	g := testGroup("dimmers", "AAAAAAAAAA01")
	g.Config = map[string]any{"brightness": 40}
	if err := h.repo.Create(g); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	result, err := h.executor.Execute(context.Background(), Request{
		GroupName: "dimmers",
		Kind:      ActionVerb,
		Verb:      "brightness",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.SuccessCount != 1 {
		t.Fatalf("expected success, got %+v", result.Results[0])
	}
	if gotQuery != "brightness=40" {
		t.Errorf("expected group config overlay to supply brightness, got %q", gotQuery)
	}
}

func TestExecute_CancellationMarksRemainder(t *testing.T) {
	h := newHarness(t, Config{Concurrency: 1})

	block := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer slow.Close()
	defer close(block)

	h.addGen1Device(t, "AAAAAAAAAA01", slow)
	h.addGen1Device(t, "BBBBBBBBBB02", slow)
	h.addGen1Device(t, "CCCCCCCCCC03", slow)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result, err := h.executor.Execute(ctx, Request{
		GroupName: AllDevicesName,
		Kind:      ActionVerb,
		Verb:      "status",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	var cancelled int
	for _, r := range result.Results {
		if r.ErrorKind == parameter.KindCancelled {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("expected cancelled results after group cancellation")
	}
	if result.SuccessCount > 0 {
		t.Errorf("no device should have completed, got %d successes", result.SuccessCount)
	}
}

func TestExecute_RecorderReceivesRun(t *testing.T) {
	h := newHarness(t, Config{})

	server := okGen1Server(t)
	h.addGen1Device(t, "AAAAAAAAAA01", server)

	var mu sync.Mutex
	var recorded *GroupResult
	h.executor.SetRecorder(recorderFunc(func(_ context.Context, result *GroupResult) {
		mu.Lock()
		recorded = result
		mu.Unlock()
	}))

	if _, err := h.executor.Execute(context.Background(), Request{
		GroupName: AllDevicesName,
		Kind:      ActionVerb,
		Verb:      "toggle",
	}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if recorded == nil || recorded.RunID == "" {
		t.Error("expected recorder to receive the run")
	}
}

// recorderFunc adapts a function to the Recorder interface.
type recorderFunc func(ctx context.Context, result *GroupResult)

func (f recorderFunc) RecordRun(ctx context.Context, result *GroupResult) { f(ctx, result) }
