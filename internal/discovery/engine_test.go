package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

func testEngine(t *testing.T) (*Engine, *device.Registry, string) {
	t.Helper()

	devicesDir := t.TempDir()
	repo := device.NewYAMLRepository(devicesDir)
	registry := device.NewRegistry(repo)

	types, err := capability.LoadTypeTable(filepath.Join(t.TempDir(), "device_types.yaml"))
	if err != nil {
		t.Fatalf("LoadTypeTable() error: %v", err)
	}

	tc := transport.New(transport.Config{
		Timeout:        time.Second,
		RetryBackoff:   time.Millisecond,
		BreakerEnabled: false,
	})

	return NewEngine(tc, registry, types), registry, devicesDir
}

func hostOf(t *testing.T, server *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing server url: %v", err)
	}
	return u.Host
}

func TestScan_SeedsRegistryFromHTTPProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shelly":
			_, _ = w.Write([]byte(`{"type":"SHPLG-S","mac":"E868E7EA6333","fw":"1.11.0","auth":false}`))
		case "/settings":
			_, _ = w.Write([]byte(`{"name":"kitchen-plug","device":{"hostname":"shellyplug-s-E868E7EA6333"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	engine, registry, devicesDir := testEngine(t)

	found, err := engine.Scan(context.Background(), Options{
		HTTPProbe: true,
		IPs:       []string{hostOf(t, server)},
	})
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 device, got %d", len(found))
	}

	d, err := registry.Get("E868E7EA6333")
	if err != nil {
		t.Fatalf("expected device in registry: %v", err)
	}
	if d.Generation != device.Gen1 {
		t.Errorf("expected gen1, got %s", d.Generation)
	}
	if d.DeviceType != "SHPLG-S" {
		t.Errorf("expected SHPLG-S, got %q", d.DeviceType)
	}
	if d.Name != "kitchen-plug" {
		t.Errorf("expected enrichment to fill name, got %q", d.Name)
	}

	// Persisted as data/devices/SHPLG-S_E868E7EA6333.yaml.
	if _, err := os.Stat(filepath.Join(devicesDir, "SHPLG-S_E868E7EA6333.yaml")); err != nil {
		t.Errorf("expected persisted device file: %v", err)
	}
}

func TestScan_ClassifiesGen2FromApp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shelly":
			_, _ = w.Write([]byte(`{"app":"Plus1PM","gen":2,"mac":"A8032AB12345","ver":"1.0.3","model":"SNSW-001P16EU","auth_en":false}`))
		case "/rpc":
			_, _ = w.Write([]byte(`{"id":1,"result":{"name":"office-switch","id":"shellyplus1pm-a8032ab12345"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	engine, registry, _ := testEngine(t)

	if _, err := engine.Scan(context.Background(), Options{
		HTTPProbe: true,
		IPs:       []string{hostOf(t, server)},
	}); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	d, err := registry.Get("A8032AB12345")
	if err != nil {
		t.Fatalf("expected device in registry: %v", err)
	}
	if d.Generation != device.Gen2 {
		t.Errorf("expected gen2, got %s", d.Generation)
	}
	if d.DeviceType != "Plus1PM" {
		t.Errorf("expected Plus1PM, got %q", d.DeviceType)
	}
	if d.Name != "office-switch" {
		t.Errorf("expected enrichment from Shelly.GetDeviceInfo, got %q", d.Name)
	}
}

func TestScan_DiscardsNonShellyResponder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/shelly" {
			_, _ = w.Write([]byte(`{"product":"totally-a-printer"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	engine, registry, _ := testEngine(t)

	found, err := engine.Scan(context.Background(), Options{
		HTTPProbe: true,
		IPs:       []string{hostOf(t, server)},
	})
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected non-shelly responder discarded, got %d devices", len(found))
	}
	if registry.Count() != 0 {
		t.Errorf("expected empty registry, got %d", registry.Count())
	}
}

func TestScan_UnresponsiveTargetsFailFast(t *testing.T) {
	// A probe list with unroutable targets must complete within chunked
	// probe time, not timeout × targets.
	engine, _, _ := testEngine(t)

	targets := make([]string, 0, 32)
	for i := 0; i < 32; i++ {
		// TEST-NET-1 addresses; nothing listens there.
		targets = append(targets, "192.0.2."+strconv.Itoa(i+1)+":80")
	}

	start := time.Now()
	_, err := engine.Scan(context.Background(), Options{
		HTTPProbe:    true,
		IPs:          targets,
		ChunkSize:    16,
		ProbeTimeout: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	// 32 targets in chunks of 16 → roughly two probe windows, with slack
	// for the retry backoff. Far below 32 × 200 ms.
	if elapsed > 3*time.Second {
		t.Errorf("probe not chunk-parallel: took %v", elapsed)
	}
}

func TestScan_RejectsConcurrentScans(t *testing.T) {
	engine, _, _ := testEngine(t)

	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	defer close(block)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Scan(context.Background(), Options{HTTPProbe: true, IPs: []string{hostOf(t, server)}})
	}()

	// Give the first scan a moment to take the lock.
	time.Sleep(50 * time.Millisecond)

	_, err := engine.Scan(context.Background(), Options{HTTPProbe: true})
	if err != ErrScanInProgress {
		t.Errorf("expected ErrScanInProgress, got %v", err)
	}
	<-done
}

func TestHostsInCIDR(t *testing.T) {
	hosts, err := hostsInCIDR("192.168.1.0/30")
	if err != nil {
		t.Fatalf("hostsInCIDR() error: %v", err)
	}
	// /30 has 4 addresses; network and broadcast are dropped.
	if len(hosts) != 2 || hosts[0] != "192.168.1.1" || hosts[1] != "192.168.1.2" {
		t.Errorf("unexpected hosts: %v", hosts)
	}

	hosts, err = hostsInCIDR("192.168.1.0/24")
	if err != nil {
		t.Fatalf("hostsInCIDR() error: %v", err)
	}
	if len(hosts) != 254 {
		t.Errorf("expected 254 hosts in a /24, got %d", len(hosts))
	}

	if _, err := hostsInCIDR("not-a-network"); err == nil {
		t.Error("expected error for malformed CIDR")
	}
}

func TestExpandTargets_Deduplicates(t *testing.T) {
	targets, err := expandTargets([]string{"192.168.1.0/30"}, []string{"192.168.1.1", "10.0.0.5"})
	if err != nil {
		t.Fatalf("expandTargets() error: %v", err)
	}
	if len(targets) != 3 {
		t.Errorf("expected deduplicated targets, got %v", targets)
	}
}

func TestParseMDNSEntry_Gen2TXT(t *testing.T) {
	engine, _, _ := testEngine(t)

	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "shellyplus1pm-a8032ab12345", Service: "_shelly._tcp"},
		HostName:      "shellyplus1pm-a8032ab12345.local.",
		Text:          []string{"app=Plus1PM", "gen=2", "ver=1.0.3"},
	}

	d, ok := engine.parseMDNSEntry(entry)
	if !ok {
		t.Fatal("expected entry to parse")
	}
	if d.ID != "A8032AB12345" {
		t.Errorf("expected MAC from instance name, got %q", d.ID)
	}
	if d.DeviceType != "Plus1PM" || d.Generation != device.Gen2 {
		t.Errorf("unexpected classification: %+v", d)
	}
	if d.DiscoveryMethod != device.MethodMDNS {
		t.Errorf("expected mdns method, got %q", d.DiscoveryMethod)
	}
}

func TestParseMDNSEntry_Gen1HTTPInstance(t *testing.T) {
	engine, _, _ := testEngine(t)

	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "shellyplug-s-E868E7EA6333", Service: "_http._tcp"},
		HostName:      "shellyplug-s-E868E7EA6333.local.",
	}

	d, ok := engine.parseMDNSEntry(entry)
	if !ok {
		t.Fatal("expected entry to parse")
	}
	if d.ID != "E868E7EA6333" {
		t.Errorf("expected MAC from instance suffix, got %q", d.ID)
	}
	if d.Generation != device.Gen1 {
		t.Errorf("expected gen1 inference, got %s", d.Generation)
	}
}

func TestParseMDNSEntry_NonShellyIgnored(t *testing.T) {
	engine, _, _ := testEngine(t)

	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "brother-printer", Service: "_http._tcp"},
	}

	if _, ok := engine.parseMDNSEntry(entry); ok {
		t.Error("expected non-shelly instance to be ignored")
	}
}
