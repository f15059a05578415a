package jsonpath

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return v
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []Segment
		wantErr bool
	}{
		{
			name: "simple dotted",
			path: "mqtt.enable",
			want: []Segment{{Key: "mqtt"}, {Key: "enable"}},
		},
		{
			name: "component key with colon",
			path: "switch:0.in_mode",
			want: []Segment{{Key: "switch:0"}, {Key: "in_mode"}},
		},
		{
			name: "bracket index",
			path: "valves[0].state",
			want: []Segment{{Key: "valves", Index: 0, HasIndex: true}, {Key: "state"}},
		},
		{
			name: "single key",
			path: "eco_mode_enabled",
			want: []Segment{{Key: "eco_mode_enabled"}},
		},
		{
			name: "empty path",
			path: "",
			want: nil,
		},
		{
			name:    "empty segment",
			path:    "mqtt..enable",
			wantErr: true,
		},
		{
			name:    "unterminated index",
			path:    "valves[0.state",
			wantErr: true,
		},
		{
			name:    "negative index",
			path:    "valves[-1].state",
			wantErr: true,
		},
		{
			name:    "non-numeric index",
			path:    "valves[x].state",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.path, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	payload := decode(t, `{
		"mqtt": {"enable": true, "server": "10.0.0.2:1883"},
		"switch:0": {"in_mode": "follow", "id": 0},
		"valves": [{"state": "closed"}, {"state": "open"}],
		"sta": {"ip": null},
		"max_power": 2500
	}`)

	tests := []struct {
		name string
		path string
		want any
	}{
		{name: "nested bool", path: "mqtt.enable", want: true},
		{name: "nested string", path: "mqtt.server", want: "10.0.0.2:1883"},
		{name: "component key", path: "switch:0.in_mode", want: "follow"},
		{name: "array element", path: "valves[0].state", want: "closed"},
		{name: "second element", path: "valves[1].state", want: "open"},
		{name: "top-level number", path: "max_power", want: float64(2500)},
		{name: "null leaf", path: "sta.ip", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(payload, tt.path)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.path, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	payload := decode(t, `{"mqtt": {"enable": true}, "valves": [{"state": "closed"}]}`)

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "missing key", path: "cloud.enabled", want: ErrPathMissing},
		{name: "missing nested key", path: "mqtt.server", want: ErrPathMissing},
		{name: "index out of range", path: "valves[3].state", want: ErrPathMissing},
		{name: "descend through leaf", path: "mqtt.enable.deeper", want: ErrNotTraversable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(payload, tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve(%q) error = %v, want %v", tt.path, err, tt.want)
			}
		})
	}
}

func TestLastSegment(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "mqtt.enable", want: "enable"},
		{path: "eco_mode_enabled", want: "eco_mode_enabled"},
		{path: "valves[0].state", want: "state"},
		{path: "switch:0.in_mode", want: "in_mode"},
	}

	for _, tt := range tests {
		if got := LastSegment(tt.path); got != tt.want {
			t.Errorf("LastSegment(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFlatten(t *testing.T) {
	payload := decode(t, `{
		"wifi_sta": {"enabled": true, "ssid": "iot"},
		"relays": [{"ison": false}],
		"uptime": 4242
	}`)

	got := Flatten(payload)

	want := map[string]any{
		"wifi_sta.enabled": true,
		"wifi_sta.ssid":    "iot",
		"relays[0].ison":   false,
		"uptime":           float64(4242),
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}

func TestFlatten_EmptyContainers(t *testing.T) {
	payload := decode(t, `{"actions": {}, "schedules": []}`)

	got := Flatten(payload)

	if _, ok := got["actions"]; !ok {
		t.Error("expected empty object leaf to be recorded")
	}
	if _, ok := got["schedules"]; !ok {
		t.Error("expected empty array leaf to be recorded")
	}
}
