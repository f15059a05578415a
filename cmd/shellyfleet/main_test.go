package main

import (
	"context"
	"os"
	"testing"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore chdir: %v", err)
		}
	})
}

func TestRun_NoArgsShowsUsage(t *testing.T) {
	chdirTemp(t)

	if code := run(context.Background(), nil); code != exitBadRequest {
		t.Errorf("expected exit %d, got %d", exitBadRequest, code)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	chdirTemp(t)

	if code := run(context.Background(), []string{"frobnicate"}); code != exitBadRequest {
		t.Errorf("expected exit %d, got %d", exitBadRequest, code)
	}
}

func TestRun_DevicesListEmpty(t *testing.T) {
	chdirTemp(t)

	if code := run(context.Background(), []string{"devices", "list"}); code != exitOK {
		t.Errorf("expected exit %d, got %d", exitOK, code)
	}
}

func TestRun_GroupLifecycle(t *testing.T) {
	chdirTemp(t)
	ctx := context.Background()

	if code := run(ctx, []string{"groups", "create", "-devices", "E8:68:E7:EA:63:33", "kitchen"}); code != exitOK {
		t.Fatalf("groups create: expected exit %d, got %d", exitOK, code)
	}
	if code := run(ctx, []string{"groups", "show", "kitchen"}); code != exitOK {
		t.Errorf("groups show: expected exit %d, got %d", exitOK, code)
	}
	if code := run(ctx, []string{"groups", "delete", "kitchen"}); code != exitOK {
		t.Errorf("groups delete: expected exit %d, got %d", exitOK, code)
	}
}

func TestRun_AllDevicesInterlockExitCode(t *testing.T) {
	chdirTemp(t)

	// Destructive verb against all-devices without --confirm exits 2.
	code := run(context.Background(), []string{"groups", "operate", "all-devices", "off"})
	if code != exitBadRequest {
		t.Errorf("expected exit %d for unconfirmed destructive verb, got %d", exitBadRequest, code)
	}
}

func TestRun_ReservedGroupName(t *testing.T) {
	chdirTemp(t)

	code := run(context.Background(), []string{"groups", "create", "all-devices"})
	if code != exitBadRequest {
		t.Errorf("expected exit %d for reserved name, got %d", exitBadRequest, code)
	}
}

func TestRun_CapabilitiesListEmpty(t *testing.T) {
	chdirTemp(t)

	if code := run(context.Background(), []string{"capabilities", "list"}); code != exitOK {
		t.Errorf("expected exit %d, got %d", exitOK, code)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{input: "true", want: true},
		{input: "false", want: false},
		{input: "null", want: nil},
		{input: "42", want: int64(42)},
		{input: "33.5", want: 33.5},
		{input: "follow", want: "follow"},
		{input: "on", want: "on"}, // stays a string; coercion rejects it later
	}
	for _, tt := range tests {
		if got := parseValue(tt.input); got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v", tt.input, got, got, tt.want)
		}
	}
}

func TestSplitComma(t *testing.T) {
	got := splitComma("192.168.1.0/24, 10.0.0.0/24 ,,")
	if len(got) != 2 || got[0] != "192.168.1.0/24" || got[1] != "10.0.0.0/24" {
		t.Errorf("unexpected split: %v", got)
	}
	if splitComma("") != nil {
		t.Error("expected nil for empty input")
	}
}
