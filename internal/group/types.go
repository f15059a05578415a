package group

import (
	"strings"
	"time"
)

// AllDevicesName is the reserved implicit group resolving to the current
// registry snapshot. It is never persisted, and destructive verbs against
// it require confirmation.
const AllDevicesName = "all-devices"

// Group is a named, persisted, ordered set of device MACs.
//
// A device referenced in a group but absent from the registry is retained:
// groups don't lose devices just because discovery missed them.
type Group struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	DeviceIDs   []string `yaml:"device_ids" json:"device_ids"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Config is an optional overlay merged into operation arguments when
	// operations are executed on the group.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// DeepCopy creates an independent copy of the group.
func (g *Group) DeepCopy() *Group {
	if g == nil {
		return nil
	}
	cpy := *g
	if g.DeviceIDs != nil {
		cpy.DeviceIDs = append([]string(nil), g.DeviceIDs...)
	}
	if g.Tags != nil {
		cpy.Tags = append([]string(nil), g.Tags...)
	}
	if g.Config != nil {
		cpy.Config = make(map[string]any, len(g.Config))
		for k, v := range g.Config {
			cpy.Config[k] = v
		}
	}
	return &cpy
}

// HasDevice reports whether the group references a MAC.
func (g *Group) HasDevice(mac string) bool {
	for _, id := range g.DeviceIDs {
		if id == mac {
			return true
		}
	}
	return false
}

// AddDevice appends a MAC, preserving order and uniqueness. Reports whether
// the set changed.
func (g *Group) AddDevice(mac string) bool {
	if g.HasDevice(mac) {
		return false
	}
	g.DeviceIDs = append(g.DeviceIDs, mac)
	return true
}

// RemoveDevice removes a MAC. Reports whether the set changed.
func (g *Group) RemoveDevice(mac string) bool {
	for i, id := range g.DeviceIDs {
		if id == mac {
			g.DeviceIDs = append(g.DeviceIDs[:i], g.DeviceIDs[i+1:]...)
			return true
		}
	}
	return false
}

// FileName derives the on-disk filename from the group name, replacing
// characters that are unsafe in filenames with underscores.
func (g *Group) FileName() string {
	return SafeFileName(g.Name) + ".yaml"
}

// SafeFileName sanitises a group name for filesystem use.
func SafeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
