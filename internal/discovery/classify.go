package discovery

import (
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// classify turns a /shelly identification payload into a partial device
// record, or reports that the responder is not a Shelly device.
//
// Classification rules:
//
//   - Gen1 iff the payload has a "type" field matching a known Gen1 SKU or
//     prefix (SHSW-, SHPLG-, ...)
//   - Gen2+ iff the payload has an "app" field; a "gen" field pins the
//     generation, otherwise the model prefix decides
//   - Anything else is silently discarded
func (e *Engine) classify(ip string, payload any) (*device.Device, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}

	now := time.Now().UTC()

	if typ, ok := stringField(obj, "type"); ok {
		if !e.types.KnownGen1(typ) {
			return nil, false
		}

		mac, ok := stringField(obj, "mac")
		if !ok {
			return nil, false
		}
		normalized, err := device.NormalizeMAC(mac)
		if err != nil {
			return nil, false
		}

		d := &device.Device{
			ID:              normalized,
			DeviceType:      typ,
			Generation:      device.Gen1,
			IPAddress:       ip,
			DiscoveryMethod: device.MethodHTTPProbe,
			Status:          device.StatusOnline,
			LastSeenAt:      now,
			RawInfo:         obj,
		}
		if fw, ok := stringField(obj, "fw"); ok {
			d.FirmwareVersion = fw
		}
		if auth, ok := obj["auth"].(bool); ok {
			d.AuthEnabled = auth
		}
		return d, true
	}

	if app, ok := stringField(obj, "app"); ok {
		mac, ok := stringField(obj, "mac")
		if !ok {
			return nil, false
		}
		normalized, err := device.NormalizeMAC(mac)
		if err != nil {
			return nil, false
		}

		gen := generationFromPayload(obj)
		if gen == device.GenerationUnknown {
			if model, ok := stringField(obj, "model"); ok {
				gen = e.types.GenerationFor(model)
			}
		}
		if gen == device.GenerationUnknown {
			// An "app" responder is at least gen2; the Plus/Pro/Mini
			// families predate the gen field.
			gen = device.Gen2
		}

		d := &device.Device{
			ID:              normalized,
			DeviceType:      app,
			Generation:      gen,
			IPAddress:       ip,
			DiscoveryMethod: device.MethodHTTPProbe,
			Status:          device.StatusOnline,
			LastSeenAt:      now,
			RawInfo:         obj,
		}
		if ver, ok := stringField(obj, "ver"); ok {
			d.FirmwareVersion = ver
		}
		if name, ok := stringField(obj, "name"); ok {
			d.Name = name
		}
		if auth, ok := obj["auth_en"].(bool); ok {
			d.AuthEnabled = auth
		}
		return d, true
	}

	return nil, false
}

// generationFromPayload reads the "gen" field, which JSON decodes as float64.
func generationFromPayload(obj map[string]any) device.Generation {
	gen, ok := obj["gen"].(float64)
	if !ok {
		return device.GenerationUnknown
	}
	switch int(gen) {
	case 1:
		return device.Gen1
	case 2:
		return device.Gen2
	case 3:
		return device.Gen3
	case 4:
		return device.Gen4
	default:
		return device.GenerationUnknown
	}
}

func stringField(obj map[string]any, key string) (string, bool) {
	s, ok := obj[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
