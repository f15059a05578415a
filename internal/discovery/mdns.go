package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// mdnsServiceTypes are the browse targets. Gen2+ devices announce
// _shelly._tcp; Gen1 devices only announce a plain HTTP instance named
// shelly<model>-<mac>.
var mdnsServiceTypes = []string{
	"_shelly._tcp",
	"_http._tcp",
}

// browseMDNS listens for announcements until the window closes, passing
// classified devices to record.
func (e *Engine) browseMDNS(ctx context.Context, opts Options, record func(*device.Device)) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		e.logger.Warn("mdns resolver unavailable", "error", err)
		return
	}

	browseCtx, cancel := context.WithTimeout(ctx, opts.MDNSWindow)
	defer cancel()

	for _, service := range mdnsServiceTypes {
		entries := make(chan *zeroconf.ServiceEntry)

		go func(results <-chan *zeroconf.ServiceEntry) {
			for entry := range results {
				d, ok := e.parseMDNSEntry(entry)
				if !ok {
					continue
				}
				if stored := e.reconcile(ctx, d); stored != nil {
					record(stored)
				}
			}
		}(entries)

		if err := resolver.Browse(browseCtx, service, "local.", entries); err != nil {
			e.logger.Warn("mdns browse failed", "service", service, "error", err)
		}
	}

	<-browseCtx.Done()
}

// parseMDNSEntry extracts a partial device from one announcement.
//
// Gen2+ announcements carry TXT records (app, gen, ver); Gen1 HTTP
// announcements only identify themselves by the instance name prefix
// "shelly". The MAC is taken from TXT when present, else from the trailing
// twelve hex digits of the instance name.
func (e *Engine) parseMDNSEntry(entry *zeroconf.ServiceEntry) (*device.Device, bool) {
	instance := strings.ToLower(entry.Instance)
	txt := parseTXT(entry.Text)

	isShelly := strings.HasPrefix(instance, "shelly") ||
		strings.Contains(entry.Service, "_shelly._tcp")
	if !isShelly {
		return nil, false
	}

	mac := txt["mac"]
	if mac == "" {
		mac = macFromInstance(entry.Instance)
	}
	normalized, err := device.NormalizeMAC(mac)
	if err != nil {
		return nil, false
	}

	d := &device.Device{
		ID:              normalized,
		Hostname:        strings.TrimSuffix(entry.HostName, "."),
		DiscoveryMethod: device.MethodMDNS,
		Status:          device.StatusOnline,
		Generation:      device.GenerationUnknown,
		LastSeenAt:      time.Now().UTC(),
	}

	if len(entry.AddrIPv4) > 0 {
		d.IPAddress = entry.AddrIPv4[0].String()
	}

	if app := txt["app"]; app != "" {
		d.DeviceType = app
		d.Generation = device.Gen2
	}
	if gen := txt["gen"]; gen != "" {
		switch gen {
		case "1":
			d.Generation = device.Gen1
		case "2":
			d.Generation = device.Gen2
		case "3":
			d.Generation = device.Gen3
		case "4":
			d.Generation = device.Gen4
		}
	}
	if ver := txt["ver"]; ver != "" {
		d.FirmwareVersion = ver
	}

	// A plain gen1 announcement carries no TXT identity; it is recorded as
	// gen1 and the device type stays empty.
	if d.DeviceType == "" && d.Generation == device.GenerationUnknown {
		d.Generation = device.Gen1
	}

	return d, true
}

// parseTXT splits key=value TXT records.
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, record := range records {
		if key, value, ok := strings.Cut(record, "="); ok {
			out[strings.ToLower(key)] = value
		}
	}
	return out
}

// macFromInstance extracts the trailing MAC digits from an instance name
// such as "shellyplug-s-E868E7EA6333" or "shellyplus1pm-a8032ab12345".
func macFromInstance(instance string) string {
	idx := strings.LastIndexByte(instance, '-')
	if idx < 0 || idx+1 >= len(instance) {
		return ""
	}
	return instance[idx+1:]
}
