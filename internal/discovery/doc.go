// Package discovery finds Shelly devices on the local network.
//
// Two concurrent strategies feed the device registry, both optional and
// independently configurable:
//
//   - mDNS: browse _shelly._tcp (Gen2+) and _http._tcp (Gen1 devices
//     announce as plain HTTP instances named shelly<model>-<mac>) and parse
//     TXT records into partial device records
//   - HTTP probe: expand CIDR blocks into host lists and issue concurrent
//     GET /shelly probes with a short connect timeout, in chunks of at most
//     ChunkSize simultaneous IPs — each chunk completes before the next
//     starts, bounding socket usage
//
// Classification: a "type" payload field matching a known Gen1 SKU or
// prefix means gen1; an "app" field means gen2+, with "gen" pinning the
// generation and the model prefix deciding otherwise. Anything else is
// silently discarded.
//
// When both strategies observe the same MAC, the registry merge keeps the
// HTTP probe result authoritative for mutable fields while retaining the
// newest last-seen timestamp (see device.Merge).
//
// Found devices are upserted as soon as they are classified and emitted on
// a lossy out-channel, so cancelling a scan keeps partial results.
package discovery
