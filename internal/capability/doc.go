// Package capability provides the per-model capability catalogue for the
// Shelly fleet core.
//
// A capability definition records, for one device type (SKU), which APIs the
// model exposes and which logical parameters those APIs carry: the concrete
// endpoint or RPC method, the dotted path into its payload, the value type,
// and write constraints. Definitions are cached on disk
// (config/device_capabilities/<SKU>.yaml) and rebuilt from a live device by
// capability discovery — the device is the source of truth, the files are a
// cache.
//
// # Components
//
//   - Definition / ParameterDescriptor: the data model (types.go)
//   - Catalogue: load, query, persist, refresh, standardise (catalogue.go)
//   - Mapping: the process-wide cross-generation parameter table
//     (mapping.go); consulted by the engine after SKU-specific files so
//     common parameters work on unknown SKUs of a known generation
//   - TypeTable: static SKU knowledge and generation prefix rules
//     (device_types.go), consulted only for classification hints
//   - Discoverer: probes a representative device and generalises observed
//     response shapes into a definition (discover.go)
//
// # Discovery Algorithm
//
// Gen1 devices are probed with a fixed GET set (/shelly, /settings, /status
// and the per-profile settings endpoints). Every 200 response becomes an
// API with its observed field-type structure; every payload leaf becomes a
// parameter whose api is the endpoint it came from. Status fields and a
// fixed list of identity fields are read-only.
//
// Gen2+ devices are walked via Shelly.GetDeviceInfo / GetConfig / GetStatus
// plus the per-component GetConfig methods. Parameters are harvested from
// config results with api set to the corresponding SetConfig and component
// set per the RPC nesting rules.
//
// # Thread Safety
//
// The catalogue is read-mostly; refresh swaps in a new snapshot under a
// write lock so readers never observe a torn view.
package capability
