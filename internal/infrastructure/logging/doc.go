// Package logging provides structured logging for the Shelly fleet core.
//
// It is a thin layer over log/slog with three fleet conventions baked in:
//
//   - every entry carries service and version default attributes
//   - subsystems log through Component("discovery"), Component("transport")
//     etc., so group-run output stays filterable per subsystem
//   - per-device lines add the MAC via Device(mac)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json (default), text
//	  output: "stdout"   # stdout (default), stderr
//
// # Usage
//
//	log := logging.New(cfg.Logging, version)
//	probeLog := log.Component("discovery")
//	probeLog.Info("scan started", "networks", nets)
//	probeLog.Device(mac).Warn("probe refused", "error", err)
//
// Never log device credentials or API tokens.
package logging
