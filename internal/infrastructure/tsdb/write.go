package tsdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/shelly-fleet-core/internal/group"
)

// RecordRun implements the group executor's Recorder contract: one point
// per device result plus a run summary point. Non-blocking; batching and
// retries live in the write API.
func (c *Client) RecordRun(_ context.Context, result *group.GroupResult) {
	if !c.IsConnected() {
		return
	}

	for _, r := range result.Results {
		point := write.NewPoint(
			"fleet_operation",
			map[string]string{
				"device_id":  r.DeviceID,
				"group":      result.Group,
				"action":     result.Action,
				"error_kind": string(r.ErrorKind),
			},
			map[string]interface{}{
				"success":     boolInt(r.Success),
				"skipped":     boolInt(r.Skipped),
				"duration_ms": r.Duration.Milliseconds(),
			},
			r.AttemptedAt,
		)
		c.writeAPI.WritePoint(point)
	}

	summary := write.NewPoint(
		"fleet_run",
		map[string]string{
			"group":  result.Group,
			"action": result.Action,
		},
		map[string]interface{}{
			"success_count": result.SuccessCount,
			"failure_count": result.FailureCount,
			"skipped_count": result.SkippedCount,
			"duration_ms":   result.Duration.Milliseconds(),
		},
		result.StartedAt,
	)
	c.writeAPI.WritePoint(summary)
}

// WriteScanSummary records one discovery scan outcome.
func (c *Client) WriteScanSummary(probed, found int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet_discovery",
		map[string]string{},
		map[string]interface{}{
			"probed_ips":  probed,
			"found":       found,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
