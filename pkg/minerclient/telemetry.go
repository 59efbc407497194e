package minerclient

import (
	"context"
	"strings"
	"time"

	"github.com/fleetcore/minerfleet/pkg/types"
)

// FetchTelemetry queries summary, stats, and pools and normalizes the
// result into a fixed types.TelemetryRecord. A failure on stats or pools
// degrades gracefully (those fields are left zero-valued); only a summary
// failure marks the record offline, matching how the underlying firmware's
// "summary" reply is the one authoritative liveness signal.
func FetchTelemetry(ctx context.Context, c *Client, siteID, minerID string) *types.TelemetryRecord {
	record := &types.TelemetryRecord{
		Timestamp: time.Now().UTC(),
		SiteID:    siteID,
		MinerID:   minerID,
		Online:    false,
	}

	summary, err := c.GetSummary(ctx)
	if err != nil {
		return record
	}
	record.Online = true

	if rows, ok := summary["SUMMARY"].([]any); ok && len(rows) > 0 {
		if s, ok := rows[0].(map[string]any); ok {
			record.HashrateTHS = extractHashrateTHS(s)
			record.RejectRate = rejectRate(s)
		}
	}

	if stats, err := c.GetStats(ctx); err == nil {
		if rows, ok := stats["STATS"].([]any); ok {
			temps, fans := extractTempsAndFans(rows)
			if len(temps) > 0 {
				record.TemperatureC = maxFloat(temps)
			}
			if len(fans) > 0 {
				record.FanRPM = int(avgFloat(fans))
			}
		}
	}

	if pools, err := c.GetPools(ctx); err == nil {
		if rows, ok := pools["POOLS"].([]any); ok {
			record.PoolURL = activePoolURL(rows)
		}
	}

	record.Timestamp = c.LastResponseTime()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	return record
}

func extractHashrateTHS(summary map[string]any) float64 {
	if v, ok := numeric(summary["GHS 5s"]); ok {
		return v / 1000
	}
	if v, ok := numeric(summary["MHS 5s"]); ok {
		return v / 1_000_000
	}
	return 0
}

func rejectRate(summary map[string]any) float64 {
	accepted, _ := numeric(summary["Accepted"])
	rejected, _ := numeric(summary["Rejected"])
	total := accepted + rejected
	if total == 0 {
		return 0
	}
	return rejected / total
}

func extractTempsAndFans(stats []any) (temps, fans []float64) {
	for _, row := range stats {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		for key, value := range m {
			v, ok := numeric(value)
			if !ok || v <= 0 {
				continue
			}
			if strings.Contains(strings.ToLower(key), "temp") {
				temps = append(temps, v)
			}
			if strings.Contains(strings.ToLower(key), "fan") {
				fans = append(fans, v)
			}
		}
	}
	return temps, fans
}

func activePoolURL(pools []any) string {
	var fallback string
	for i, row := range pools {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		if i == 0 {
			if url, ok := m["URL"].(string); ok {
				fallback = url
			}
		}
		status, _ := m["Status"].(string)
		stratumActive, _ := m["Stratum Active"].(bool)
		if status == "Alive" && stratumActive {
			if url, ok := m["URL"].(string); ok {
				return url
			}
		}
	}
	return fallback
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func maxFloat(vals []float64) float64 {
	max := vals[0]
	for _, v := range vals[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func avgFloat(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
