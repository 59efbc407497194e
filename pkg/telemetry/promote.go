package telemetry

import (
	"time"

	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

const (
	rawRetention      = 24 * time.Hour
	history5Retention = 90 * 24 * time.Hour
	dailyRetention    = 365 * 24 * time.Hour
)

func floorTo5Min(t time.Time) time.Time {
	t = t.UTC()
	return t.Truncate(5 * time.Minute)
}

// PromoteLive upserts, for every miner with a raw row in the last five
// minutes, the most recent such row into the live layer. Miners with no
// raw row in the window are left untouched — staleness is read off
// live.LastSeen downstream, per the layering contract.
func PromoteLive(store storage.Store, now time.Time) error {
	miners, err := store.ListMiners("")
	if err != nil {
		return err
	}

	since := now.Add(-5 * time.Minute)
	for _, m := range miners {
		rows, err := store.ListRawSince(m.ID, since)
		if err != nil || len(rows) == 0 {
			continue
		}

		latest := rows[0]
		for _, r := range rows[1:] {
			if r.Timestamp.After(latest.Timestamp) {
				latest = r
			}
		}

		if err := store.UpsertLive(&types.LiveSnapshot{
			SiteID:       latest.SiteID,
			MinerID:      latest.MinerID,
			Online:       latest.Online,
			HashrateTHS:  latest.HashrateTHS,
			TemperatureC: latest.TemperatureC,
			PowerW:       latest.PowerW,
			FanRPM:       latest.FanRPM,
			PoolURL:      latest.PoolURL,
			LastSeen:     latest.Timestamp,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Promote5Min aggregates the immediately-preceding closed 5-minute bucket
// [now-10m, now-5m) into one history_5min row per (site, miner) with a
// raw row in the bucket. Insert is idempotent per storage.Store's
// contract, so a rerun of an already-promoted bucket is a no-op.
func Promote5Min(store storage.Store, now time.Time) error {
	bucketStart := floorTo5Min(now.Add(-10 * time.Minute))
	bucketEnd := bucketStart.Add(5 * time.Minute)

	miners, err := store.ListMiners("")
	if err != nil {
		return err
	}

	for _, m := range miners {
		rows, err := store.ListRawSince(m.ID, bucketStart)
		if err != nil {
			return err
		}

		var inBucket []*types.TelemetryRecord
		for _, r := range rows {
			if !r.Timestamp.Before(bucketStart) && r.Timestamp.Before(bucketEnd) {
				inBucket = append(inBucket, r)
			}
		}
		if len(inBucket) == 0 {
			continue
		}

		h := aggregate5Min(bucketStart, m.SiteID, m.ID, inBucket)
		inserted, err := store.InsertHistory5Min(h)
		if err != nil {
			return err
		}
		if inserted {
			metrics.TelemetryRowsPromotedTotal.WithLabelValues("history_5min").Inc()
		}
	}
	return nil
}

func aggregate5Min(bucketTS time.Time, siteID, minerID string, rows []*types.TelemetryRecord) *types.History5Min {
	var sumHash, maxHash, minHash, sumTemp, maxTemp, sumPower, sumFan float64
	var onlineCount int
	minHash = rows[0].HashrateTHS
	maxHash = rows[0].HashrateTHS
	maxTemp = rows[0].TemperatureC

	for _, r := range rows {
		sumHash += r.HashrateTHS
		if r.HashrateTHS > maxHash {
			maxHash = r.HashrateTHS
		}
		if r.HashrateTHS < minHash {
			minHash = r.HashrateTHS
		}
		sumTemp += r.TemperatureC
		if r.TemperatureC > maxTemp {
			maxTemp = r.TemperatureC
		}
		sumPower += r.PowerW
		sumFan += float64(r.FanRPM)
		if r.Online {
			onlineCount++
		}
	}

	n := float64(len(rows))
	return &types.History5Min{
		BucketTS:        bucketTS,
		SiteID:          siteID,
		MinerID:         minerID,
		AvgHashrateTHS:  sumHash / n,
		MaxHashrateTHS:  maxHash,
		MinHashrateTHS:  minHash,
		AvgTemperatureC: sumTemp / n,
		MaxTemperatureC: maxTemp,
		AvgPowerW:       sumPower / n,
		AvgFanRPM:       sumFan / n,
		OnlineRatio:     float64(onlineCount) / n,
		Samples:         len(rows),
	}
}

// PromoteDaily rolls up yesterday's history_5min rows into one daily
// aggregate per (site, miner).
func PromoteDaily(store storage.Store, now time.Time) error {
	day := now.AddDate(0, 0, -1)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	dayStr := dayStart.Format("2006-01-02")

	miners, err := store.ListMiners("")
	if err != nil {
		return err
	}

	for _, m := range miners {
		rows, err := store.ListHistory5Min(m.SiteID, m.ID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}

		d := aggregateDaily(dayStr, m.SiteID, m.ID, rows)
		inserted, err := store.InsertDaily(d)
		if err != nil {
			return err
		}
		if inserted {
			metrics.TelemetryRowsPromotedTotal.WithLabelValues("daily").Inc()
		}
	}
	return nil
}

func aggregateDaily(day, siteID, minerID string, rows []*types.History5Min) *types.DailyAggregate {
	var sumHash, maxHash, minHash, sumTemp, sumPower, sumOnline float64
	var samples int
	minHash = rows[0].MinHashrateTHS
	maxHash = rows[0].MaxHashrateTHS

	for _, r := range rows {
		sumHash += r.AvgHashrateTHS * float64(r.Samples)
		if r.MaxHashrateTHS > maxHash {
			maxHash = r.MaxHashrateTHS
		}
		if r.MinHashrateTHS < minHash {
			minHash = r.MinHashrateTHS
		}
		sumTemp += r.AvgTemperatureC * float64(r.Samples)
		sumPower += r.AvgPowerW * float64(r.Samples)
		sumOnline += r.OnlineRatio * float64(r.Samples)
		samples += r.Samples
	}

	n := float64(samples)
	if n == 0 {
		n = 1
	}
	return &types.DailyAggregate{
		Day:             day,
		SiteID:          siteID,
		MinerID:         minerID,
		AvgHashrateTHS:  sumHash / n,
		MaxHashrateTHS:  maxHash,
		MinHashrateTHS:  minHash,
		AvgTemperatureC: sumTemp / n,
		AvgPowerW:       sumPower / n,
		OnlineRatio:     sumOnline / n,
		Samples:         samples,
	}
}

// Prune deletes rows past each layer's retention window: 24h for raw,
// 90d for history_5min, 365d for daily.
func Prune(store storage.Store, now time.Time) error {
	if n, err := store.PruneRawBefore(now.Add(-rawRetention)); err != nil {
		return err
	} else {
		metrics.TelemetryRowsPrunedTotal.WithLabelValues("raw_24h").Add(float64(n))
	}

	if n, err := store.PruneHistory5MinBefore(now.Add(-history5Retention)); err != nil {
		return err
	} else {
		metrics.TelemetryRowsPrunedTotal.WithLabelValues("history_5min").Add(float64(n))
	}

	cutoffDay := now.Add(-dailyRetention).Format("2006-01-02")
	if n, err := store.PruneDailyBefore(cutoffDay); err != nil {
		return err
	} else {
		metrics.TelemetryRowsPrunedTotal.WithLabelValues("daily").Add(float64(n))
	}

	return nil
}
