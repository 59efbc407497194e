package telemetry

import (
	"time"

	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// Resolution identifies which layer (or grouping of a layer) a History
// response was served from.
type Resolution string

const (
	Resolution5Min   Resolution = "5min"
	ResolutionHourly Resolution = "hourly"
	ResolutionDaily  Resolution = "daily"
)

// PickResolution implements the reader's auto-selection thresholds:
// spans over 60 days read from the daily layer, over 2 days read from
// history_5min grouped into hourly buckets, everything else reads
// history_5min directly.
func PickResolution(start, end time.Time) Resolution {
	span := end.Sub(start)
	switch {
	case span > 60*24*time.Hour:
		return ResolutionDaily
	case span > 2*24*time.Hour:
		return ResolutionHourly
	default:
		return Resolution5Min
	}
}

// Point is the common shape returned for every resolution, so callers
// don't need to type-switch on which layer served the request.
type Point struct {
	BucketTS        time.Time
	SiteID          string
	MinerID         string
	AvgHashrateTHS  float64
	MaxHashrateTHS  float64
	MinHashrateTHS  float64
	AvgTemperatureC float64
	AvgPowerW       float64
	AvgFanRPM       float64
	OnlineRatio     float64
	Samples         int
}

// HistoryResult carries the provenance envelope the read contract
// mandates: which layer actually served the data, and the resolved
// window.
type HistoryResult struct {
	Source     string
	Resolution Resolution
	Start      time.Time
	End        time.Time
	Points     []Point
}

// SiteSummary is a point-in-time rollup of a site's live layer.
type SiteSummary struct {
	SiteID           string
	MinerCount       int
	OnlineCount      int
	TotalHashrateTHS float64
	AvgTemperatureC  float64
	AsOf             time.Time
}

// Reader is the single read path across all four telemetry layers.
type Reader struct {
	store storage.Store
}

// NewReader builds a Reader over store.
func NewReader(store storage.Store) *Reader {
	return &Reader{store: store}
}

// Live returns the current snapshot for one miner.
func (r *Reader) Live(minerID string) (*types.LiveSnapshot, error) {
	return r.store.GetLive(minerID)
}

// History returns points between start and end for one miner, read from
// whichever layer PickResolution selects for that span. The daily layer
// is read by whole days, from start's date through end's date inclusive.
func (r *Reader) History(siteID, minerID string, start, end time.Time) (*HistoryResult, error) {
	resolution := PickResolution(start, end)

	switch resolution {
	case ResolutionDaily:
		rows, err := r.store.ListDaily(siteID, minerID, start.Format("2006-01-02"), end.Format("2006-01-02"))
		if err != nil {
			return nil, err
		}
		points := make([]Point, 0, len(rows))
		for _, d := range rows {
			day, _ := time.Parse("2006-01-02", d.Day)
			points = append(points, Point{
				BucketTS:        day,
				SiteID:          d.SiteID,
				MinerID:         d.MinerID,
				AvgHashrateTHS:  d.AvgHashrateTHS,
				MaxHashrateTHS:  d.MaxHashrateTHS,
				MinHashrateTHS:  d.MinHashrateTHS,
				AvgTemperatureC: d.AvgTemperatureC,
				AvgPowerW:       d.AvgPowerW,
				OnlineRatio:     d.OnlineRatio,
				Samples:         d.Samples,
			})
		}
		return &HistoryResult{Source: "daily", Resolution: resolution, Start: start, End: end, Points: points}, nil

	case ResolutionHourly:
		rows, err := r.store.ListHistory5Min(siteID, minerID, start, end)
		if err != nil {
			return nil, err
		}
		return &HistoryResult{
			Source:     "history_5min",
			Resolution: resolution,
			Start:      start,
			End:        end,
			Points:     groupHourly(rows),
		}, nil

	default:
		rows, err := r.store.ListHistory5Min(siteID, minerID, start, end)
		if err != nil {
			return nil, err
		}
		points := make([]Point, 0, len(rows))
		for _, h := range rows {
			points = append(points, pointFrom5Min(h))
		}
		return &HistoryResult{Source: "history_5min", Resolution: resolution, Start: start, End: end, Points: points}, nil
	}
}

func pointFrom5Min(h *types.History5Min) Point {
	return Point{
		BucketTS:        h.BucketTS,
		SiteID:          h.SiteID,
		MinerID:         h.MinerID,
		AvgHashrateTHS:  h.AvgHashrateTHS,
		MaxHashrateTHS:  h.MaxHashrateTHS,
		MinHashrateTHS:  h.MinHashrateTHS,
		AvgTemperatureC: h.AvgTemperatureC,
		AvgPowerW:       h.AvgPowerW,
		AvgFanRPM:       h.AvgFanRPM,
		OnlineRatio:     h.OnlineRatio,
		Samples:         h.Samples,
	}
}

// groupHourly buckets 5-min rows by their containing hour, weighting
// averages by sample count.
func groupHourly(rows []*types.History5Min) []Point {
	type acc struct {
		siteID, minerID                             string
		sumHash, sumTemp, sumPower, sumFan, sumOnln  float64
		maxHash, minHash                             float64
		samples                                      int
		seen                                         bool
	}

	buckets := make(map[time.Time]*acc)
	order := make([]time.Time, 0)

	for _, h := range rows {
		hourTS := h.BucketTS.Truncate(time.Hour)
		a, ok := buckets[hourTS]
		if !ok {
			a = &acc{siteID: h.SiteID, minerID: h.MinerID, maxHash: h.MaxHashrateTHS, minHash: h.MinHashrateTHS}
			buckets[hourTS] = a
			order = append(order, hourTS)
		}

		n := float64(h.Samples)
		a.sumHash += h.AvgHashrateTHS * n
		a.sumTemp += h.AvgTemperatureC * n
		a.sumPower += h.AvgPowerW * n
		a.sumFan += h.AvgFanRPM * n
		a.sumOnln += h.OnlineRatio * n
		a.samples += h.Samples
		if h.MaxHashrateTHS > a.maxHash {
			a.maxHash = h.MaxHashrateTHS
		}
		if h.MinHashrateTHS < a.minHash {
			a.minHash = h.MinHashrateTHS
		}
	}

	points := make([]Point, 0, len(order))
	for _, ts := range order {
		a := buckets[ts]
		n := float64(a.samples)
		if n == 0 {
			n = 1
		}
		points = append(points, Point{
			BucketTS:        ts,
			SiteID:          a.siteID,
			MinerID:         a.minerID,
			AvgHashrateTHS:  a.sumHash / n,
			MaxHashrateTHS:  a.maxHash,
			MinHashrateTHS:  a.minHash,
			AvgTemperatureC: a.sumTemp / n,
			AvgPowerW:       a.sumPower / n,
			AvgFanRPM:       a.sumFan / n,
			OnlineRatio:     a.sumOnln / n,
			Samples:         a.samples,
		})
	}
	return points
}

// SiteSummary rolls up the live layer for one site.
func (r *Reader) SiteSummary(siteID string) (*SiteSummary, error) {
	snapshots, err := r.store.ListLive(siteID)
	if err != nil {
		return nil, err
	}

	summary := &SiteSummary{SiteID: siteID, AsOf: time.Now().UTC()}
	if len(snapshots) == 0 {
		return summary, nil
	}

	var sumTemp float64
	for _, s := range snapshots {
		summary.MinerCount++
		if s.Online {
			summary.OnlineCount++
		}
		summary.TotalHashrateTHS += s.HashrateTHS
		sumTemp += s.TemperatureC
	}
	summary.AvgTemperatureC = sumTemp / float64(len(snapshots))
	return summary, nil
}
