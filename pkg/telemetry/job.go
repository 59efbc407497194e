package telemetry

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/storage"
)

// Job is a single ticker-driven promotion or retention cycle for one
// telemetry layer. It never stops itself on error — a failed cycle is
// logged and the ticker keeps running.
type Job struct {
	name     string
	interval time.Duration
	fn       func(now time.Time) error
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewJob builds a Job that calls fn(time.Now()) once per interval.
func NewJob(name string, interval time.Duration, fn func(now time.Time) error) *Job {
	return &Job{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   log.WithComponent("telemetry." + name),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the job's first cycle immediately, then on each tick.
func (j *Job) Start() {
	go j.run()
}

// Stop halts the ticker. Safe to call once.
func (j *Job) Stop() {
	close(j.stopCh)
}

func (j *Job) run() {
	j.tick()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.tick()
		case <-j.stopCh:
			return
		}
	}
}

func (j *Job) tick() {
	timer := metrics.NewTimer()
	if err := j.fn(time.Now().UTC()); err != nil {
		j.logger.Error().Err(err).Msg("telemetry job cycle failed")
		return
	}
	timer.ObserveDurationVec(metrics.TelemetryPromotionDuration, j.name)
}

// Promoter owns the four layer jobs and starts/stops them together.
type Promoter struct {
	live  *Job
	min5  *Job
	daily *Job
	prune *Job
}

// NewPromoter wires up the four jobs against store, with the intervals
// the layering calls for: live every minute, 5-min every 5 minutes,
// daily and retention pruning once a day.
func NewPromoter(store storage.Store) *Promoter {
	return &Promoter{
		live:  NewJob("live", time.Minute, func(now time.Time) error { return PromoteLive(store, now) }),
		min5:  NewJob("history_5min", 5*time.Minute, func(now time.Time) error { return Promote5Min(store, now) }),
		daily: NewJob("daily", 24*time.Hour, func(now time.Time) error { return PromoteDaily(store, now) }),
		prune: NewJob("prune", 24*time.Hour, func(now time.Time) error { return Prune(store, now) }),
	}
}

// Start launches all four jobs.
func (p *Promoter) Start() {
	p.live.Start()
	p.min5.Start()
	p.daily.Start()
	p.prune.Start()
}

// Stop halts all four jobs.
func (p *Promoter) Stop() {
	p.live.Stop()
	p.min5.Stop()
	p.daily.Stop()
	p.prune.Stop()
}
