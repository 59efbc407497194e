package metrics

import (
	"strconv"
	"time"

	"github.com/fleetcore/minerfleet/pkg/storage"
)

// Collector periodically samples the store and republishes gauges that
// can't be updated inline at the point of mutation (totals by status,
// by capability level).
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectDeviceMetrics()
	c.collectMinerMetrics()
}

func (c *Collector) collectDeviceMetrics() {
	devices, err := c.store.ListDevices("")
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, d := range devices {
		counts[string(d.Status)]++
	}

	DevicesTotal.Reset()
	for status, n := range counts {
		DevicesTotal.WithLabelValues(status).Set(float64(n))
	}
}

func (c *Collector) collectMinerMetrics() {
	miners, err := c.store.ListMiners("")
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, m := range miners {
		counts[strconv.Itoa(int(m.CapabilityLevel))]++
	}

	MinersTotal.Reset()
	for level, n := range counts {
		MinersTotal.WithLabelValues(level).Set(float64(n))
	}
}
