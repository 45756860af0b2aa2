package metrics

import "time"

// LayerLister is the subset of *layer.Manager the collector polls.
type LayerLister interface {
	ActiveCount() int
}

// Collector periodically samples layer.Manager's active-layer count
// into the LayersActive gauge, since that value changes between job
// boundaries and isn't naturally observed at a single call site the
// way job/execution outcomes are.
type Collector struct {
	lister LayerLister
	stopCh chan struct{}
}

// NewCollector creates a collector that samples lister every interval.
func NewCollector(lister LayerLister) *Collector {
	return &Collector{lister: lister, stopCh: make(chan struct{})}
}

// Start begins sampling in a background goroutine.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
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

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	LayersActive.Set(float64(c.lister.ActiveCount()))
}
