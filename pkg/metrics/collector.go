package metrics

import (
	"time"

	"github.com/cuemby/turbosync/pkg/storage"
)

// Collector periodically polls durable state to refresh gauges that have no
// single call site to update them inline (running-sync count). Counters and
// histograms are updated inline by the pipeline/transform/ftp/search stages
// instead of through this collector.
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector backed by store.
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic collection loop in a background goroutine.
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

// Stop halts the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	running, err := c.store.ListRunningHistory()
	if err != nil {
		return
	}
	RunningSyncsTotal.Set(float64(len(running)))
}

// SetQueueDepth updates the queue-depth gauge for the named pipeline queue
// (e.g. "mongo", "search"). Queue depth has no durable source to poll, so
// it is set inline rather than by the Collector; the pipeline engine
// sets QueueDepth itself and does not call this helper.
func SetQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}
