package metrics

import "time"

// GraphStats is satisfied by pkg/graphstore.Store.
type GraphStats interface {
	EntityCount() int
	RelationCount() int
}

// EventLogStats is satisfied by pkg/eventstore.Store.
type EventLogStats interface {
	Length() int
}

// BroadcastStats is satisfied by pkg/broadcaster.Broadcaster.
type BroadcastStats interface {
	SubscriberCount() int
	CurrentSequenceID() uint64
}

// Collector periodically samples gauge metrics from the running components,
// since graph size, event-log length, and subscriber count are push-through
// counters elsewhere but read better as point-in-time gauges on /metrics.
type Collector struct {
	graph     GraphStats
	eventLog  EventLogStats
	broadcast BroadcastStats
	stopCh    chan struct{}
}

// NewCollector creates a collector. Any dependency may be nil if that
// component isn't wired in this process (e.g. a read-only replica).
func NewCollector(graph GraphStats, eventLog EventLogStats, broadcast BroadcastStats) *Collector {
	return &Collector{
		graph:     graph,
		eventLog:  eventLog,
		broadcast: broadcast,
		stopCh:    make(chan struct{}),
	}
}

// Start begins periodic collection on a background goroutine.
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
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

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.graph != nil {
		EntitiesTotal.Set(float64(c.graph.EntityCount()))
		RelationsTotal.Set(float64(c.graph.RelationCount()))
	}
	if c.eventLog != nil {
		EventLogLength.Set(float64(c.eventLog.Length()))
	}
	if c.broadcast != nil {
		BroadcastSubscribersTotal.Set(float64(c.broadcast.SubscriberCount()))
		BroadcastSequenceID.Set(float64(c.broadcast.CurrentSequenceID()))
	}
}
