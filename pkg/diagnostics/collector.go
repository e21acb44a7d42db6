// Package diagnostics counts what the dispatch loops and the sink supervisor do and
// exposes the counts as Prometheus metrics.
package diagnostics

import (
	"sync"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vizbridge"

var (
	receivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "messages", "received_total"),
		"Messages taken off the subscription.", []string{"subscription"}, nil)
	bytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "messages", "received_bytes_total"),
		"Payload bytes taken off the subscription.", []string{"subscription"}, nil)
	skippedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "messages", "skipped_total"),
		"Messages skipped because handling failed, by error class.", []string{"subscription", "class"}, nil)
	forwardedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "artifacts", "forwarded_total"),
		"Artifacts written to the sink.", []string{"subscription"}, nil)
	gapsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "frames", "gaps_total"),
		"Jumps in the header reference id sequence.", []string{"subscription"}, nil)
	missedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "frames", "missed_total"),
		"Reference ids skipped over by sequence jumps.", []string{"subscription"}, nil)
)

// Snapshot is a point-in-time copy of a Collector's counters.
type Snapshot struct {
	Received     uint64
	Bytes        uint64
	Forwarded    uint64
	Skipped      map[types.ErrorClass]uint64
	FrameGaps    uint64
	FramesMissed uint64
}

// SkippedTotal sums skipped messages over every class.
func (s Snapshot) SkippedTotal() uint64 {
	var n uint64
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Collector holds the counters of one dispatch loop. It implements prometheus.Collector.
type Collector struct {
	subscription string
	duration     prometheus.Histogram

	mu        sync.Mutex
	received  uint64
	bytes     uint64
	forwarded uint64
	skipped   map[types.ErrorClass]uint64
	gaps      uint64
	missed    uint64
	lastRef   map[string]int64
}

// NewCollector returns a Collector labelled with subscription.
func NewCollector(subscription string) *Collector {
	return &Collector{
		subscription: subscription,
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "messages",
			Name:        "handle_duration_seconds",
			Help:        "Time spent decoding and forwarding one message.",
			Buckets:     []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			ConstLabels: prometheus.Labels{"subscription": subscription},
		}),
		skipped: make(map[types.ErrorClass]uint64),
		lastRef: make(map[string]int64),
	}
}

// Subscription is the label the collector reports under.
func (c *Collector) Subscription() string { return c.subscription }

// Received counts one message with a payload of size bytes.
func (c *Collector) Received(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received++
	c.bytes += uint64(size)
}

// Forwarded counts n artifacts written to the sink.
func (c *Collector) Forwarded(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forwarded += uint64(n)
}

// Skipped counts a message dropped because of a failure of class.
func (c *Collector) Skipped(class types.ErrorClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped[class]++
}

// ObserveDuration records the handling time of one message.
func (c *Collector) ObserveDuration(d time.Duration) {
	c.duration.Observe(d.Seconds())
}

// ObserveSequence tracks the header reference id per destination path and returns the
// number of ids skipped since the previous message on that path. A reference id that
// does not move forward (a restarted publisher) resets tracking without counting a gap.
func (c *Collector) ObserveSequence(path string, ref int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, seen := c.lastRef[path]
	c.lastRef[path] = ref
	if !seen || ref <= prev {
		return 0
	}
	missed := ref - prev - 1
	if missed > 0 {
		c.gaps++
		c.missed += uint64(missed)
	}
	return missed
}

// Snapshot copies the counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	skipped := make(map[types.ErrorClass]uint64, len(c.skipped))
	for k, v := range c.skipped {
		skipped[k] = v
	}
	return Snapshot{
		Received:     c.received,
		Bytes:        c.bytes,
		Forwarded:    c.forwarded,
		Skipped:      skipped,
		FrameGaps:    c.gaps,
		FramesMissed: c.missed,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- receivedDesc
	ch <- bytesDesc
	ch <- skippedDesc
	ch <- forwardedDesc
	ch <- gapsDesc
	ch <- missedDesc
	c.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	ch <- prometheus.MustNewConstMetric(receivedDesc, prometheus.CounterValue, float64(s.Received), c.subscription)
	ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.CounterValue, float64(s.Bytes), c.subscription)
	ch <- prometheus.MustNewConstMetric(forwardedDesc, prometheus.CounterValue, float64(s.Forwarded), c.subscription)
	ch <- prometheus.MustNewConstMetric(gapsDesc, prometheus.CounterValue, float64(s.FrameGaps), c.subscription)
	ch <- prometheus.MustNewConstMetric(missedDesc, prometheus.CounterValue, float64(s.FramesMissed), c.subscription)
	for class, n := range s.Skipped {
		ch <- prometheus.MustNewConstMetric(skippedDesc, prometheus.CounterValue, float64(n), c.subscription, string(class))
	}
	c.duration.Collect(ch)
}
