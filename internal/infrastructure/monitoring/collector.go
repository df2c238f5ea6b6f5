package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/kernel"
)

// StatsSource is anything that can snapshot the IPC kernel.
type StatsSource interface {
	Stats() kernel.Stats
}

// KernelCollector exports endpoint and message box state at scrape time.
type KernelCollector struct {
	src StatsSource

	capacity       *prometheus.Desc
	occupied       *prometheus.Desc
	blockedReaders *prometheus.Desc
	blockedWriters *prometheus.Desc
	bytesRead      *prometheus.Desc
	bytesWritten   *prometheus.Desc
	readers        *prometheus.Desc
	maxReaders     *prometheus.Desc
	writerHeld     *prometheus.Desc
	openHandles    *prometheus.Desc
	msgDepth       *prometheus.Desc
	msgBytes       *prometheus.Desc
	msgAllocated   *prometheus.Desc
	msgDestroyed   *prometheus.Desc
}

// NewKernelCollector creates a collector reading from src.
func NewKernelCollector(src StatsSource) *KernelCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &KernelCollector{
		src:            src,
		capacity:       desc("endpoint_capacity_bytes", "Ring buffer capacity", "minor"),
		occupied:       desc("endpoint_occupied_bytes", "Bytes waiting in the ring buffer", "minor"),
		blockedReaders: desc("endpoint_blocked_readers", "Readers sleeping on the endpoint", "minor"),
		blockedWriters: desc("endpoint_blocked_writers", "Writers sleeping on the endpoint", "minor"),
		bytesRead:      desc("endpoint_read_bytes_total", "Bytes read from the endpoint", "minor"),
		bytesWritten:   desc("endpoint_written_bytes_total", "Bytes written to the endpoint", "minor"),
		readers:        desc("readers", "Open read-mode handles"),
		maxReaders:     desc("max_readers", "Reader limit, 0 means unlimited"),
		writerHeld:     desc("writer_held", "1 while a write-mode handle is open"),
		openHandles:    desc("device_handles", "Open handles across all endpoints"),
		msgDepth:       desc("msgbox_depth", "Messages queued on the stack"),
		msgBytes:       desc("msgbox_bytes", "Payload bytes queued on the stack"),
		msgAllocated:   desc("msgbox_allocated_total", "Messages allocated"),
		msgDestroyed:   desc("msgbox_destroyed_total", "Messages destroyed"),
	}
}

// Describe implements prometheus.Collector.
func (c *KernelCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.capacity, c.occupied, c.blockedReaders, c.blockedWriters, c.bytesRead, c.bytesWritten,
		c.readers, c.maxReaders, c.writerHeld, c.openHandles,
		c.msgDepth, c.msgBytes, c.msgAllocated, c.msgDestroyed,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *KernelCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	for _, ep := range s.Devices.Endpoints {
		minor := strconv.Itoa(ep.Minor)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(ep.Capacity), minor)
		ch <- prometheus.MustNewConstMetric(c.occupied, prometheus.GaugeValue, float64(ep.Occupied), minor)
		ch <- prometheus.MustNewConstMetric(c.blockedReaders, prometheus.GaugeValue, float64(ep.BlockedReaders), minor)
		ch <- prometheus.MustNewConstMetric(c.blockedWriters, prometheus.GaugeValue, float64(ep.BlockedWriters), minor)
		ch <- prometheus.MustNewConstMetric(c.bytesRead, prometheus.CounterValue, float64(ep.BytesRead), minor)
		ch <- prometheus.MustNewConstMetric(c.bytesWritten, prometheus.CounterValue, float64(ep.BytesWritten), minor)
	}

	held := 0.0
	if s.Devices.WriterHeld {
		held = 1
	}
	ch <- prometheus.MustNewConstMetric(c.readers, prometheus.GaugeValue, float64(s.Devices.Readers))
	ch <- prometheus.MustNewConstMetric(c.maxReaders, prometheus.GaugeValue, float64(s.Devices.MaxReaders))
	ch <- prometheus.MustNewConstMetric(c.writerHeld, prometheus.GaugeValue, held)
	ch <- prometheus.MustNewConstMetric(c.openHandles, prometheus.GaugeValue, float64(s.Devices.OpenHandles))

	ch <- prometheus.MustNewConstMetric(c.msgDepth, prometheus.GaugeValue, float64(s.MsgBox.Depth))
	ch <- prometheus.MustNewConstMetric(c.msgBytes, prometheus.GaugeValue, float64(s.MsgBox.Bytes))
	ch <- prometheus.MustNewConstMetric(c.msgAllocated, prometheus.CounterValue, float64(s.MsgBox.Allocated))
	ch <- prometheus.MustNewConstMetric(c.msgDestroyed, prometheus.CounterValue, float64(s.MsgBox.Destroyed))
}
