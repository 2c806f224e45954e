package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Writer is the write side of a Collector, as used by the engine.
type Writer interface {
	AddFilesScanned(n int64)
	AddFilesSkipped(n int64)
	AddFilesFailed(n int64)
	AddFilesDigested(n int64)
	AddBytesDigested(n int64)
	AddClusters(n int64)
	AddFilesMerged(n int64)
	AddMergesFailed(n int64)
	AddBytesSaved(n int64)
	AddFilesVerified(n int64)
	AddFilesVerifyFailed(n int64)
}

// Reader is the read side of a Collector.
type Reader interface {
	Snapshot() Snapshot
}

// ReadTicker is a Reader that also samples digest throughput.
type ReadTicker interface {
	Reader
	Tick()
	RollingSpeed(seconds int) float64
	SparklineData(n int) []float64
}

// Collector tracks dedup run statistics using lock-free atomic counters.
type Collector struct {
	filesScanned      atomic.Int64
	filesSkipped      atomic.Int64
	filesFailed       atomic.Int64
	filesDigested     atomic.Int64
	bytesDigested     atomic.Int64
	clusters          atomic.Int64
	filesMerged       atomic.Int64
	mergesFailed      atomic.Int64
	bytesSaved        atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64
	startTime         time.Time

	// Ring buffer, written only by the presenter's Tick.
	mu         sync.Mutex
	throughput [ringSize]int64 // digested bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned      int64
	FilesSkipped      int64
	FilesFailed       int64
	FilesDigested     int64
	BytesDigested     int64
	Clusters          int64
	FilesMerged       int64
	MergesFailed      int64
	BytesSaved        int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) AddFilesScanned(n int64)      { c.filesScanned.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)      { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddFilesDigested(n int64)     { c.filesDigested.Add(n) }
func (c *Collector) AddBytesDigested(n int64)     { c.bytesDigested.Add(n) }
func (c *Collector) AddClusters(n int64)          { c.clusters.Add(n) }
func (c *Collector) AddFilesMerged(n int64)       { c.filesMerged.Add(n) }
func (c *Collector) AddMergesFailed(n int64)      { c.mergesFailed.Add(n) }
func (c *Collector) AddBytesSaved(n int64)        { c.bytesSaved.Add(n) }
func (c *Collector) AddFilesVerified(n int64)     { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:      c.filesScanned.Load(),
		FilesSkipped:      c.filesSkipped.Load(),
		FilesFailed:       c.filesFailed.Load(),
		FilesDigested:     c.filesDigested.Load(),
		BytesDigested:     c.bytesDigested.Load(),
		Clusters:          c.clusters.Load(),
		FilesMerged:       c.filesMerged.Load(),
		MergesFailed:      c.mergesFailed.Load(),
		BytesSaved:        c.bytesSaved.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick records the digested-bytes delta into the ring buffer. Called once
// per second by the presenter.
func (c *Collector) Tick() {
	current := c.bytesDigested.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average digested bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns up to n per-second throughput samples, oldest
// first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}
	out := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		out[i] = float64(c.throughput[idx])
	}
	return out
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d skipped=%d failed=%d digested=%d digested_bytes=%d clusters=%d merged=%d merge_failed=%d saved=%d",
		s.FilesScanned, s.FilesSkipped, s.FilesFailed, s.FilesDigested,
		s.BytesDigested, s.Clusters, s.FilesMerged, s.MergesFailed, s.BytesSaved,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
