package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddFilesScanned(1)
				c.AddFilesDigested(1)
				c.AddFilesFailed(1)
				c.AddFilesSkipped(1)
				c.AddBytesDigested(256)
				c.AddFilesMerged(1)
				c.AddBytesSaved(10)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.FilesScanned)
	assert.Equal(t, expected, s.FilesDigested)
	assert.Equal(t, expected, s.FilesFailed)
	assert.Equal(t, expected, s.FilesSkipped)
	assert.Equal(t, expected*256, s.BytesDigested)
	assert.Equal(t, expected, s.FilesMerged)
	assert.Equal(t, expected*10, s.BytesSaved)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		FilesScanned:  10,
		FilesSkipped:  1,
		FilesFailed:   1,
		FilesDigested: 8,
		BytesDigested: 4096,
		Clusters:      3,
		FilesMerged:   2,
		MergesFailed:  1,
		BytesSaved:    200,
	}
	expected := "scanned=10 skipped=1 failed=1 digested=8 digested_bytes=4096 clusters=3 merged=2 merge_failed=1 saved=200"
	assert.Equal(t, expected, s.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestTickAndRollingSpeed(t *testing.T) {
	c := NewCollector()

	for range 5 {
		c.AddBytesDigested(1000)
		c.Tick()
	}
	assert.InDelta(t, 1000.0, c.RollingSpeed(5), 0.01)
}

func TestRollingSpeedPartialWindow(t *testing.T) {
	c := NewCollector()
	c.AddBytesDigested(3000)
	c.Tick()
	c.Tick()

	// Two samples: 3000 then 0.
	assert.InDelta(t, 1500.0, c.RollingSpeed(10), 0.01)
	assert.InDelta(t, 0.0, c.RollingSpeed(1), 0.01)
}

func TestRollingSpeedNoSamples(t *testing.T) {
	c := NewCollector()
	assert.Zero(t, c.RollingSpeed(5))
	assert.Zero(t, c.RollingSpeed(0))
}

func TestRingWraparound(t *testing.T) {
	c := NewCollector()
	for i := range ringSize + 10 {
		c.AddBytesDigested(int64(i))
		c.Tick()
	}
	assert.Equal(t, ringSize, c.ringCount)
	// Last sample added ringSize+9 bytes.
	assert.InDelta(t, float64(ringSize+9), c.RollingSpeed(1), 0.01)
}

func TestSparklineData(t *testing.T) {
	c := NewCollector()
	assert.Nil(t, c.SparklineData(5))

	for _, n := range []int64{10, 20, 30} {
		c.AddBytesDigested(n)
		c.Tick()
	}
	assert.Equal(t, []float64{10, 20, 30}, c.SparklineData(5))
	assert.Equal(t, []float64{20, 30}, c.SparklineData(2))
}

func TestCollectorImplementsInterfaces(t *testing.T) {
	var _ Writer = NewCollector()
	var _ ReadTicker = NewCollector()
}
