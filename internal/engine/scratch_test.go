package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratchName(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	name := ScratchName("/data/file.txt", 4242, now)

	assert.Regexp(t, `^/data/file\.txt\.4242\.1700000000\.123456\.[0-9a-f]{8}\.fdd-tmp$`, name)
	assert.True(t, IsScratchName(name))
	assert.NotEqual(t, name, ScratchName("/data/file.txt", 4242, now), "random suffix differs")
}

func TestIsScratchName(t *testing.T) {
	assert.False(t, IsScratchName("/data/file.txt"))
	assert.False(t, IsScratchName("/data/file.fdd-tmp"))
	assert.False(t, IsScratchName("/data/file.1.2.3.XYZXYZXY.fdd-tmp"))
	assert.True(t, IsScratchName("file.1.2.3.deadbeef.fdd-tmp"))
}

func TestScratchRegistry(t *testing.T) {
	r := newScratchRegistry()
	r.register("s1", "o1")
	r.register("s2", "o2")
	r.register("s3", "o3")

	r.release("s1")
	r.abandon(Dangling{Scratch: "s3", Original: "o3"})

	got := r.Dangling()
	require.Len(t, got, 2)
	assert.Equal(t, Dangling{Scratch: "s3", Original: "o3"}, got[0])
	assert.Equal(t, Dangling{Scratch: "s2", Original: "o2", Restore: true}, got[1])

	assert.Equal(t, "remove s3", got[0].String())
	assert.Equal(t, "rename s2 to o2", got[1].String())
}
