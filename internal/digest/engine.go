package digest

import (
	"context"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/garana/filededup/internal/platform"
)

// Policy selects how file content is fed to the hashes.
type Policy int

const (
	// PolicyRead streams the file through a reusable buffer.
	PolicyRead Policy = iota
	// PolicyMmap maps the file in buffer-sized windows.
	PolicyMmap
)

func (p Policy) String() string {
	switch p {
	case PolicyRead:
		return "read"
	case PolicyMmap:
		return "mmap"
	default:
		return "unknown"
	}
}

// DefaultBufSize is the read buffer and mmap window size.
const DefaultBufSize = 4096 * 4096

// ReadConfig selects the I/O strategy of an Engine.
type ReadConfig struct {
	Policy  Policy
	BufSize int
}

// DefaultReadConfig maps files in 16 MiB windows.
func DefaultReadConfig() ReadConfig {
	return ReadConfig{Policy: PolicyMmap, BufSize: DefaultBufSize}
}

func (c ReadConfig) String() string {
	return fmt.Sprintf("%s,%d", c.Policy, c.BufSize)
}

// ParseReadConfig parses "read[,BUFSIZE]" or "mmap[,BUFSIZE]". An mmap
// buffer size is rounded up to a multiple of the page size; adjusted reports
// whether that happened.
func ParseReadConfig(spec string) (cfg ReadConfig, adjusted bool, err error) {
	name, sizeStr, hasSize := strings.Cut(spec, ",")
	cfg.BufSize = DefaultBufSize

	switch name {
	case "read":
		cfg.Policy = PolicyRead
	case "mmap":
		cfg.Policy = PolicyMmap
	default:
		return ReadConfig{}, false, fmt.Errorf("unknown read policy %q", spec)
	}

	if hasSize {
		n, err := strconv.Atoi(sizeStr)
		if err != nil || n <= 0 {
			return ReadConfig{}, false, fmt.Errorf("invalid buffer size in read policy %q", spec)
		}
		cfg.BufSize = n
	}

	if cfg.Policy == PolicyMmap {
		cfg.BufSize, adjusted = platform.RoundToPage(cfg.BufSize)
	}
	return cfg, adjusted, nil
}

// Engine computes digests. It is safe for concurrent use.
type Engine struct {
	cfg     ReadConfig
	limiter *rate.Limiter
	bufs    sync.Pool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimiter throttles all reads of the engine through l.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// NewEngine creates an Engine using the given read strategy.
func NewEngine(cfg ReadConfig, opts ...Option) *Engine {
	if cfg.BufSize <= 0 {
		cfg.BufSize = DefaultBufSize
	}
	if cfg.Policy == PolicyMmap {
		cfg.BufSize, _ = platform.RoundToPage(cfg.BufSize)
	}
	e := &Engine{cfg: cfg}
	e.bufs.New = func() any {
		b := make([]byte, e.cfg.BufSize)
		return &b
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the effective read configuration.
func (e *Engine) Config() ReadConfig { return e.cfg }

// Sum digests the file at path with every algorithm in set in one pass.
// When end is positive only the first end bytes are read. It returns the
// digests and the number of bytes hashed. An empty set yields empty Sums
// without touching the file.
func (e *Engine) Sum(ctx context.Context, path string, set Set, end int64) (Sums, int64, error) {
	var sums Sums
	if set.Empty() {
		return sums, 0, nil
	}

	algs := set.Algorithms()
	hashes := make([]hash.Hash, len(algs))
	writers := make([]io.Writer, len(algs))
	for i, a := range algs {
		hashes[i] = a.newHash()
		writers[i] = hashes[i]
	}

	var w io.Writer = io.MultiWriter(writers...)
	if e.limiter != nil {
		w = &rateLimitedWriter{w: w, limiter: e.limiter, ctx: ctx}
	}

	f, err := os.Open(path)
	if err != nil {
		return sums, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var n int64
	switch e.cfg.Policy {
	case PolicyMmap:
		n, err = e.feedMmap(ctx, f, w, end)
	default:
		n, err = e.feedRead(ctx, f, w, end)
	}
	if err != nil {
		return sums, n, err
	}

	for i, a := range algs {
		sums.set(a, hashes[i].Sum(nil))
	}
	return sums, n, nil
}

func (e *Engine) feedRead(ctx context.Context, f *os.File, w io.Writer, end int64) (int64, error) {
	bufp := e.bufs.Get().(*[]byte) //nolint:forcetypeassert // pool only holds *[]byte
	defer e.bufs.Put(bufp)
	buf := *bufp

	var r io.Reader = f
	if end > 0 {
		r = io.LimitReader(f, end)
	}
	// ctxReader also hides File.WriteTo, so CopyBuffer uses buf.
	r = &ctxReader{r: r, ctx: ctx}

	n, err := io.CopyBuffer(w, r, buf)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return n, nil
}

func (e *Engine) feedMmap(ctx context.Context, f *os.File, w io.Writer, end int64) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.Name(), err)
	}

	length := info.Size()
	if end > 0 && end < length {
		length = end
	}

	var offset int64
	for offset < length {
		if err := ctx.Err(); err != nil {
			return offset, err
		}

		window := int64(e.cfg.BufSize)
		if offset+window > length {
			window = length - offset
		}

		b, err := platform.MapRange(f, offset, int(window))
		if err != nil {
			return offset, err
		}
		_, werr := w.Write(b)
		uerr := platform.Unmap(b)
		if werr != nil {
			return offset, fmt.Errorf("hash %s: %w", f.Name(), werr)
		}
		if uerr != nil {
			return offset, fmt.Errorf("munmap %s: %w", f.Name(), uerr)
		}
		offset += window
	}
	return offset, nil
}

type ctxReader struct {
	r   io.Reader
	ctx context.Context
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
