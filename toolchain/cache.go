package toolchain

import (
	"context"
	"strings"

	"github.com/ReinaS-64892/TTCE-Wgpu/internal/cache"
)

// DefaultCacheSize is the soft limit of a Cached compiler.
const DefaultCacheSize = 64

type cacheKey struct {
	name, source, entryPoint, profile, flags string
}

// Cached memoizes the output of another compiler. Entries are keyed by the
// request fields, so edits to included files are not seen until Reset.
// Failed compilations are not cached.
type Cached struct {
	compiler Compiler
	entries  *cache.Cache[cacheKey, *Bytecode]
}

// NewCached wraps c with a cache holding about size entries.
func NewCached(c Compiler, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cached{compiler: c, entries: cache.New[cacheKey, *Bytecode](size)}
}

// Compile implements Compiler. Requests with a custom Include bypass the
// cache.
func (c *Cached) Compile(ctx context.Context, req *Request) (*Bytecode, error) {
	if req.Include != nil {
		return c.compiler.Compile(ctx, req)
	}
	key := cacheKey{
		name:       req.Name,
		source:     req.Source,
		entryPoint: req.EntryPoint,
		profile:    req.Profile,
		flags:      strings.Join(req.Flags, "\x00"),
	}
	if bc, ok := c.entries.Get(key); ok {
		return bc, nil
	}
	bc, err := c.compiler.Compile(ctx, req)
	if err != nil {
		return nil, err
	}
	c.entries.Set(key, bc)
	return bc, nil
}

// Reset drops every cached result.
func (c *Cached) Reset() { c.entries.Clear() }

// Stats reports the cache's hit and miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	s := c.entries.Stats()
	return s.Hits, s.Misses
}
