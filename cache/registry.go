package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasmvm/engine"
	"github.com/wippyai/wasmvm/types"
)

// compiled is a reference counted compiled module. The engine shares machine
// code between compilations of identical bytes and closing any one of them
// drops the shared code, so each checksum is compiled at most once while
// referenced.
type compiled struct {
	checksum types.Checksum
	module   *engine.WazeroModule
	refs     int
}

type registry struct {
	engine *engine.WazeroEngine
	log    *zap.Logger
	mu     sync.Mutex
	live   map[types.Checksum]*compiled
	group  singleflight.Group
}

func newRegistry(eng *engine.WazeroEngine, log *zap.Logger) *registry {
	return &registry{
		engine: eng,
		log:    log,
		live:   make(map[types.Checksum]*compiled),
	}
}

// acquire returns a referenced module for checksum, compiling code if no
// live module exists. Concurrent acquires of one checksum share a compile.
func (r *registry) acquire(ctx context.Context, checksum types.Checksum, code []byte) (*compiled, error) {
	for {
		if c := r.ref(checksum); c != nil {
			return c, nil
		}

		v, err, _ := r.group.Do(checksum.String(), func() (any, error) {
			r.mu.Lock()
			if c, ok := r.live[checksum]; ok {
				r.mu.Unlock()
				return c, nil
			}
			r.mu.Unlock()

			mod, err := r.engine.Compile(ctx, code)
			if err != nil {
				return nil, err
			}
			r.log.Debug("compiled module",
				zap.Stringer("checksum", checksum),
				zap.Uint64("size", mod.Size()))

			c := &compiled{checksum: checksum, module: mod}
			r.mu.Lock()
			r.live[checksum] = c
			r.mu.Unlock()
			return c, nil
		})
		if err != nil {
			return nil, err
		}

		c := v.(*compiled)
		r.mu.Lock()
		if r.live[checksum] == c {
			c.refs++
			r.mu.Unlock()
			return c, nil
		}
		// released to zero by another holder before we could reference it
		r.mu.Unlock()
	}
}

// ref adds a reference to a live module, or returns nil.
func (r *registry) ref(checksum types.Checksum) *compiled {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.live[checksum]
	if !ok {
		return nil
	}
	c.refs++
	return c
}

// retain adds a reference to c, which must still be live.
func (r *registry) retain(c *compiled) {
	r.mu.Lock()
	c.refs++
	r.mu.Unlock()
}

// release drops a reference and closes the module when none remain. The
// close happens under the lock so that a concurrent compile of the same bytes
// cannot pick up machine code that is about to be dropped.
func (r *registry) release(ctx context.Context, c *compiled) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.refs--
	if c.refs > 0 {
		return
	}
	if r.live[c.checksum] == c {
		delete(r.live, c.checksum)
	}
	if err := c.module.Close(ctx); err != nil {
		r.log.Warn("close compiled module", zap.Stringer("checksum", c.checksum), zap.Error(err))
	}
}

// len returns the number of live compiled modules.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
