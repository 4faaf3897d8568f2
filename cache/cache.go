package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/engine"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

const (
	wasmDirName    = "wasm"
	modulesDirName = "modules"
	lockFileName   = "exclusive.lock"

	bytesPerMiB = 1024 * 1024

	// the memory tier is bounded by bytes, never by entry count
	maxMemoryEntries = 1 << 30
)

// Options configures a Cache.
type Options struct {
	// BaseDir holds the wasm files, the compilation cache and the lock file.
	BaseDir string
	// AvailableCapabilities are the capabilities checked uploads may require.
	AvailableCapabilities []string
	// MemoryCacheSizeMiB bounds the memory tier. 0 disables it.
	MemoryCacheSizeMiB uint32
	// InstanceMemoryLimitMiB caps the linear memory of each instance.
	// 0 keeps the engine default.
	InstanceMemoryLimitMiB uint32
	// CostPerOperation overrides the gas charged per instruction.
	CostPerOperation uint64
	// Logger overrides the package logger.
	Logger *zap.Logger
}

// Cache stores contract code by checksum and hands out compiled modules from
// three tiers: pinned, memory and filesystem. It is safe for concurrent use.
type Cache struct {
	engine    *engine.WazeroEngine
	store     wasmStore
	lock      *flock.Flock
	reg       *registry
	log       *zap.Logger
	available map[string]struct{}

	mu         sync.Mutex
	pinned     map[types.Checksum]*compiled
	pinnedSize uint64
	memory     *simplelru.LRU[types.Checksum, *compiled]
	memorySize uint64
	memoryMax  uint64
	evicted    []*compiled
	stats      types.Metrics
	closed     bool
}

// New opens a cache in opts.BaseDir, creating directories as needed. Only
// one cache may use a directory at a time.
func New(ctx context.Context, opts Options) (*Cache, error) {
	log := opts.Logger
	if log == nil {
		log = Logger()
	}
	if opts.BaseDir == "" {
		return nil, errors.InvalidInput(errors.PhaseCache, "base directory must not be empty")
	}

	wasmDir := filepath.Join(opts.BaseDir, wasmDirName)
	modulesDir := filepath.Join(opts.BaseDir, modulesDirName)
	for _, dir := range []string{wasmDir, modulesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Error creating directory "+dir)
		}
	}

	lock := flock.New(filepath.Join(opts.BaseDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Could not lock exclusive.lock")
	}
	if !locked {
		return nil, errors.New(errors.PhaseCache, errors.KindInvalidData).
			Detail("Could not lock exclusive.lock. Is a different VM running in the same directory already?").
			Build()
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
		MemoryLimitPages:    engine.MemoryLimitPages(opts.InstanceMemoryLimitMiB),
		CompilationCacheDir: modulesDir,
		CostPerOperation:    opts.CostPerOperation,
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	available := make(map[string]struct{}, len(opts.AvailableCapabilities))
	for _, c := range opts.AvailableCapabilities {
		available[c] = struct{}{}
	}

	c := &Cache{
		engine:    eng,
		store:     wasmStore{dir: wasmDir},
		lock:      lock,
		reg:       newRegistry(eng, log),
		log:       log,
		available: available,
		pinned:    make(map[types.Checksum]*compiled),
		memoryMax: uint64(opts.MemoryCacheSizeMiB) * bytesPerMiB,
	}
	c.memory, err = simplelru.NewLRU[types.Checksum, *compiled](maxMemoryEntries, c.onEvict)
	if err != nil {
		_ = eng.Close(ctx)
		_ = lock.Unlock()
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "create memory cache")
	}

	log.Info("cache opened",
		zap.String("base_dir", opts.BaseDir),
		zap.Strings("capabilities", opts.AvailableCapabilities),
		zap.Uint32("memory_cache_mib", opts.MemoryCacheSizeMiB),
		zap.Uint32("instance_memory_mib", opts.InstanceMemoryLimitMiB))
	return c, nil
}

// Engine returns the engine modules are compiled with.
func (c *Cache) Engine() *engine.WazeroEngine {
	return c.engine
}

// SaveWasm stores code and returns its checksum. Unless unchecked is set the
// code must pass static validation and compile. Saving identical code twice
// returns the same checksum.
func (c *Cache) SaveWasm(ctx context.Context, code []byte, unchecked bool) (types.Checksum, error) {
	if err := c.checkOpen(); err != nil {
		return types.Checksum{}, err
	}
	checksum := types.NewChecksum(code)

	if !unchecked {
		if _, err := checkWasm(code, c.available); err != nil {
			return types.Checksum{}, err
		}
		entry, err := c.reg.acquire(ctx, checksum, code)
		if err != nil {
			return types.Checksum{}, err
		}
		c.reg.release(ctx, entry)
	}

	if err := c.store.save(checksum, code); err != nil {
		return types.Checksum{}, err
	}
	c.log.Debug("wasm saved", zap.Stringer("checksum", checksum), zap.Int("size", len(code)), zap.Bool("unchecked", unchecked))
	return checksum, nil
}

// LoadWasm returns the stored code for checksum.
func (c *Cache) LoadWasm(checksum types.Checksum) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	code, err := c.store.load(checksum)
	if errors.Is(err, errors.ErrNotFound) {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
	}
	return code, err
}

// RemoveWasm deletes the stored code for checksum and drops it from the
// in-memory tiers. Removing unknown code fails.
func (c *Cache) RemoveWasm(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed()
	}
	if err := c.store.remove(checksum); err != nil {
		c.mu.Unlock()
		return err
	}
	var drop []*compiled
	if p, ok := c.pinned[checksum]; ok {
		delete(c.pinned, checksum)
		c.pinnedSize -= p.module.Size()
		drop = append(drop, p)
	}
	c.memory.Remove(checksum)
	drop = append(drop, c.takeEvicted()...)
	c.mu.Unlock()

	c.releaseAll(ctx, drop)
	c.log.Debug("wasm removed", zap.Stringer("checksum", checksum))
	return nil
}

// pinLoadedHook runs in Pin after the module is compiled and before it is
// pinned. Tests use it to interleave other operations.
var pinLoadedHook func(types.Checksum)

// Pin keeps the compiled module for checksum in memory until Unpin. Pinning
// a pinned checksum does nothing.
func (c *Cache) Pin(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed()
	}
	_, ok := c.pinned[checksum]
	c.mu.Unlock()
	if ok {
		return nil
	}

	code, err := c.store.load(checksum)
	if err != nil {
		return err
	}
	entry, err := c.reg.acquire(ctx, checksum, code)
	if err != nil {
		return err
	}
	if pinLoadedHook != nil {
		pinLoadedHook(checksum)
	}

	c.mu.Lock()
	if _, ok := c.pinned[checksum]; ok || c.closed {
		c.mu.Unlock()
		c.reg.release(ctx, entry)
		return nil
	}
	// RemoveWasm deletes under c.mu, so the file is checked there too
	if !c.store.exists(checksum) {
		c.mu.Unlock()
		c.reg.release(ctx, entry)
		return errors.NotFound(errors.PhaseCache, "Wasm file does not exist")
	}
	c.pinned[checksum] = entry
	c.pinnedSize += entry.module.Size()
	c.stats.HitsFsCache++
	c.mu.Unlock()

	c.log.Debug("module pinned", zap.Stringer("checksum", checksum), zap.Uint64("size", entry.module.Size()))
	return nil
}

// Unpin drops checksum from the pinned tier. Unpinning an unpinned checksum
// does nothing.
func (c *Cache) Unpin(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed()
	}
	p, ok := c.pinned[checksum]
	if ok {
		delete(c.pinned, checksum)
		c.pinnedSize -= p.module.Size()
	}
	c.mu.Unlock()

	if ok {
		c.reg.release(ctx, p)
		c.log.Debug("module unpinned", zap.Stringer("checksum", checksum))
	}
	return nil
}

// GetModule returns the compiled module for checksum, consulting the pinned,
// memory and filesystem tiers in that order. The caller must Release it.
func (c *Cache) GetModule(ctx context.Context, checksum types.Checksum) (*Module, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errClosed()
	}
	if p, ok := c.pinned[checksum]; ok {
		c.stats.HitsPinnedMemoryCache++
		c.reg.retain(p)
		c.mu.Unlock()
		return c.newModule(p), nil
	}
	if m, ok := c.memory.Get(checksum); ok {
		c.stats.HitsMemoryCache++
		c.reg.retain(m)
		c.mu.Unlock()
		return c.newModule(m), nil
	}
	c.mu.Unlock()

	code, err := c.store.load(checksum)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			c.mu.Lock()
			c.stats.Misses++
			c.mu.Unlock()
		}
		return nil, err
	}
	entry, err := c.reg.acquire(ctx, checksum, code)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.stats.HitsFsCache++
	if !c.closed && c.store.exists(checksum) {
		c.storeMemory(entry)
	}
	evicted := c.takeEvicted()
	c.mu.Unlock()

	c.releaseAll(ctx, evicted)
	return c.newModule(entry), nil
}

// Analyze reports the entry points and capabilities of stored code.
func (c *Cache) Analyze(checksum types.Checksum) (types.AnalysisReport, error) {
	if err := c.checkOpen(); err != nil {
		return types.AnalysisReport{}, err
	}
	code, err := c.store.load(checksum)
	if err != nil {
		return types.AnalysisReport{}, err
	}
	m, err := checkParsed(code)
	if err != nil {
		return types.AnalysisReport{}, err
	}
	return analyzeModule(m), nil
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache) Metrics() types.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.stats
	m.ElementsPinnedMemoryCache = uint64(len(c.pinned))
	m.SizePinnedMemoryCache = c.pinnedSize
	m.ElementsMemoryCache = uint64(c.memory.Len())
	m.SizeMemoryCache = c.memorySize
	return m
}

// PinnedChecksums lists the pinned checksums in no particular order.
func (c *Cache) PinnedChecksums() []types.Checksum {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Checksum, 0, len(c.pinned))
	for cs := range c.pinned {
		out = append(out, cs)
	}
	return out
}

// Close drops all in-memory modules, closes the engine and releases the
// directory lock. Modules still held by callers stay usable until released.
// Closing twice returns an error.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed()
	}
	c.closed = true
	drop := make([]*compiled, 0, len(c.pinned))
	for cs, p := range c.pinned {
		drop = append(drop, p)
		delete(c.pinned, cs)
	}
	c.pinnedSize = 0
	c.memory.Purge()
	drop = append(drop, c.takeEvicted()...)
	c.mu.Unlock()

	c.releaseAll(ctx, drop)

	err := c.engine.Close(ctx)
	err = multierr.Append(err, c.lock.Unlock())
	c.log.Info("cache closed", zap.Error(err))
	return err
}

// storeMemory inserts a referenced copy of compiled into the memory tier and
// evicts least recently used entries until the tier fits its budget.
// Callers hold c.mu.
func (c *Cache) storeMemory(entry *compiled) {
	size := entry.module.Size()
	if c.memoryMax == 0 || size > c.memoryMax || c.memory.Contains(entry.checksum) {
		return
	}
	c.reg.retain(entry)
	c.memory.Add(entry.checksum, entry)
	c.memorySize += size
	for c.memorySize > c.memoryMax {
		if _, _, ok := c.memory.RemoveOldest(); !ok {
			break
		}
	}
}

// onEvict runs under c.mu for every entry leaving the memory tier.
func (c *Cache) onEvict(checksum types.Checksum, m *compiled) {
	c.memorySize -= m.module.Size()
	c.evicted = append(c.evicted, m)
	c.log.Debug("module evicted from memory cache", zap.Stringer("checksum", checksum))
}

func (c *Cache) takeEvicted() []*compiled {
	out := c.evicted
	c.evicted = nil
	return out
}

func (c *Cache) releaseAll(ctx context.Context, list []*compiled) {
	for _, m := range list {
		c.reg.release(ctx, m)
	}
}

func (c *Cache) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}
	return nil
}

func errClosed() error {
	return errors.New(errors.PhaseCache, errors.KindNotInitialized).Detail("cache closed").Build()
}

// Module is a compiled module handed out by GetModule. It stays valid until
// Release, even if the cache drops the checksum meanwhile.
type Module struct {
	Checksum types.Checksum

	c        *compiled
	reg      *registry
	released sync.Once
}

func (c *Cache) newModule(m *compiled) *Module {
	return &Module{Checksum: m.checksum, c: m, reg: c.reg}
}

// Compiled returns the engine module for instantiation.
func (m *Module) Compiled() *engine.WazeroModule {
	return m.c.module
}

// Release returns the module to the cache. Further calls do nothing.
func (m *Module) Release(ctx context.Context) {
	m.released.Do(func() {
		m.reg.release(ctx, m.c)
	})
}
