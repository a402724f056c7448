// Package stack implements spec §4.D: a bounded LRU pool of decoded tiles
// shared by many concurrent Clients. Structural mutations (list edits, pin
// counts, the loaded-tile accounting) are serialized behind a caller-
// supplied lock/unlock pair so the core never assumes a particular
// synchronization primitive — mirroring the teacher's
// cmd/import-elevation LRUTileCache, generalized from an internal mutex to
// an injected critical section per spec §5.
package stack

import (
	"container/list"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/jcom-dev/demstack/internal/demerr"
	"github.com/jcom-dev/demstack/internal/loader"
	"github.com/jcom-dev/demstack/internal/tile"
)

// LockFunc and UnlockFunc are the caller-supplied critical-section
// callbacks of spec §5/§6. Each returns nil on success.
type LockFunc func() error
type UnlockFunc func() error

// Stack is the bounded LRU pool of tile.Tile, keyed by nothing more
// specific than "is this point inside the tile's footprint" — lookups walk
// the MRU list from the head, per spec §4.D.
type Stack struct {
	path     string
	maxSize  int
	format   loader.Format
	loader   loader.Loader
	lock     LockFunc
	unlock   UnlockFunc

	// mruList and size are only ever touched while the caller-supplied lock
	// is held (or, for the unsafe direct-path API, single-threaded).
	mruList *list.List // front = MRU, back = LRU
	size    int
}

// Option configures Stack at construction time.
type Option func(*Stack)

// WithLockCallbacks installs the lock/unlock pair. Both must be supplied
// together (spec §4.D: "Rejects if exactly one of lock/unlock is provided").
func WithLockCallbacks(lock LockFunc, unlock UnlockFunc) Option {
	return func(s *Stack) {
		s.lock = lock
		s.unlock = unlock
	}
}

// WithMutex installs a standard sync.Mutex as the Stack's critical section,
// for single-process callers that don't need a custom lock implementation.
func WithMutex() Option {
	var mu sync.Mutex
	return WithLockCallbacks(
		func() error { mu.Lock(); return nil },
		func() error { mu.Unlock(); return nil },
	)
}

// WithLoader overrides the Loader the Stack uses, primarily so tests can
// inject loader.NewMem instead of decoding real GeoTIFF fixtures.
func WithLoader(l loader.Loader) Option {
	return func(s *Stack) { s.loader = l }
}

// Create builds a Stack rooted at path with the given max tile count, per
// spec §4.D. path need not exist yet (the loader surfaces a per-lookup
// PathError); a trailing slash is appended if missing (spec §6).
func Create(path string, maxSize int, format loader.Format, opts ...Option) (*Stack, error) {
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	s := &Stack{
		path:    path,
		maxSize: maxSize,
		format:  format,
		mruList: list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if (s.lock == nil) != (s.unlock == nil) {
		return nil, demerr.New(demerr.BadAddress, demerr.OpStackCreate, "lock and unlock must both be provided or both be absent")
	}

	if s.loader == nil {
		l, err := loader.New(path, format)
		if err != nil {
			return nil, demerr.Wrap(demerr.BadFormat, demerr.OpStackCreate, err, "failed to construct tile loader for %s", path)
		}
		s.loader = l
	}

	return s, nil
}

// Path returns the Stack's base directory.
func (s *Stack) Path() string { return s.path }

// MaxSize returns the Stack's configured maximum resident tile count.
func (s *Stack) MaxSize() int { return s.maxSize }

// Size returns the Stack's current resident tile count. Not itself
// synchronized: callers racing a structural mutation must read it inside
// their own Lock/Unlock if they need a consistent snapshot.
func (s *Stack) Size() int { return s.size }

// Threaded reports whether this Stack has lock/unlock callbacks installed.
func (s *Stack) Threaded() bool { return s.lock != nil }

// Stats is a point-in-time snapshot of cache occupancy, used by the
// demstep CLI's cache-stats subcommand (SPEC_FULL.md §13).
type Stats struct {
	Size    int
	MaxSize int
	Pinned  int
}

// Stats returns a snapshot of the Stack's occupancy. Like Size, callers
// wanting a consistent cross-field snapshot under concurrent mutation
// should call this inside their own Lock/Unlock.
func (s *Stack) Stats() Stats {
	pinned := 0
	for e := s.mruList.Front(); e != nil; e = e.Next() {
		if e.Value.(*tile.Tile).PinCount() > 0 {
			pinned++
		}
	}
	return Stats{Size: s.size, MaxSize: s.maxSize, Pinned: pinned}
}

// Lock acquires the Stack's critical section. A no-op (always succeeds) if
// no lock callback was installed — callers of the unsafe direct-path API
// never call this.
func (s *Stack) Lock() error {
	if s.lock == nil {
		return nil
	}
	if err := s.lock(); err != nil {
		return demerr.Wrap(demerr.LockError, demerr.OpStackLookup, err, "lock callback failed")
	}
	return nil
}

// Unlock releases the Stack's critical section.
func (s *Stack) Unlock() error {
	if s.unlock == nil {
		return nil
	}
	if err := s.unlock(); err != nil {
		return demerr.Wrap(demerr.UnlockError, demerr.OpStackLookup, err, "unlock callback failed")
	}
	return nil
}

// touch moves e to the head of the MRU list. A no-op if e is already at
// the head (spec §4.D "Touch semantics").
func (s *Stack) touch(e *list.Element) {
	if s.mruList.Front() == e {
		return
	}
	s.mruList.MoveToFront(e)
}

// findByFootprint scans the MRU list from the head looking for a tile
// whose footprint contains (lat, lon), skipping skip if non-nil (used by
// Client to avoid re-matching its own pinned tile). Per spec §4.D, a hit
// is touched (moved to head) before being returned.
func (s *Stack) findByFootprint(lat, lon float64, skip *tile.Tile) *tile.Tile {
	for e := s.mruList.Front(); e != nil; e = e.Next() {
		t := e.Value.(*tile.Tile)
		if t == skip {
			continue
		}
		if t.Contains(lat, lon) {
			s.touch(e)
			return t
		}
	}
	return nil
}

// lookupLoaded inserts a freshly loaded tile at the head and runs the
// eviction policy. Must be called with the lock held.
func (s *Stack) lookupLoaded(t *tile.Tile) {
	e := s.mruList.PushFront(t)
	t.SetElem(e)
	s.size++
	s.evict()
}

// evict implements spec §4.D's eviction policy: walk from the LRU end
// toward the head, destroying the first unpinned tile, repeating until
// size <= maxSize or a full scan frees nothing (soft bound — never
// blocking or rejecting on overflow). The head itself (the tile just
// loaded or touched, which the caller is about to pin) is never reclaimed.
// Must be called with the lock held.
//
// The walk restarts from the back after each removal rather than holding a
// stale *list.Element across a mutation (spec §9 open question: the
// original's traversal direction was ambiguous about this).
func (s *Stack) evict() {
	for s.size > s.maxSize {
		freed := false
		for e := s.mruList.Back(); e != nil && e != s.mruList.Front(); e = e.Prev() {
			t := e.Value.(*tile.Tile)
			if t.PinCount() == 0 {
				s.mruList.Remove(e)
				t.SetElem(nil)
				s.size--
				freed = true
				break
			}
		}
		if !freed {
			return // all remaining tiles pinned: soft bound permits size > maxSize
		}
	}
}

// lookupTile is the internal operation of spec §4.D, called by Client
// under the Stack's lock. It returns the hit tile (already touched), or
// loads and inserts a new one via the Loader.
//
// Spec §5 is explicit that the load itself runs while the caller's lock is
// held: "a deliberate trade" that serializes I/O across every Client
// sharing this Stack in exchange for never letting two Clients publish the
// same tile twice. Because of that, the load path here is intentionally
// a plain call, not a singleflight-style dedup: with the lock already
// serializing every call into lookupTile, a second caller can never reach
// the loader for a tile the first caller is in the middle of loading — it
// blocks on Lock() and then finds the tile already published. Spec §5
// flags a two-phase-publish variant (release the lock for the I/O, re-
// acquire only to insert) as a legitimate production alternative; this
// Stack keeps the simpler, literal default instead.
func (s *Stack) lookupTile(lat, lon float64, skip *tile.Tile) (*tile.Tile, error) {
	if t := s.findByFootprint(lat, lon, skip); t != nil {
		return t, nil
	}

	latDeg, lonDeg := int(math.Floor(lat)), int(math.Floor(lon))
	t, err := s.loader.Load(latDeg, lonDeg)
	if err != nil {
		return nil, err
	}
	s.lookupLoaded(t)
	slog.Debug("stack: tile loaded", "lat", latDeg, "lon", lonDeg, "size", s.size, "max", s.maxSize)
	return t, nil
}

// LookupTile exposes lookupTile for Client, which lives in a different
// package but must run under the Stack's own lock discipline.
func (s *Stack) LookupTile(lat, lon float64, skip *tile.Tile) (*tile.Tile, error) {
	return s.lookupTile(lat, lon, skip)
}

// Elevation is the unsafe, non-thread-safe direct-path convenience of
// spec §4.D: "exists for single-threaded callers only". It performs a
// lookup without taking the lock, so it must never be called on a Stack
// shared across goroutines/threads.
func (s *Stack) Elevation(lat, lon float64) (z float64, inside bool, err error) {
	t := s.findByFootprint(lat, lon, nil)
	if t == nil {
		latDeg, lonDeg := int(math.Floor(lat)), int(math.Floor(lon))
		loaded, loadErr := s.loader.Load(latDeg, lonDeg)
		if loadErr != nil {
			return 0, false, loadErr
		}
		s.lookupLoaded(loaded)
		t = loaded
	}
	hx, hy := t.Fractional(lat, lon)
	return t.Interpolate(hx, hy), true, nil
}

// Clear acquires the lock, destroys every tile with pin_count == 0, and
// releases the lock (spec §4.D "clear").
func (s *Stack) Clear() error {
	if err := s.Lock(); err != nil {
		return err
	}
	defer s.Unlock()

	for e := s.mruList.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*tile.Tile)
		if t.PinCount() == 0 {
			s.mruList.Remove(e)
			t.SetElem(nil)
			s.size--
		}
		e = next
	}
	return nil
}

// Destroy frees all tiles regardless of pin count. Not thread-safe: the
// caller must have released all Clients first (spec §4.D "destroy").
func (s *Stack) Destroy() {
	for e := s.mruList.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*tile.Tile)
		s.mruList.Remove(e)
		t.SetElem(nil)
		e = next
	}
	s.size = 0
}

// ReleaseTile decrements t's pin count and, if the Stack is over its soft
// bound, runs the eviction pass right away. Must be called with the lock
// held.
func (s *Stack) ReleaseTile(t *tile.Tile) error {
	if t == nil {
		return nil
	}
	if err := t.Unpin(); err != nil {
		return err
	}
	if s.size > s.maxSize {
		s.evict()
	}
	return nil
}

