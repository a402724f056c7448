// Package client implements spec §4.E: a per-reader handle onto a Stack
// that keeps one tile pinned between queries so that repeated lookups in
// the same footprint never touch the Stack's lock.
package client

import (
	"math"

	"github.com/jcom-dev/demstack/internal/demerr"
	"github.com/jcom-dev/demstack/internal/stack"
	"github.com/jcom-dev/demstack/internal/tile"
)

// tileKey is the integer-degree identity of a missing lookup, used for the
// last_failed suppression of spec §4.E step 2. Not a magic (0,0) sentinel
// (spec §9 "Use a tagged option rather than a magic integer") — the zero
// value has `has == false`.
type tileKey struct {
	lat, lon int
	has      bool
}

// Client is a per-reader handle onto a Stack. It is not safe for concurrent
// use by more than one goroutine (spec §5: "clients are not shareable
// across threads without external synchronization").
type Client struct {
	stack      *stack.Stack
	pinned     *tile.Tile
	lastFailed tileKey
	destroyed  bool
}

// New builds a Client bound to s. Per spec §5, a Client against a lock-less
// Stack is a contract violation detected here, not on first use.
func New(s *stack.Stack) (*Client, error) {
	if !s.Threaded() {
		return nil, demerr.New(demerr.BadAddress, demerr.OpClientNew, "client requires a Stack constructed with lock/unlock callbacks")
	}
	return &Client{stack: s}, nil
}

// Elevation implements spec §4.E's elevation(client, lat, lon) for callers
// that want a miss reported as PathError.
func (c *Client) Elevation(lat, lon float64) (float64, error) {
	z, inside, err := c.elevation(lat, lon, false)
	if err != nil {
		return 0, err
	}
	if !inside {
		return 0, demerr.New(demerr.PathError, demerr.OpClientElevation, "no tile covers (%v, %v)", lat, lon)
	}
	return z, nil
}

// ElevationInside implements spec §4.E's elevation(..., out_inside) form:
// a miss is reported as Ok with inside=false rather than an error.
func (c *Client) ElevationInside(lat, lon float64) (z float64, inside bool, err error) {
	return c.elevation(lat, lon, true)
}

func (c *Client) elevation(lat, lon float64, wantInside bool) (float64, bool, error) {
	if c.destroyed {
		return 0, false, demerr.New(demerr.LibraryError, demerr.OpClientElevation, "client used after destroy")
	}

	// Fast path: no lock. Step 1.
	if c.pinned != nil && c.pinned.Contains(lat, lon) {
		hx, hy := c.pinned.Fractional(lat, lon)
		return c.pinned.Interpolate(hx, hy), true, nil
	}

	// Fast path: last_failed suppression. Step 2.
	latDeg, lonDeg := int(math.Floor(lat)), int(math.Floor(lon))
	if c.pinned == nil && c.lastFailed.has && c.lastFailed.lat == latDeg && c.lastFailed.lon == lonDeg {
		return 0, false, nil
	}

	// Slow path: under the Stack's lock. Steps 3-7.
	if err := c.stack.Lock(); err != nil {
		return 0, false, err
	}

	t, loadErr := c.stack.LookupTile(lat, lon, c.pinned)
	if loadErr != nil {
		if demerr.ClassOf(errCode(loadErr)) == demerr.ClassIO {
			// Step 5: demote a missing-tile miss to last_failed suppression.
			if err := c.releaseCurrentLocked(); err != nil {
				c.stack.Unlock()
				return 0, false, err
			}
			c.lastFailed = tileKey{lat: latDeg, lon: lonDeg, has: true}
			if err := c.stack.Unlock(); err != nil {
				return 0, false, err
			}
			return 0, false, nil
		}
		c.stack.Unlock()
		return 0, false, loadErr
	}

	// Step 6: swap the pin from the old tile to the new one.
	if err := c.releaseCurrentLocked(); err != nil {
		c.stack.Unlock()
		return 0, false, err
	}
	t.Pin()
	c.pinned = t
	c.lastFailed = tileKey{}

	if err := c.stack.Unlock(); err != nil {
		return 0, false, err
	}

	// Step 7: interpolate after release - tiles are immutable once loaded
	// (spec §5), so reading pinned's samples post-unlock is safe.
	hx, hy := t.Fractional(lat, lon)
	return t.Interpolate(hx, hy), true, nil
}

// releaseCurrentLocked releases c's current pin, if any, using the Stack's
// no-re-lock internal release (spec §9 "Keep the callback interface at the
// boundary, but internally express acquire/do-work/release as a scoped
// critical section"). Must be called with the Stack lock already held.
func (c *Client) releaseCurrentLocked() error {
	if c.pinned == nil {
		return nil
	}
	if err := c.stack.ReleaseTile(c.pinned); err != nil {
		return err
	}
	c.pinned = nil
	return nil
}

// Clear releases the client's pinned tile, if any, under the Stack lock.
func (c *Client) Clear() error {
	if c.destroyed {
		return nil
	}
	if err := c.stack.Lock(); err != nil {
		return err
	}
	defer c.stack.Unlock()
	return c.releaseCurrentLocked()
}

// Destroy clears the client's pin and marks it unusable for further
// queries (spec §4.E "destroy(client) — clear + free").
func (c *Client) Destroy() error {
	if err := c.Clear(); err != nil {
		return err
	}
	c.destroyed = true
	return nil
}

// errCode extracts the demerr.Code from err, or Success if err doesn't
// carry one (treated as "not classifiable", falling through to surface).
func errCode(err error) demerr.Code {
	if de, ok := err.(*demerr.Error); ok {
		return de.Code
	}
	return demerr.Success
}
