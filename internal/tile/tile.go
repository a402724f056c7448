// Package tile implements the decoded raster representation described in
// spec §3/§4.B: a grid of signed elevation samples with a lower-left
// (x0, y0) origin in degrees, a pin count that keeps a Stack from
// reclaiming a tile while any Client references it, and the intrusive MRU
// list link the owning Stack threads it on.
package tile

import (
	"container/list"

	"github.com/jcom-dev/demstack/internal/demerr"
)

// Tile is a decoded 1x1 degree (or arbitrary) elevation raster. iy=0 is the
// SOUTH row; loaders that read a north-up source format must reverse rows
// on ingest so this invariant holds (spec §4.B).
type Tile struct {
	NX, NY int       // grid dimensions, >= 2
	X0, Y0 float64    // lower-left origin, degrees
	DX, DY float64    // step per cell, degrees

	samples []int16 // row-major, row 0 = south, length NX*NY

	pinCount int
	elem     *list.Element // this tile's node in the owning Stack's MRU list; nil if untracked
}

// New constructs a Tile from a row-major (south-first) sample buffer. It
// validates the grid-size invariant (nx, ny >= 2) required by spec §3.
func New(nx, ny int, x0, y0, dx, dy float64, samples []int16) (*Tile, error) {
	if nx < 2 || ny < 2 {
		return nil, demerr.New(demerr.DomainError, demerr.OpTileSample, "tile grid must be at least 2x2, got %dx%d", nx, ny)
	}
	if len(samples) != nx*ny {
		return nil, demerr.New(demerr.DomainError, demerr.OpTileSample, "sample buffer length %d does not match %dx%d grid", len(samples), nx, ny)
	}
	return &Tile{NX: nx, NY: ny, X0: x0, Y0: y0, DX: dx, DY: dy, samples: samples}, nil
}

// Z returns the elevation, in meters, at grid node (ix, iy). iy=0 is south.
func (t *Tile) Z(ix, iy int) float64 {
	return float64(t.samples[iy*t.NX+ix])
}

// PinCount reports the tile's current reference count.
func (t *Tile) PinCount() int { return t.pinCount }

// Pin increments the tile's pin count. Called by a Client (under the
// owning Stack's lock) when it starts referencing this tile.
func (t *Tile) Pin() { t.pinCount++ }

// Unpin decrements the tile's pin count. A pin-count underflow (observed
// count < 0 after decrement) is a library bug per spec §5 "Poisoning": the
// count is snapped to 0 and LibraryError is returned instead of panicking.
func (t *Tile) Unpin() error {
	t.pinCount--
	if t.pinCount < 0 {
		t.pinCount = 0
		return demerr.New(demerr.LibraryError, demerr.OpTileSample, "pin count underflow")
	}
	return nil
}

// Contains reports whether the geodetic point (lat, lon) falls within this
// tile's footprint, per the containment test in spec §4.D:
// 0 <= (lon-x0)/dx <= nx and 0 <= (lat-y0)/dy <= ny.
func (t *Tile) Contains(lat, lon float64) bool {
	hx := (lon - t.X0) / t.DX
	hy := (lat - t.Y0) / t.DY
	return hx >= 0 && hx <= float64(t.NX) && hy >= 0 && hy <= float64(t.NY)
}

// Fractional converts a geodetic point inside (or on the edge of) this
// tile's footprint into fractional grid coordinates (hx, hy), as consumed
// by Interpolate.
func (t *Tile) Fractional(lat, lon float64) (hx, hy float64) {
	return (lon - t.X0) / t.DX, (lat - t.Y0) / t.DY
}

// Interpolate performs the bilinear interpolation of spec §4.B given
// fractional grid coordinates 0 <= hx <= nx, 0 <= hy <= ny.
func (t *Tile) Interpolate(hx, hy float64) float64 {
	ix := clampInt(int(hx), 0, t.NX-1)
	iy := clampInt(int(hy), 0, t.NY-1)
	ix1 := minInt(ix+1, t.NX-1)
	iy1 := minInt(iy+1, t.NY-1)
	fx := hx - float64(ix)
	fy := hy - float64(iy)

	z00 := t.Z(ix, iy)
	z01 := t.Z(ix, iy1)
	z10 := t.Z(ix1, iy)
	z11 := t.Z(ix1, iy1)

	return z00*(1-fx)*(1-fy) + z01*(1-fx)*fy + z10*fx*(1-fy) + z11*fx*fy
}

// Elem returns the tile's MRU list element, or nil if it isn't (yet)
// tracked by a Stack.
func (t *Tile) Elem() *list.Element { return t.elem }

// SetElem is called by Stack bookkeeping to attach/detach the tile's MRU
// list node.
func (t *Tile) SetElem(e *list.Element) { t.elem = e }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
