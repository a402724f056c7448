package loader

import (
	"fmt"
	"sync"

	"github.com/jcom-dev/demstack/internal/demerr"
	"github.com/jcom-dev/demstack/internal/tile"
)

// ElevationFunc produces a synthetic elevation sample for a grid node.
type ElevationFunc func(latDeg, lonDeg int, ix, iy, nx, ny int) int16

// MemLoader is an in-memory Loader for tests, standing in for a real
// GeoTIFF mosaic the way the teacher's miniredis stands in for a real
// Redis server: deterministic, no filesystem fixtures required.
type MemLoader struct {
	mu        sync.Mutex
	nx, ny    int
	elevation ElevationFunc
	missing   map[[2]int]bool
	loads     int // number of Load calls that actually decoded a tile; exported via Loads()
}

// NewMem returns a MemLoader producing nx*ny tiles via fn. If fn is nil,
// every sample is 0.
func NewMem(nx, ny int, fn ElevationFunc) *MemLoader {
	if fn == nil {
		fn = func(int, int, int, int, int, int) int16 { return 0 }
	}
	return &MemLoader{nx: nx, ny: ny, elevation: fn, missing: make(map[[2]int]bool)}
}

// SetMissing marks the given integer-degree tile as absent: Load will
// return PathError for it, exercising spec §4.E's missing-tile suppression.
func (m *MemLoader) SetMissing(latDeg, lonDeg int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing[[2]int{latDeg, lonDeg}] = true
}

// Loads returns how many times Load actually constructed a tile (as
// opposed to short-circuiting on a missing entry), for assertions about
// cache-hit behavior.
func (m *MemLoader) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *MemLoader) Load(latDeg, lonDeg int) (*tile.Tile, error) {
	if lonDeg < -180 || lonDeg > 180 || latDeg < -89 || latDeg > 89 {
		return nil, demerr.New(demerr.DomainError, demerr.OpLoaderLoad, "coordinate out of range")
	}

	m.mu.Lock()
	missing := m.missing[[2]int{latDeg, lonDeg}]
	m.mu.Unlock()
	if missing {
		return nil, demerr.New(demerr.PathError, demerr.OpLoaderLoad, "no tile for (%d,%d)", latDeg, lonDeg)
	}

	samples := make([]int16, m.nx*m.ny)
	for iy := 0; iy < m.ny; iy++ {
		for ix := 0; ix < m.nx; ix++ {
			samples[iy*m.nx+ix] = m.elevation(latDeg, lonDeg, ix, iy, m.nx, m.ny)
		}
	}

	dx := 1.0 / float64(m.nx-1)
	dy := 1.0 / float64(m.ny-1)
	t, err := tile.New(m.nx, m.ny, float64(lonDeg), float64(latDeg), dx, dy, samples)
	if err != nil {
		return nil, fmt.Errorf("memloader: %w", err)
	}

	m.mu.Lock()
	m.loads++
	m.mu.Unlock()

	return t, nil
}
