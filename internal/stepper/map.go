package stepper

import (
	"github.com/airbusgeo/godal"

	"github.com/jcom-dev/demstack/internal/demerr"
	"github.com/jcom-dev/demstack/internal/projection"
	"github.com/jcom-dev/demstack/internal/tile"
)

// Map is the §3/§4.F "Map" layer: a single projected raster, as opposed to
// the Stack's tiled, lat/lon-keyed mosaic. It reuses tile.Tile's footprint
// test and bilinear interpolation — both are unit-agnostic ratio
// arithmetic, so the same grid math that works for a 1x1 degree GDEM2
// tile works equally well for a raster whose origin/step are in a
// projected CRS's native units (usually meters).
type Map struct {
	proj *projection.Projection
	grid *tile.Tile
}

// NewMap opens a single-file raster at path, interpreting its coordinates
// under the projection named by projStr (spec §6 grammar). The whole band
// is decoded eagerly: unlike the Stack's tiled mosaic, a Map layer is not
// pooled or evicted — it lives for the Stepper's lifetime.
func NewMap(path, projStr string) (*Map, error) {
	proj, err := projection.Parse(projStr)
	if err != nil {
		return nil, err
	}

	ds, err := godal.Open(path)
	if err != nil {
		proj.Close()
		return nil, demerr.Wrap(demerr.BadFormat, demerr.OpLoaderLoad, err, "failed to open map raster %s", path)
	}
	defer ds.Close()

	structure := ds.Structure()
	nx, ny := structure.SizeX, structure.SizeY
	if nx < 2 || ny < 2 {
		proj.Close()
		return nil, demerr.New(demerr.BadFormat, demerr.OpLoaderLoad, "map raster %s has degenerate size %dx%d", path, nx, ny)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		proj.Close()
		return nil, demerr.New(demerr.BadFormat, demerr.OpLoaderLoad, "map raster %s has no raster bands", path)
	}

	gt, err := ds.GeoTransform()
	if err != nil || gt[1] <= 0 || gt[5] >= 0 || gt[2] != 0 || gt[4] != 0 {
		proj.Close()
		return nil, demerr.New(demerr.BadFormat, demerr.OpLoaderLoad, "map raster %s has a missing or rotated geotransform", path)
	}
	dx := gt[1]
	dy := -gt[5]
	x0 := gt[0]
	y0 := gt[3] - dy*float64(ny)

	northUp := make([]int16, nx*ny)
	if err := bands[0].Read(0, 0, northUp, nx, ny); err != nil {
		proj.Close()
		return nil, demerr.Wrap(demerr.BadFormat, demerr.OpLoaderLoad, err, "failed to read map raster samples from %s", path)
	}
	southFirst := make([]int16, nx*ny)
	for row := 0; row < ny; row++ {
		dstRow := ny - 1 - row
		copy(southFirst[dstRow*nx:(dstRow+1)*nx], northUp[row*nx:(row+1)*nx])
	}

	grid, err := tile.New(nx, ny, x0, y0, dx, dy, southFirst)
	if err != nil {
		proj.Close()
		return nil, err
	}

	return &Map{proj: proj, grid: grid}, nil
}

// Elevation forward-projects the geodetic point (lonDeg, latDeg) into the
// Map's native CRS and samples it, per spec §4.F's map_elevation.
func (m *Map) Elevation(lonDeg, latDeg float64) (z float64, inside bool, err error) {
	x, y, err := m.proj.Forward(lonDeg, latDeg)
	if err != nil {
		return 0, false, err
	}
	if !m.grid.Contains(y, x) {
		return 0, false, nil
	}
	hx, hy := m.grid.Fractional(y, x)
	return m.grid.Interpolate(hx, hy), true, nil
}

// Close releases the Map's projection resources.
func (m *Map) Close() {
	m.proj.Close()
}
