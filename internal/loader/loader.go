// Package loader implements spec §4.C: mapping an integer-degree
// (lat, lon) pair to an on-disk tile filename and decoding it into a
// tile.Tile via an external GeoTIFF16 reader (github.com/airbusgeo/godal).
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"

	"github.com/jcom-dev/demstack/internal/demerr"
	"github.com/jcom-dev/demstack/internal/tile"
)

// Format names a tile naming/layout convention. GDEM2 is the only format
// this spec requires (spec §6); the type exists so a second format can be
// added without reshaping the Loader interface.
type Format string

const (
	FormatGDEM2 Format = "gdem2"
)

// Loader maps an integer-degree (lat, lon) pair to a decoded Tile.
type Loader interface {
	Load(latDeg, lonDeg int) (*tile.Tile, error)
}

// gdalRegistered guards godal.RegisterAll, which is process-global and
// idempotent but not meant to be called repeatedly from concurrent
// constructors.
var gdalRegistered bool

func ensureGDALRegistered() {
	if !gdalRegistered {
		godal.RegisterAll()
		gdalRegistered = true
	}
}

// GDEM2Loader loads ASTER-GDEM2-convention tiles from a directory.
type GDEM2Loader struct {
	dir string
}

// New returns a Loader for the given base directory and format. The
// directory is not required to exist yet: a missing file surfaces as
// PathError per-lookup, per spec §4.C.
func New(dir string, format Format) (Loader, error) {
	switch format {
	case FormatGDEM2, "":
		ensureGDALRegistered()
		return &GDEM2Loader{dir: dir}, nil
	default:
		return nil, demerr.New(demerr.BadFormat, demerr.OpLoaderLoad, "unsupported tile format %q", format)
	}
}

// Filename returns the GDEM2 filename for the integer-degree tile whose
// south-west corner is (latDeg, lonDeg): ASTGTM2_{N|S}{LL:02}{E|W}{LLL:03}_dem.tif.
func Filename(latDeg, lonDeg int) string {
	ns := "N"
	if latDeg < 0 {
		ns = "S"
	}
	ew := "E"
	if lonDeg < 0 {
		ew = "W"
	}
	return fmt.Sprintf("ASTGTM2_%s%02d%s%03d_dem.tif", ns, abs(latDeg), ew, abs(lonDeg))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Load implements Loader for GDEM2 tiles.
func (l *GDEM2Loader) Load(latDeg, lonDeg int) (*tile.Tile, error) {
	if lonDeg < -180 || lonDeg > 180 {
		return nil, demerr.New(demerr.DomainError, demerr.OpLoaderLoad, "longitude %d out of range [-180,180]", lonDeg)
	}
	if latDeg < -89 || latDeg > 89 {
		return nil, demerr.New(demerr.DomainError, demerr.OpLoaderLoad, "latitude %d out of range [-89,89]", latDeg)
	}

	path := filepath.Join(l.dir, Filename(latDeg, lonDeg))

	if _, err := os.Stat(path); err != nil {
		return nil, demerr.Wrap(demerr.PathError, demerr.OpLoaderLoad, err, "tile file not found: %s", path)
	}

	ds, err := godal.Open(path)
	if err != nil {
		return nil, demerr.Wrap(demerr.BadFormat, demerr.OpLoaderLoad, err, "failed to open tile %s", path)
	}
	defer ds.Close()

	structure := ds.Structure()
	nx, ny := structure.SizeX, structure.SizeY
	if nx < 2 || ny < 2 {
		return nil, demerr.New(demerr.BadFormat, demerr.OpLoaderLoad, "tile %s has degenerate size %dx%d", path, nx, ny)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, demerr.New(demerr.BadFormat, demerr.OpLoaderLoad, "tile %s has no raster bands", path)
	}

	// GeoTransform abstracts the required GeoPixelScale/GeoTiePoints tags
	// (spec §6); a missing or rotated transform is BadFormat even though
	// GDEM2's own dx/dy invariant (spec §3: dx=1/(nx-1), dy=1/(ny-1)) is
	// derived from grid size rather than trusted from the file verbatim.
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, demerr.Wrap(demerr.BadFormat, demerr.OpLoaderLoad, err, "tile %s is missing GeoPixelScale/GeoTiePoints tags", path)
	}
	if gt[1] <= 0 || gt[5] >= 0 || gt[2] != 0 || gt[4] != 0 {
		return nil, demerr.New(demerr.BadFormat, demerr.OpLoaderLoad, "tile %s has a degenerate or rotated geotransform", path)
	}

	dx := 1.0 / float64(nx-1)
	dy := 1.0 / float64(ny-1)

	// Read north-up row-major samples, then reverse rows so the in-memory
	// layout is south-first (spec §4.B).
	northUp := make([]int16, nx*ny)
	if err := bands[0].Read(0, 0, northUp, nx, ny); err != nil {
		return nil, demerr.Wrap(demerr.BadFormat, demerr.OpLoaderLoad, err, "failed to read tile samples from %s", path)
	}

	southFirst := make([]int16, nx*ny)
	for row := 0; row < ny; row++ {
		srcRow := row              // north-up source row index counting from the top
		dstRow := ny - 1 - row     // south-first destination row index
		copy(southFirst[dstRow*nx:(dstRow+1)*nx], northUp[srcRow*nx:(srcRow+1)*nx])
	}

	t, err := tile.New(nx, ny, float64(lonDeg), float64(latDeg), dx, dy, southFirst)
	if err != nil {
		return nil, demerr.Wrap(demerr.BadFormat, demerr.OpLoaderLoad, err, "tile %s failed validation", path)
	}

	slog.Debug("tile loaded", "path", path, "nx", nx, "ny", ny, "lat", latDeg, "lon", lonDeg)
	return t, nil
}
