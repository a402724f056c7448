// Package projection parses the projection-string grammar of spec §6 and
// forward-transforms WGS84 geodetic coordinates into a projected CRS, for
// the stepper's Map layer. It leans on github.com/airbusgeo/godal's spatial
// reference layer (OSR) rather than a second, cgo-heavy PROJ binding —
// godal already pulls in libgdal/libproj for the tile loader, so
// constructing a second SpatialRef off the same binding costs nothing
// extra in the dependency graph.
package projection

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/jcom-dev/demstack/internal/demerr"
)

// lambertEPSG maps the named French Lambert zones of spec §6 to EPSG codes:
// the legacy NTF-datum codes for the classical zones, and the RGF93 code
// 2154 for Lambert 93.
var lambertEPSG = map[string]int{
	"lambert i":   27571,
	"lambert ii":  27572,
	"lambert iie": 27572,
	"lambert iii": 27573,
	"lambert iv":  27574,
	"lambert 93":  2154,
}

var utmZoneRe = regexp.MustCompile(`(?i)^utm\s+(\d+)\s*([ns])$`)
var utmLonRe = regexp.MustCompile(`(?i)^utm\s+(-?\d+(?:\.\d+)?)\s*([ns])$`)

// Projection is a parsed §6 projection string, ready to forward-transform
// WGS84 geodetic coordinates into its native CRS.
type Projection struct {
	raw string
	sr  *godal.SpatialRef
}

// Parse parses a projection string per spec §6's grammar:
//   - "Lambert I" | "Lambert II" | "Lambert IIe" | "Lambert III" | "Lambert IV" | "Lambert 93"
//   - "UTM {zone:int}{N|S}" with zone in [1, 60]
//   - "UTM {central_longitude:float}{N|S}"
//
// Anything else is BadProjection.
func Parse(s string) (*Projection, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)

	if epsg, ok := lambertEPSG[lower]; ok {
		sr, err := godal.NewSpatialRefFromEPSG(epsg)
		if err != nil {
			return nil, demerr.Wrap(demerr.BadProjection, demerr.OpProjectionParse, err, "failed to construct spatial reference for %q", s)
		}
		return &Projection{raw: trimmed, sr: sr}, nil
	}

	if m := utmZoneRe.FindStringSubmatch(trimmed); m != nil {
		zone, err := strconv.Atoi(m[1])
		if err != nil || zone < 1 || zone > 60 {
			return nil, demerr.New(demerr.BadProjection, demerr.OpProjectionParse, "UTM zone out of range [1,60]: %q", s)
		}
		epsg := 32600 + zone
		if strings.EqualFold(m[2], "s") {
			epsg = 32700 + zone
		}
		sr, err := godal.NewSpatialRefFromEPSG(epsg)
		if err != nil {
			return nil, demerr.Wrap(demerr.BadProjection, demerr.OpProjectionParse, err, "failed to construct UTM zone %s spatial reference", m[1])
		}
		return &Projection{raw: trimmed, sr: sr}, nil
	}

	if m := utmLonRe.FindStringSubmatch(trimmed); m != nil {
		centralLon, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, demerr.New(demerr.BadProjection, demerr.OpProjectionParse, "malformed UTM central longitude: %q", s)
		}
		hemisphere := 0.0
		if strings.EqualFold(m[2], "s") {
			hemisphere = 10000000
		}
		proj4 := fmt.Sprintf("+proj=tmerc +lat_0=0 +lon_0=%g +k=0.9996 +x_0=500000 +y_0=%g +datum=WGS84 +units=m +no_defs", centralLon, hemisphere)
		sr, err := godal.NewSpatialRefFromProj4(proj4)
		if err != nil {
			return nil, demerr.Wrap(demerr.BadProjection, demerr.OpProjectionParse, err, "failed to construct custom UTM spatial reference for %q", s)
		}
		return &Projection{raw: trimmed, sr: sr}, nil
	}

	return nil, demerr.New(demerr.BadProjection, demerr.OpProjectionParse, "unrecognized projection grammar: %q", s)
}

// Forward transforms a WGS84 geodetic point (lonDeg, latDeg) into this
// Projection's native CRS coordinates (x, y).
func (p *Projection) Forward(lonDeg, latDeg float64) (x, y float64, err error) {
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return 0, 0, demerr.Wrap(demerr.LibraryError, demerr.OpProjectionForward, err, "failed to construct WGS84 spatial reference")
	}
	defer wgs84.Close()

	transform, err := wgs84.NewTransform(p.sr)
	if err != nil {
		return 0, 0, demerr.Wrap(demerr.BadProjection, demerr.OpProjectionForward, err, "failed to build transform for %q", p.raw)
	}
	defer transform.Close()

	xs := []float64{lonDeg}
	ys := []float64{latDeg}
	zs := []float64{0}
	if err := transform.TransformEx(xs, ys, zs, nil); err != nil {
		return 0, 0, demerr.Wrap(demerr.DomainError, demerr.OpProjectionForward, err, "transform failed for (%v, %v) under %q", lonDeg, latDeg, p.raw)
	}
	return xs[0], ys[0], nil
}

// String returns the original, unparsed projection string.
func (p *Projection) String() string { return p.raw }

// Close releases the underlying GDAL spatial reference. Safe to call once
// a Projection is no longer needed; Projections are otherwise long-lived
// (one per Map layer).
func (p *Projection) Close() {
	if p.sr != nil {
		p.sr.Close()
	}
}
