// Package stepper implements spec §4.F: an ordered stack of elevation
// layers sampled from an ECEF ray-marching position, with a local-frame
// ECEF-to-geodetic cache that avoids the exact (and comparatively
// expensive) geodesy.ECEFToGeodetic call on every step.
package stepper

import (
	"log/slog"
	"math"

	"github.com/jcom-dev/demstack/internal/client"
	"github.com/jcom-dev/demstack/internal/demerr"
	"github.com/jcom-dev/demstack/internal/geodesy"
	"github.com/jcom-dev/demstack/internal/stack"
)

// GeoidFunc returns the geoid undulation (meters) at a geodetic point, used
// to convert ellipsoidal height to orthometric altitude.
type GeoidFunc func(lonDeg, latDeg float64) float64

// layer is the internal interface implemented by each of the three layer
// kinds in spec §3: Flat, Map, Stack.
type layer interface {
	elevation(latDeg, lonDeg float64) (z float64, inside bool, err error)
}

type flatLayer struct{ z0 float64 }

func (l flatLayer) elevation(float64, float64) (float64, bool, error) {
	return l.z0, true, nil
}

type mapLayer struct{ m *Map }

func (l mapLayer) elevation(latDeg, lonDeg float64) (float64, bool, error) {
	return l.m.Elevation(lonDeg, latDeg)
}

type stackLayer struct {
	client *client.Client // nil when the backing Stack has no lock callbacks
	stack  *stack.Stack
}

func (l stackLayer) elevation(latDeg, lonDeg float64) (float64, bool, error) {
	if l.client != nil {
		return l.client.ElevationInside(latDeg, lonDeg)
	}
	return l.stack.Elevation(latDeg, lonDeg)
}

// Stepper holds an ordered layer list (index 0 bottom, last-added top), an
// optional geoid correction, and the local-frame cache of spec §4.F.
type Stepper struct {
	layers       []layer
	ownedClients []*client.Client
	geoid        GeoidFunc
	rangeM       float64 // <= 0 disables the local-frame cache

	primed             bool
	p0                 [3]float64
	phi0, lambda0, h0  float64
	east0, north0, up0 [3]float64
}

// New returns an empty Stepper. Configure it with AddFlat/AddMap/AddStack,
// SetRange, and SetGeoid before calling Step.
func New() *Stepper {
	return &Stepper{}
}

// AddFlat appends a Flat layer at elevation z0 (meters), always a hit.
func (s *Stepper) AddFlat(z0 float64) {
	s.layers = append(s.layers, flatLayer{z0: z0})
}

// AddMap appends a Map layer. The Map is borrowed: the Stepper never
// closes it (spec §3 "externally supplied maps are borrowed").
func (s *Stepper) AddMap(m *Map) {
	s.layers = append(s.layers, mapLayer{m: m})
}

// AddStack appends a Stack layer. If st has lock/unlock callbacks, a
// dedicated Client is created and owned by the Stepper (spec §4.F/§3
// "Steppers own their Clients"); otherwise st's unsafe direct-path lookup
// is used, and st must never be shared across threads.
func (s *Stepper) AddStack(st *stack.Stack) error {
	if st.Threaded() {
		c, err := client.New(st)
		if err != nil {
			return demerr.Wrap(demerr.BadAddress, demerr.OpStepperAddStack, err, "failed to create client for stack layer")
		}
		s.ownedClients = append(s.ownedClients, c)
		s.layers = append(s.layers, stackLayer{client: c})
		return nil
	}
	s.layers = append(s.layers, stackLayer{stack: st})
	return nil
}

// SetRange configures the local-frame cache validity radius, in meters.
// rangeM > 0 enables the cache; rangeM <= 0 disables it.
func (s *Stepper) SetRange(rangeM float64) {
	s.rangeM = rangeM
	if rangeM <= 0 {
		s.primed = false
	}
}

// SetGeoid installs a geoid undulation function for orthometric altitude
// correction. Pass nil to remove it (heights are then purely ellipsoidal).
func (s *Stepper) SetGeoid(fn GeoidFunc) {
	s.geoid = fn
}

// Destroy releases every Client the Stepper created via AddStack. Maps and
// externally supplied Stacks are left untouched (borrowed, per spec §3).
func (s *Stepper) Destroy() error {
	for _, c := range s.ownedClients {
		if err := c.Destroy(); err != nil {
			return err
		}
	}
	s.ownedClients = nil
	s.layers = nil
	return nil
}

// stepResult is the full output of one step, shared by Step and StepLayer.
type stepResult struct {
	phi, lambda, h, groundElev float64
	layerIdx                   int
	hit                        bool
}

func (s *Stepper) stepGeodetic(ecef [3]float64) (phi, lambda, h float64, cached bool) {
	if s.rangeM > 0 && s.primed {
		dx := ecef[0] - s.p0[0]
		dy := ecef[1] - s.p0[1]
		dz := ecef[2] - s.p0[2]
		dist2 := dx*dx + dy*dy + dz*dz
		if dist2 <= s.rangeM*s.rangeM {
			e := dx*s.east0[0] + dy*s.east0[1] + dz*s.east0[2]
			n := dx*s.north0[0] + dy*s.north0[1] + dz*s.north0[2]
			u := dx*s.up0[0] + dy*s.up0[1] + dz*s.up0[2]

			mRad := geodesy.MeridionalRadius(s.phi0)
			nEarth := geodesy.PrimeVerticalRadius(s.phi0)
			phi0Rad := s.phi0 * math.Pi / 180

			phi = s.phi0 + math.Asin(clampUnit(n/mRad))*180/math.Pi
			lambda = s.lambda0 + math.Asin(clampUnit(e/(nEarth*math.Cos(phi0Rad))))*180/math.Pi
			h = s.h0 + u
			return phi, lambda, h, true
		}
	}

	phi, lambda, h = geodesy.ECEFToGeodetic(ecef[0], ecef[1], ecef[2])
	if s.rangeM > 0 {
		s.p0 = ecef
		s.phi0, s.lambda0, s.h0 = phi, lambda, h
		s.east0, s.north0, s.up0 = geodesy.ENUBasis(phi, lambda)
		s.primed = true
	}
	return phi, lambda, h, false
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func (s *Stepper) step(ecef [3]float64) (stepResult, error) {
	phi, lambda, h, cached := s.stepGeodetic(ecef)

	hOrtho := h
	if s.geoid != nil {
		hOrtho = h - s.geoid(lambda, phi)
	}

	for i := len(s.layers) - 1; i >= 0; i-- {
		z, inside, err := s.layers[i].elevation(phi, lambda)
		if err != nil {
			return stepResult{}, err
		}
		if inside {
			slog.Debug("stepper: step hit", "lat", phi, "lon", lambda, "layer", i, "localFrameCache", cached)
			return stepResult{phi: phi, lambda: lambda, h: hOrtho, groundElev: z, layerIdx: i, hit: true}, nil
		}
	}
	slog.Debug("stepper: step missed every layer", "lat", phi, "lon", lambda, "localFrameCache", cached)
	return stepResult{phi: phi, lambda: lambda, h: hOrtho, layerIdx: -1}, nil
}

// StepLayer implements spec §4.F's step(...) with the layer_idx out-
// parameter form: a miss across every layer is reported as Ok with
// layerIdx == -1 rather than an error.
func (s *Stepper) StepLayer(ecef [3]float64) (phi, lambda, h, groundElev float64, layerIdx int, err error) {
	r, err := s.step(ecef)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	return r.phi, r.lambda, r.h, r.groundElev, r.layerIdx, nil
}

// Step implements spec §4.F's step(...) without the layer_idx out-
// parameter: a miss across every layer surfaces DomainError.
func (s *Stepper) Step(ecef [3]float64) (phi, lambda, h, groundElev float64, err error) {
	r, err := s.step(ecef)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if !r.hit {
		return 0, 0, 0, 0, demerr.New(demerr.DomainError, demerr.OpStepperStep, "no layer covers (%v, %v)", r.phi, r.lambda)
	}
	return r.phi, r.lambda, r.h, r.groundElev, nil
}
