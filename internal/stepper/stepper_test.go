package stepper

import (
	"math"
	"testing"

	"github.com/jcom-dev/demstack/internal/geodesy"
)

func TestLayerPrecedenceFlatThenAlwaysHits(t *testing.T) {
	s := New()
	s.AddFlat(0)

	x, y, z := geodesy.GeodeticToECEF(10, 20, 0)
	_, _, _, ground, layerIdx, err := s.StepLayer([3]float64{x, y, z})
	if err != nil {
		t.Fatalf("StepLayer: %v", err)
	}
	if layerIdx != 0 {
		t.Errorf("layerIdx = %d, want 0 (only the Flat layer)", layerIdx)
	}
	if ground != 0 {
		t.Errorf("groundElev = %v, want 0", ground)
	}
}

func TestStepLayerReportsMissWithoutError(t *testing.T) {
	s := New() // no layers at all
	x, y, z := geodesy.GeodeticToECEF(10, 20, 0)
	_, _, _, _, layerIdx, err := s.StepLayer([3]float64{x, y, z})
	if err != nil {
		t.Fatalf("StepLayer: %v", err)
	}
	if layerIdx != -1 {
		t.Errorf("layerIdx = %d, want -1 for no layers", layerIdx)
	}
}

func TestStepSurfacesDomainErrorOnTotalMiss(t *testing.T) {
	s := New()
	x, y, z := geodesy.GeodeticToECEF(10, 20, 0)
	if _, _, _, _, err := s.Step([3]float64{x, y, z}); err == nil {
		t.Fatal("expected DomainError when no layer hits")
	}
}

func TestLocalFrameAccuracyWithinOneCentimeterAt100Meters(t *testing.T) {
	s := New()
	s.AddFlat(0)
	s.SetRange(100)

	phi0, lambda0, h0 := 45.0, 10.0, 200.0
	x0, y0, z0 := geodesy.GeodeticToECEF(phi0, lambda0, h0)

	// Prime the cache with an exact step.
	if _, _, _, _, _, err := s.StepLayer([3]float64{x0, y0, z0}); err != nil {
		t.Fatalf("priming StepLayer: %v", err)
	}

	east, north, up := geodesy.ENUBasis(phi0, lambda0)

	const n = 100
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / n
		e := 80 * math.Cos(angle)
		nrt := 80 * math.Sin(angle)
		u := 0.0

		dx := e*east[0] + nrt*north[0] + u*up[0]
		dy := e*east[1] + nrt*north[1] + u*up[1]
		dz := e*east[2] + nrt*north[2] + u*up[2]
		ecef := [3]float64{x0 + dx, y0 + dy, z0 + dz}

		phi, lambda, h, _, _, err := s.StepLayer(ecef)
		if err != nil {
			t.Fatalf("StepLayer: %v", err)
		}

		wantPhi, wantLambda, wantH := geodesy.ECEFToGeodetic(ecef[0], ecef[1], ecef[2])

		// Convert angular error to meters for a uniform tolerance check.
		phiErrM := math.Abs(phi-wantPhi) * math.Pi / 180 * geodesy.MeridionalRadius(phi0)
		lambdaErrM := math.Abs(lambda-wantLambda) * math.Pi / 180 * geodesy.PrimeVerticalRadius(phi0) * math.Cos(phi0*math.Pi/180)
		hErrM := math.Abs(h - wantH)

		if phiErrM > 0.01 || lambdaErrM > 0.01 || hErrM > 0.01 {
			t.Fatalf("point %d: phi err %.6fm, lambda err %.6fm, h err %.6fm (want <= 1cm)", i, phiErrM, lambdaErrM, hErrM)
		}
	}
}
