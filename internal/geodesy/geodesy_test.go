package geodesy

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestGeodeticECEFRoundTrip(t *testing.T) {
	cases := []struct{ phi, lambda, h float64 }{
		{0, 0, 0},
		{45, 90, 1000},
		{-33.9, 151.2, 50},
		{88, -120, 200},
		{-88, 10, -10},
	}
	for _, c := range cases {
		x, y, z := GeodeticToECEF(c.phi, c.lambda, c.h)
		phi, lambda, h := ECEFToGeodetic(x, y, z)
		if !almostEqual(phi, c.phi, 1e-6) {
			t.Errorf("phi round trip: got %v want %v", phi, c.phi)
		}
		if !almostEqual(lambda, c.lambda, 1e-6) {
			t.Errorf("lambda round trip: got %v want %v", lambda, c.lambda)
		}
		if !almostEqual(h, c.h, 1e-3) {
			t.Errorf("h round trip: got %v want %v", h, c.h)
		}
	}
}

func TestGeodeticToECEFAtPoles(t *testing.T) {
	x, y, z := GeodeticToECEF(90, 0, 0)
	if !almostEqual(x, 0, 1e-6) || !almostEqual(y, 0, 1e-6) {
		t.Errorf("north pole x,y = %v,%v want 0,0", x, y)
	}
	// At the pole N = a/sqrt(1-e^2), so z = N(1-e^2) + h = b + h.
	wantZ := SemiMinorAxis
	if !almostEqual(z, wantZ, 1e-3) {
		t.Errorf("north pole z = %v want %v", z, wantZ)
	}

	x, y, z = GeodeticToECEF(-90, 0, 0)
	if !almostEqual(x, 0, 1e-6) || !almostEqual(y, 0, 1e-6) {
		t.Errorf("south pole x,y = %v,%v want 0,0", x, y)
	}
	if !almostEqual(z, -wantZ, 1e-3) {
		t.Errorf("south pole z = %v want %v", z, -wantZ)
	}
}

func TestECEFToGeodeticPolarSpecialCase(t *testing.T) {
	phi, lambda, h := ECEFToGeodetic(0, 0, SemiMinorAxis+100)
	if phi != 90 || lambda != 0 {
		t.Errorf("polar special case phi,lambda = %v,%v want 90,0", phi, lambda)
	}
	if !almostEqual(h, 100, 1e-6) {
		t.Errorf("polar special case h = %v want 100", h)
	}
}

func TestHorizontalRoundTrip(t *testing.T) {
	cases := []struct{ phi, lambda, az, el float64 }{
		{45, 10, 30, 20},
		{0, 0, 90, 0},
		{-20, 100, 350, 45},
		{60, -70, 10, 89},
	}
	for _, c := range cases {
		d := ECEFFromHorizontal(c.phi, c.lambda, c.az, c.el)
		az, el, err := ECEFToHorizontal(c.phi, c.lambda, d)
		if err != nil {
			t.Fatalf("ECEFToHorizontal: %v", err)
		}
		if !almostEqual(el, c.el, 1e-6) {
			t.Errorf("elevation round trip: got %v want %v", el, c.el)
		}
		// azimuth wraps at 360; compare modulo.
		diff := math.Mod(az-c.az+540, 360) - 180
		if !almostEqual(diff, 0, 1e-6) {
			t.Errorf("azimuth round trip: got %v want %v (diff %v)", az, c.az, diff)
		}
	}
}

func TestECEFToHorizontalZeroVectorIsDomainError(t *testing.T) {
	_, _, err := ECEFToHorizontal(0, 0, [3]float64{0, 0, 0})
	if err == nil {
		t.Fatal("expected DomainError for zero vector")
	}
}
