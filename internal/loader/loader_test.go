package loader

import "testing"

func TestFilenameConvention(t *testing.T) {
	cases := []struct {
		lat, lon int
		want     string
	}{
		{45, 3, "ASTGTM2_N45E003_dem.tif"},
		{-8, -1, "ASTGTM2_S08W001_dem.tif"},
		{0, 0, "ASTGTM2_N00E000_dem.tif"},
		{89, 180, "ASTGTM2_N89E180_dem.tif"},
	}
	for _, c := range cases {
		if got := Filename(c.lat, c.lon); got != c.want {
			t.Errorf("Filename(%d,%d) = %q, want %q", c.lat, c.lon, got, c.want)
		}
	}
}

func TestMemLoaderProducesFootprintConsistentWithFilename(t *testing.T) {
	ml := NewMem(4, 4, func(lat, lon, ix, iy, nx, ny int) int16 {
		return int16(lat*1000 + lon)
	})
	tl, err := ml.Load(45, 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tl.X0 != 3 || tl.Y0 != 45 {
		t.Errorf("origin = (%v,%v), want (3,45)", tl.X0, tl.Y0)
	}
	if !tl.Contains(45.5, 3.5) {
		t.Error("expected tile to contain its own interior point")
	}
}

func TestMemLoaderMissingTileIsPathError(t *testing.T) {
	ml := NewMem(4, 4, nil)
	ml.SetMissing(10, 10)
	if _, err := ml.Load(10, 10); err == nil {
		t.Fatal("expected PathError for missing tile")
	}
	if ml.Loads() != 0 {
		t.Errorf("Loads() = %d, want 0 after only a missing-tile lookup", ml.Loads())
	}
}

func TestGDEM2LoaderRejectsOutOfRangeCoordinates(t *testing.T) {
	l, err := New(t.TempDir(), FormatGDEM2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.Load(90, 0); err == nil {
		t.Fatal("expected DomainError for |lat| > 89")
	}
	if _, err := l.Load(0, 200); err == nil {
		t.Fatal("expected DomainError for |lon| > 180")
	}
}

func TestGDEM2LoaderMissingFileIsPathError(t *testing.T) {
	l, err := New(t.TempDir(), FormatGDEM2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.Load(45, 3); err == nil {
		t.Fatal("expected PathError for a tile absent from an empty directory")
	}
}
