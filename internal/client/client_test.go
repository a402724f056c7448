package client

import (
	"testing"

	"github.com/jcom-dev/demstack/internal/loader"
	"github.com/jcom-dev/demstack/internal/stack"
)

func newTestStack(t *testing.T, maxSize int) *stack.Stack {
	t.Helper()
	ml := loader.NewMem(4, 4, func(lat, lon, ix, iy, nx, ny int) int16 {
		return int16(lat*1000 + lon)
	})
	s, err := stack.Create("/tmp/unused/", maxSize, loader.FormatGDEM2, stack.WithMutex(), stack.WithLoader(ml))
	if err != nil {
		t.Fatalf("stack.Create: %v", err)
	}
	return s
}

func TestClientRequiresThreadedStack(t *testing.T) {
	ml := loader.NewMem(4, 4, nil)
	s, err := stack.Create("/tmp/unused/", 4, loader.FormatGDEM2, stack.WithLoader(ml))
	if err != nil {
		t.Fatalf("stack.Create: %v", err)
	}
	if _, err := New(s); err == nil {
		t.Fatal("expected New to reject a lock-less Stack")
	}
}

func TestFastPathHitsWithoutLoaderCall(t *testing.T) {
	ml := loader.NewMem(4, 4, nil)
	s, err := stack.Create("/tmp/unused/", 2, loader.FormatGDEM2, stack.WithMutex(), stack.WithLoader(ml))
	if err != nil {
		t.Fatalf("stack.Create: %v", err)
	}
	c, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Elevation(45.5, 3.5); err != nil {
		t.Fatalf("first Elevation: %v", err)
	}
	if _, err := c.Elevation(45.6, 3.6); err != nil {
		t.Fatalf("second Elevation (fast path): %v", err)
	}
	if got := ml.Loads(); got != 1 {
		t.Errorf("Loads() = %d, want 1 (second query served by the pinned tile)", got)
	}
}

func TestMissingTileSuppressionAvoidsReload(t *testing.T) {
	ml := loader.NewMem(4, 4, nil)
	ml.SetMissing(10, 10)
	locks := 0
	s, err := stack.Create("/tmp/unused/", 2, loader.FormatGDEM2,
		stack.WithLockCallbacks(func() error { locks++; return nil }, func() error { return nil }),
		stack.WithLoader(ml))
	if err != nil {
		t.Fatalf("stack.Create: %v", err)
	}
	c, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, inside, err := c.ElevationInside(10, 10)
	if err != nil {
		t.Fatalf("first ElevationInside: %v", err)
	}
	if inside {
		t.Fatal("expected a miss against an empty directory")
	}

	_, inside, err = c.ElevationInside(10.5, 10.5)
	if err != nil {
		t.Fatalf("second ElevationInside: %v", err)
	}
	if inside {
		t.Fatal("expected the last_failed suppression to report inside=false again")
	}
	if locks != 1 {
		t.Errorf("lock acquired %d times, want 1 (second miss must not reach the Stack)", locks)
	}
}

func TestElevationSurfacesPathErrorWithoutInsideParam(t *testing.T) {
	ml := loader.NewMem(4, 4, nil)
	ml.SetMissing(10, 10)
	s, err := stack.Create("/tmp/unused/", 2, loader.FormatGDEM2, stack.WithMutex(), stack.WithLoader(ml))
	if err != nil {
		t.Fatalf("stack.Create: %v", err)
	}
	c, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Elevation(10, 10); err == nil {
		t.Fatal("expected PathError for a miss against an empty directory")
	}
}

func TestPinSwapReleasesPreviousTile(t *testing.T) {
	s := newTestStack(t, 1)
	c, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Elevation(45.5, 3.5); err != nil {
		t.Fatalf("elevation in tile A: %v", err)
	}
	if s.Stats().Pinned != 1 {
		t.Fatalf("pinned = %d, want 1", s.Stats().Pinned)
	}

	if _, err := c.Elevation(46.5, 3.5); err != nil {
		t.Fatalf("elevation in tile B: %v", err)
	}
	stats := s.Stats()
	if stats.Pinned != 1 {
		t.Fatalf("pinned after swap = %d, want 1 (old tile released)", stats.Pinned)
	}
	if stats.Size != 1 {
		t.Fatalf("size after swap = %d, want 1 (unpinned A evicted under max_size=1)", stats.Size)
	}
}

func TestDestroyPreventsFurtherUse(t *testing.T) {
	s := newTestStack(t, 2)
	c, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Elevation(45.5, 3.5); err != nil {
		t.Fatalf("elevation: %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if s.Stats().Pinned != 0 {
		t.Fatalf("pinned after destroy = %d, want 0", s.Stats().Pinned)
	}
	if _, err := c.Elevation(45.5, 3.5); err == nil {
		t.Fatal("expected use-after-destroy to fail")
	}
}
