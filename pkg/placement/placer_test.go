package placement

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/scene"
	"github.com/matzehuels/domrand/pkg/scene/fake"
)

func newTestPlacer(t *testing.T, seed uint64, opts Options) (*Placer, *fake.Simulator, []scene.Handle, scene.Handle) {
	t.Helper()
	ctx := context.Background()
	sim := fake.New()
	objs, err := scene.Handles(ctx, sim, []string{"obj0", "obj1", "obj2", "obj3", "obj4"})
	if err != nil {
		t.Fatal(err)
	}
	plate, _ := sim.ObjectHandle(ctx, "plate")
	p, err := New(sim, objs, plate, rand.New(rand.NewPCG(seed, seed^0xdeadbeef)), opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p, sim, objs, plate
}

func TestGridBlock(t *testing.T) {
	tests := []struct {
		id   int
		want Rect
	}{
		{0, Rect{MinX: -0.2, MaxX: -0.07, MinY: -0.2, MaxY: -0.07}},
		{1, Rect{MinX: -0.07, MaxX: 0.07, MinY: -0.2, MaxY: -0.07}},
		{3, Rect{MinX: -0.2, MaxX: -0.07, MinY: -0.07, MaxY: 0.07}},
		{4, Rect{MinX: -0.07, MaxX: 0.07, MinY: -0.07, MaxY: 0.07}},
		{8, Rect{MinX: 0.07, MaxX: 0.2, MinY: 0.07, MaxY: 0.2}},
	}
	for _, tt := range tests {
		got, err := DefaultGrid.Block(tt.id)
		if err != nil {
			t.Fatalf("Block(%d) error: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("Block(%d) = %+v, want %+v", tt.id, got, tt.want)
		}
	}
	for _, id := range []int{-1, 9} {
		if _, err := DefaultGrid.Block(id); err == nil {
			t.Errorf("Block(%d) should fail", id)
		}
	}
}

func TestGridValidate(t *testing.T) {
	g := DefaultGrid
	g.XEdges[2] = g.XEdges[1]
	if err := g.Validate(); err == nil {
		t.Error("expected error for non-ascending edges")
	}
}

func TestPlaceInvariants(t *testing.T) {
	ctx := context.Background()
	p, sim, objs, plate := newTestPlacer(t, 7, DefaultOptions())

	sawPositive, sawNegative := false, false
	for ep := 0; ep < 500; ep++ {
		res, err := p.Place(ctx)
		if err != nil {
			t.Fatalf("episode %d: Place() error: %v", ep, err)
		}
		if n := len(res.Objects); n < 1 || n > len(objs) {
			t.Fatalf("episode %d: placed %d objects", ep, n)
		}

		targetPlaced := false
		for i, a := range res.Objects {
			rect, _ := DefaultGrid.Block(a.Block)
			if !rect.Contains(a.Position.X, a.Position.Y) {
				t.Fatalf("episode %d: %v at (%f,%f) outside %+v", ep, a.Object, a.Position.X, a.Position.Y, rect)
			}
			for _, b := range res.Objects[i+1:] {
				if d := math.Hypot(a.Position.X-b.Position.X, a.Position.Y-b.Position.Y); d < DefaultMinSeparation {
					t.Fatalf("episode %d: objects %d and %d only %f apart", ep, a.Object, b.Object, d)
				}
				if a.Block == b.Block || a.Object == b.Object {
					t.Fatalf("episode %d: duplicate block or object", ep)
				}
			}
			if a.Yaw < -math.Pi || a.Yaw > math.Pi {
				t.Fatalf("episode %d: yaw %f out of range", ep, a.Yaw)
			}
			if got := sim.PositionOf(objs[a.Object], plate); got != a.Position {
				t.Fatalf("episode %d: simulator position %v, want %v", ep, got, a.Position)
			}
			if yaw, ok := sim.Rotation(objs[a.Object]); !ok || yaw != a.Yaw {
				t.Fatalf("episode %d: simulator yaw %v, want %v", ep, yaw, a.Yaw)
			}
			if a.Object == TargetIndex {
				targetPlaced = true
				if len(res.Target) != 2 || res.Target[0] != a.Position.X || res.Target[1] != a.Position.Y {
					t.Fatalf("episode %d: Target = %v, want position of object 0", ep, res.Target)
				}
			}
		}
		if targetPlaced != res.Positive() {
			t.Fatalf("episode %d: Positive() = %v, target placed = %v", ep, res.Positive(), targetPlaced)
		}
		if !targetPlaced && (res.Target == nil || len(res.Target) != 0) {
			t.Fatalf("episode %d: negative Target = %#v, want empty non-nil", ep, res.Target)
		}
		sawPositive = sawPositive || targetPlaced
		sawNegative = sawNegative || !targetPlaced
	}
	if !sawPositive || !sawNegative {
		t.Errorf("expected both positive and negative episodes, got positive=%v negative=%v", sawPositive, sawNegative)
	}
}

func TestPlaceResetsEveryObject(t *testing.T) {
	ctx := context.Background()
	p, sim, objs, _ := newTestPlacer(t, 1, DefaultOptions())
	if _, err := p.Place(ctx); err != nil {
		t.Fatal(err)
	}
	for i, h := range objs {
		if got := sim.PositionOf(h, scene.World); got != DefaultResetPose.Position {
			t.Errorf("object %d world position = %v, want reset pose", i, got)
		}
		if got := sim.OrientationOf(h, scene.World); got != DefaultResetPose.Orientation {
			t.Errorf("object %d world orientation = %v, want reset pose", i, got)
		}
	}
	// Reset calls precede every placement call.
	calls := sim.Calls()
	lastReset := -1
	firstPlace := len(calls)
	for i, c := range calls {
		if c.Op == "SetOrientation" {
			lastReset = i
		}
		if c.Op == "CallScript" && i < firstPlace {
			firstPlace = i
		}
	}
	if lastReset > firstPlace {
		t.Errorf("reset at call %d after first placement at %d", lastReset, firstPlace)
	}
}

func TestPlaceCenterBlockTarget(t *testing.T) {
	p, _, _, _ := newTestPlacer(t, 3, DefaultOptions())
	res, err := p.PlaceIn(context.Background(), []Assignment{{Object: 0, Block: 4}})
	if err != nil {
		t.Fatalf("PlaceIn() error: %v", err)
	}
	pos := res.Objects[0].Position
	center := Rect{MinX: -0.07, MaxX: 0.07, MinY: -0.07, MaxY: 0.07}
	if !center.Contains(pos.X, pos.Y) {
		t.Errorf("position %v outside centre block", pos)
	}
	if len(res.Target) != 2 || res.Target[0] != pos.X || res.Target[1] != pos.Y {
		t.Errorf("Target = %v, want [%f %f]", res.Target, pos.X, pos.Y)
	}
}

func TestPlaceWithoutTargetIsNegative(t *testing.T) {
	p, _, _, _ := newTestPlacer(t, 3, DefaultOptions())
	res, err := p.PlaceIn(context.Background(), []Assignment{{Object: 2, Block: 0}, {Object: 3, Block: 8}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Positive() || len(res.Target) != 0 {
		t.Errorf("Target = %v, want empty", res.Target)
	}
	if got := res.Chosen(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Chosen() = %v", got)
	}
}

func TestPlaceExhausted(t *testing.T) {
	opts := DefaultOptions()
	opts.MinSeparation = 1.0 // wider than the whole grid
	opts.MaxAttempts = 50
	p, sim, _, _ := newTestPlacer(t, 5, opts)

	_, err := p.PlaceIn(context.Background(), []Assignment{{Object: 0, Block: 0}, {Object: 1, Block: 8}})
	if !errors.Is(err, errors.ErrCodePlacementExhausted) {
		t.Fatalf("PlaceIn() error = %v, want PLACEMENT_EXHAUSTED", err)
	}
	if !errors.Recoverable(err) {
		t.Error("exhaustion should be recoverable")
	}
	if n := len(sim.ScriptCalls(scene.FnRotateObject)); n != 0 {
		t.Errorf("%d objects moved before exhaustion was detected, want 0", n)
	}
}

func TestPlaceInRejectsDuplicates(t *testing.T) {
	p, _, _, _ := newTestPlacer(t, 5, DefaultOptions())
	ctx := context.Background()
	if _, err := p.PlaceIn(ctx, []Assignment{{0, 1}, {1, 1}}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("duplicate block: %v", err)
	}
	if _, err := p.PlaceIn(ctx, []Assignment{{0, 1}, {0, 2}}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("duplicate object: %v", err)
	}
	if _, err := p.PlaceIn(ctx, []Assignment{{7, 1}}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown object: %v", err)
	}
}

func TestCountRange(t *testing.T) {
	opts := DefaultOptions()
	opts.MinObjects, opts.MaxObjects = 2, 3
	p, _, _, _ := newTestPlacer(t, 11, opts)
	for range 200 {
		res, err := p.Place(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n := len(res.Objects); n < 2 || n > 3 {
			t.Fatalf("placed %d objects, want 2..3", n)
		}
	}
}

func TestNewValidation(t *testing.T) {
	sim := fake.New()
	rng := rand.New(rand.NewPCG(1, 2))
	objs := []scene.Handle{1, 2}
	tests := []struct {
		name string
		objs []scene.Handle
		mod  func(*Options)
	}{
		{"no objects", nil, func(*Options) {}},
		{"min zero", objs, func(o *Options) { o.MinObjects = 0 }},
		{"min above max", objs, func(o *Options) { o.MinObjects, o.MaxObjects = 2, 1 }},
		{"max above objects", objs, func(o *Options) { o.MaxObjects = 3 }},
		{"negative separation", objs, func(o *Options) { o.MinSeparation = -1 }},
		{"no attempts", objs, func(o *Options) { o.MaxAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mod(&opts)
			if _, err := New(sim, tt.objs, 0, rng, opts); !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("New() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}
