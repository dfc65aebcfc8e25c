package placement

import (
	"fmt"
	"math/rand/v2"
)

// Blocks is the number of cells in the placement grid.
const Blocks = 9

// Rect is an axis-aligned rectangle on the work surface.
type Rect struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Contains reports whether (x, y) lies strictly inside r.
func (r Rect) Contains(x, y float64) bool {
	return x > r.MinX && x < r.MaxX && y > r.MinY && y < r.MaxY
}

// Grid partitions the work surface into 3x3 blocks. XEdges and YEdges are
// the four cut positions along each axis, ascending.
type Grid struct {
	XEdges [4]float64
	YEdges [4]float64
}

// DefaultGrid covers [-0.2, 0.2]^2 around the plate origin with a
// 0.14-wide centre block.
var DefaultGrid = Grid{
	XEdges: [4]float64{-0.2, -0.07, 0.07, 0.2},
	YEdges: [4]float64{-0.2, -0.07, 0.07, 0.2},
}

// Validate checks that both edge lists are strictly ascending.
func (g Grid) Validate() error {
	for i := 1; i < 4; i++ {
		if g.XEdges[i] <= g.XEdges[i-1] || g.YEdges[i] <= g.YEdges[i-1] {
			return fmt.Errorf("grid edges must be strictly ascending: x=%v y=%v", g.XEdges, g.YEdges)
		}
	}
	return nil
}

// Block returns the rectangle of block id. The row (id % 3) selects the x
// interval and the column (id / 3) selects the y interval.
func (g Grid) Block(id int) (Rect, error) {
	if id < 0 || id >= Blocks {
		return Rect{}, fmt.Errorf("block id %d out of range [0,%d)", id, Blocks)
	}
	r, c := id%3, id/3
	return Rect{
		MinX: g.XEdges[r], MaxX: g.XEdges[r+1],
		MinY: g.YEdges[c], MaxY: g.YEdges[c+1],
	}, nil
}

// uniformOpen draws from the open interval (lo, hi).
func uniformOpen(rng *rand.Rand, lo, hi float64) float64 {
	for {
		if v := lo + (hi-lo)*rng.Float64(); v > lo && v < hi {
			return v
		}
	}
}

// point draws a point strictly inside r.
func (r Rect) point(rng *rand.Rand) (x, y float64) {
	return uniformOpen(rng, r.MinX, r.MaxX), uniformOpen(rng, r.MinY, r.MaxY)
}
