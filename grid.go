package vmdcore

import "math"

// Grid is the fixed mapping between pixel coordinates and a coarse grid of
// square cells of side B (spec §4.1). Image dimensions must be evenly
// divisible by B; Grid itself does not re-check this (NewGrid does).
type Grid struct {
	Width, Height int // frame dimensions in pixels
	BlockSize     int // B
	Gw, Gh        int // grid dimensions: Width/B, Height/B
}

// NewGrid validates (width, height, blockSize) and returns the Grid, or a
// *ConfigurationError if the dimensions aren't divisible by blockSize.
func NewGrid(width, height, blockSize int) (*Grid, error) {
	if blockSize <= 0 {
		return nil, &ConfigurationError{Reason: "block size must be > 0"}
	}
	if width%blockSize != 0 || height%blockSize != 0 {
		return nil, &ConfigurationError{Reason: "image dimensions must be divisible by block_size"}
	}
	return &Grid{
		Width:     width,
		Height:    height,
		BlockSize: blockSize,
		Gw:        width / blockSize,
		Gh:        height / blockSize,
	}, nil
}

// CellCenter returns the pixel-space center of grid cell (gx, gy).
func (g *Grid) CellCenter(gx, gy int) (cx, cy float64) {
	b := float64(g.BlockSize)
	return float64(gx)*b + b/2, float64(gy)*b + b/2
}

// CellIndex returns the flat row-major index of cell (gx, gy). In the
// Gh*Gw*K flat state arrays, cell i's K models sit at i*K through i*K+K-1
// (innermost axis is the model index).
func (g *Grid) CellIndex(gx, gy int) int {
	return gy*g.Gw + gx
}

// CellWeight is one of the four grid neighbors contributing to a bilinear
// interpolation, together with its (renormalized) coefficient.
type CellWeight struct {
	GX, GY   int
	W        float64
	InBounds bool
}

// BilinearWeights locates the four grid cells surrounding an arbitrary
// pixel coordinate (px, py) and their bilinear coefficients, following the
// g' = (x/B - 0.5, y/B - 0.5) convention of spec §4.3 step 1: a pixel at a
// cell's exact center maps to that cell's integer grid coordinate.
//
// Any neighbor outside [0,Gw)x[0,Gh) contributes zero weight; the
// remaining in-bounds weights are renormalized to sum to 1. If all four
// neighbors are out of bounds, every returned CellWeight has InBounds
// false and W 0 — callers must treat this as "uninitialized" per §4.3
// step 2.
func (g *Grid) BilinearWeights(px, py float64) [4]CellWeight {
	b := float64(g.BlockSize)
	gxf := px/b - 0.5
	gyf := py/b - 0.5

	gx0 := int(math.Floor(gxf))
	gy0 := int(math.Floor(gyf))
	fx := gxf - float64(gx0)
	fy := gyf - float64(gy0)

	type corner struct {
		gx, gy int
		w      float64
	}
	corners := [4]corner{
		{gx0, gy0, (1 - fx) * (1 - fy)}, // N00
		{gx0 + 1, gy0, fx * (1 - fy)},   // N10
		{gx0, gy0 + 1, (1 - fx) * fy},   // N01
		{gx0 + 1, gy0 + 1, fx * fy},     // N11
	}

	var out [4]CellWeight
	var total float64
	for i, c := range corners {
		inBounds := c.gx >= 0 && c.gx < g.Gw && c.gy >= 0 && c.gy < g.Gh
		out[i] = CellWeight{GX: c.gx, GY: c.gy, W: c.w, InBounds: inBounds}
		if inBounds {
			total += c.w
		}
	}

	if total <= 0 {
		for i := range out {
			out[i].W = 0
		}
		return out
	}
	for i := range out {
		if out[i].InBounds {
			out[i].W /= total
		} else {
			out[i].W = 0
		}
	}
	return out
}
