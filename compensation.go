package vmdcore

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CompensationModel implements spec §4.3: it projects the previous
// generation's per-cell statistics through the current frame's homography
// to produce warped statistics aligned with the current grid. It holds no
// persistent state of its own — Compensate is a pure function of (H, prev).
type CompensationModel struct {
	grid *Grid
	cfg  *Config
}

// NewCompensationModel builds a CompensationModel bound to a grid and
// config; cfg is retained by reference so later Config field reads (e.g.
// VarTrim) always see the estimator's current configuration.
func NewCompensationModel(grid *Grid, cfg *Config) *CompensationModel {
	return &CompensationModel{grid: grid, cfg: cfg}
}

// Compensate performs exactly one warp-and-mix pass (spec §4.3 invariant:
// "no iterative refinement") of prev through H, returning the warped
// generation.
func (c *CompensationModel) Compensate(H *mat.Dense, prev *GridState) *GridState {
	out := &GridState{
		Gw: c.grid.Gw, Gh: c.grid.Gh, K: prev.K,
		Mean: make([]float64, len(prev.Mean)),
		Var:  make([]float64, len(prev.Var)),
		Age:  make([]float64, len(prev.Age)),
	}

	var hInv mat.Dense
	invErr := hInv.Inverse(H)

	for gy := 0; gy < c.grid.Gh; gy++ {
		for gx := 0; gx < c.grid.Gw; gx++ {
			cx, cy := c.grid.CellCenter(gx, gy)

			var px, py float64
			if invErr != nil {
				// Singular homography: degrade to identity rather than
				// surfacing an error (spec §7: never surfaced to caller).
				px, py = cx, cy
			} else {
				px, py = projectPoint(&hInv, cx, cy)
			}

			weights := c.grid.BilinearWeights(px, py)
			c.compensateCell(gx, gy, weights, prev, out)
		}
	}

	if c.cfg.Dynamic {
		promoteHighestAge(out)
	}

	return out
}

// projectPoint applies a 3x3 homography to a single pixel coordinate via
// homogeneous coordinates and perspective division, the same transform the
// teacher's HomographyTransformation.transformPoints applies to batches of
// points.
func projectPoint(H *mat.Dense, x, y float64) (float64, float64) {
	xh := H.At(0, 0)*x + H.At(0, 1)*y + H.At(0, 2)
	yh := H.At(1, 0)*x + H.At(1, 1)*y + H.At(1, 2)
	wh := H.At(2, 0)*x + H.At(2, 1)*y + H.At(2, 2)
	if wh == 0 {
		wh = 1e-7
	}
	return xh / wh, yh / wh
}

// compensateCell fills out's model triplet for cell (gx, gy) from the
// bilinear mixture of prev's overlapping cells (spec §4.3 steps 2-4).
func (c *CompensationModel) compensateCell(gx, gy int, weights [4]CellWeight, prev, out *GridState) {
	var anyInBounds bool
	for _, w := range weights {
		if w.InBounds {
			anyInBounds = true
			break
		}
	}

	if !anyInBounds {
		// Step 2: fully out of bounds — mark uninitialized for this frame.
		for k := 0; k < prev.K; k++ {
			out.Set(gx, gy, k, 0, c.cfg.VarInit, 0)
		}
		return
	}

	for k := 0; k < prev.K; k++ {
		// M_c[k] = sum w_ij * M_prev[N_ij, k]
		var mean float64
		for _, w := range weights {
			if !w.InBounds || w.W == 0 {
				continue
			}
			m, _, _ := prev.At(w.GX, w.GY, k)
			mean += w.W * m
		}

		// V_c[k] = sum w_ij * (V_prev[N_ij,k] + (M_prev[N_ij,k]-M_c[k])^2)
		var variance float64
		var age float64
		for _, w := range weights {
			if !w.InBounds || w.W == 0 {
				continue
			}
			m, v, a := prev.At(w.GX, w.GY, k)
			variance += w.W * (v + (m-mean)*(m-mean))
			age += w.W * a
		}

		if variance > c.cfg.ThetaV {
			age *= math.Exp(-c.cfg.Lam * (variance - c.cfg.ThetaV))
		}

		if variance < c.cfg.VarTrim {
			variance = c.cfg.VarTrim
		}
		if age > c.cfg.AgeTrim {
			age = c.cfg.AgeTrim
		}
		if age < 0 {
			age = 0
		}

		out.Set(gx, gy, k, mean, variance, age)
	}
}

// promoteHighestAge re-ranks the apparent-model slot (index 0) to whichever
// model now carries the highest age in each cell, per spec §4.3 step 5's
// "dynamic" option.
func promoteHighestAge(s *GridState) {
	for gy := 0; gy < s.Gh; gy++ {
		for gx := 0; gx < s.Gw; gx++ {
			best := 0
			_, _, bestAge := s.At(gx, gy, 0)
			for k := 1; k < s.K; k++ {
				_, _, age := s.At(gx, gy, k)
				if age > bestAge {
					best = k
					bestAge = age
				}
			}
			if best != 0 {
				s.SwapModels(gx, gy, 0, best)
			}
		}
	}
}
