package vmdcore

import (
	"math"

	"github.com/nmichlo/vmd-core/internal/scipy"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// StatisticalModel implements spec §4.4: it fuses the current frame's
// per-pixel observations into the warped cell statistics, decides which
// candidate model represents each cell, and emits the foreground map.
type StatisticalModel struct {
	grid *Grid
	cfg  *Config
}

// NewStatisticalModel builds a StatisticalModel bound to a grid and config.
func NewStatisticalModel(grid *Grid, cfg *Config) *StatisticalModel {
	return &StatisticalModel{grid: grid, cfg: cfg}
}

// cellStats is the observed mean of one cell's B*B pixel block (spec §4.4
// "Cell observation"). The gating and update formulas only ever reference
// the observed mean, not its variance, so that's all this tracks.
type cellStats struct {
	mean float64
}

// Update consumes the current grayscale frame plus the warped cell state
// and returns (nextState, foreground). nextState becomes next frame's
// "previous" compensation input (spec §3).
func (s *StatisticalModel) Update(frame gocv.Mat, warped *GridState) (*GridState, gocv.Mat) {
	obs := s.observeCells(frame)

	afterMean := warped.Clone()
	final := warped.Clone()
	forceZero := make([]bool, s.grid.Gw*s.grid.Gh)

	for gy := 0; gy < s.grid.Gh; gy++ {
		for gx := 0; gx < s.grid.Gw; gx++ {
			idx := gy*s.grid.Gw + gx
			o := obs[idx]

			if warped.isUninitializedCell(gx, gy, s.cfg.VarInit) {
				for k := 0; k < warped.K; k++ {
					age := 0.0
					if k == 0 {
						age = 1
					}
					afterMean.Set(gx, gy, k, o.mean, s.cfg.VarInit, age)
					final.Set(gx, gy, k, o.mean, s.cfg.VarInit, age)
				}
				forceZero[idx] = true
				continue
			}

			kstar, reinit := s.selectModel(gx, gy, o.mean, warped)

			if reinit {
				afterMean.Set(gx, gy, kstar, o.mean, s.cfg.VarInit, 1)
				final.Set(gx, gy, kstar, o.mean, s.cfg.VarInit, 1)
				continue
			}

			m, v, a := warped.At(gx, gy, kstar)
			alpha := 1.0 / (a + 1.0)
			newMean := (1-alpha)*m + alpha*o.mean
			newVar := (1-alpha)*v + alpha*(o.mean-newMean)*(o.mean-newMean)
			if newVar < s.cfg.VarTrim {
				newVar = s.cfg.VarTrim
			}
			newAge := a + 1
			if newAge > s.cfg.AgeTrim {
				newAge = s.cfg.AgeTrim
			}

			// afterMean: mean updated, variance/age still the warped
			// values — the "new means, old vars" source for Mixed.
			afterMean.Set(gx, gy, kstar, newMean, v, a)
			// final: the fully updated triplet, persisted as next
			// generation's state.
			final.Set(gx, gy, kstar, newMean, newVar, newAge)
		}
	}

	promoteUpdatedApparent(final)

	var emissionSource *GridState
	switch s.cfg.Sensitivity {
	case SensitivityUpdateFirst:
		emissionSource = final
	case SensitivityForegroundFirst:
		emissionSource = warped
	case SensitivityMixed:
		emissionSource = afterMean
	default:
		emissionSource = final
	}

	foreground := s.emitForeground(frame, emissionSource, forceZero)
	return final, foreground
}

// isUninitializedCell reports whether compensation flagged this cell as
// fully out-of-bounds (spec §4.3 step 2): every model reset to
// (mean=0, var=var_init, age=0).
func (s *GridState) isUninitializedCell(gx, gy int, varInit float64) bool {
	for k := 0; k < s.K; k++ {
		m, v, a := s.At(gx, gy, k)
		if m != 0 || v != varInit || a != 0 {
			return false
		}
	}
	return true
}

// selectModel implements spec §4.4's model selection: gate on the
// nearest candidate's variance-normalized squared distance, or evict the
// youngest non-apparent candidate when nothing matches.
func (s *StatisticalModel) selectModel(gx, gy int, obsMean float64, warped *GridState) (kstar int, reinit bool) {
	d := gatingDistances(obsMean, warped, gx, gy, s.cfg.VarTrim)

	best := 0
	for k := 1; k < len(d); k++ {
		if d[k] < d[best] {
			best = k
		}
	}

	if d[best] <= s.cfg.ThetaS {
		return best, false
	}

	// No match: evict the candidate (k != 0) with the smallest age.
	evict := 1
	_, _, evictAge := warped.At(gx, gy, 1)
	for k := 2; k < warped.K; k++ {
		_, _, age := warped.At(gx, gy, k)
		if age < evictAge {
			evict = k
			evictAge = age
		}
	}
	return evict, true
}

// gatingDistances computes d_k = (obs-M_c[k])^2 / max(V_c[k], var_trim) for
// every candidate model at cell (gx,gy), via internal/scipy.Cdist's
// squared-Euclidean metric over the single observed scalar against the K
// candidate means (adapted from the teacher's cdistSquaredEuclidean, used
// there for N-dimensional point-set distances).
func gatingDistances(obsMean float64, warped *GridState, gx, gy int, varTrim float64) []float64 {
	k := warped.K
	means := make([]float64, k)
	for i := 0; i < k; i++ {
		m, _, _ := warped.At(gx, gy, i)
		means[i] = m
	}

	obsRow := mat.NewDense(1, 1, []float64{obsMean})
	meanCol := mat.NewDense(k, 1, means)
	sq := scipy.Cdist(obsRow, meanCol, "sqeuclidean")

	d := make([]float64, k)
	for i := 0; i < k; i++ {
		_, v, _ := warped.At(gx, gy, i)
		d[i] = sq.At(0, i) / math.Max(v, varTrim)
	}
	return d
}

// promoteUpdatedApparent implements the post-update half of spec §3's
// apparent-model invariant: "if k* != 0 and new_age > A_c[0], swap slots
// so the apparent model is always index 0."
func promoteUpdatedApparent(s *GridState) {
	for gy := 0; gy < s.Gh; gy++ {
		for gx := 0; gx < s.Gw; gx++ {
			_, _, age0 := s.At(gx, gy, 0)
			best := 0
			bestAge := age0
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

// observeCells computes the observed mean of every cell's B*B pixel block
// (spec §4.4 "Cell observation").
func (s *StatisticalModel) observeCells(frame gocv.Mat) []cellStats {
	b := s.grid.BlockSize
	out := make([]cellStats, s.grid.Gw*s.grid.Gh)

	for gy := 0; gy < s.grid.Gh; gy++ {
		for gx := 0; gx < s.grid.Gw; gx++ {
			var sum float64
			n := float64(b * b)
			for dy := 0; dy < b; dy++ {
				for dx := 0; dx < b; dx++ {
					sum += float64(frame.GetUCharAt(gy*b+dy, gx*b+dx))
				}
			}
			out[gy*s.grid.Gw+gx] = cellStats{mean: sum / n}
		}
	}
	return out
}

// emitForeground implements spec §4.4's per-pixel foreground emission:
// bilinearly interpolate the emission source's apparent-model mean/var to
// pixel resolution and threshold (or score) the observed intensity against
// it. Cells flagged in forceZero always emit zero, per the "Failure
// semantics" paragraph.
func (s *StatisticalModel) emitForeground(frame gocv.Mat, src *GridState, forceZero []bool) gocv.Mat {
	w, h, b := s.grid.Width, s.grid.Height, s.grid.BlockSize

	var out gocv.Mat
	if s.cfg.CalcProbs {
		out = gocv.NewMatWithSize(h, w, gocv.MatTypeCV32FC1)
	} else {
		out = gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	}

	thetaDSq := s.cfg.ThetaD * s.cfg.ThetaD

	for y := 0; y < h; y++ {
		gy := y / b
		for x := 0; x < w; x++ {
			gx := x / b
			idx := gy*s.grid.Gw + gx

			if forceZero[idx] {
				if s.cfg.CalcProbs {
					out.SetFloatAt(y, x, 0)
				} else {
					out.SetUCharAt(y, x, 0)
				}
				continue
			}

			weights := s.grid.BilinearWeights(float64(x)+0.5, float64(y)+0.5)
			var mu, sigmaSq float64
			for _, wgt := range weights {
				if !wgt.InBounds || wgt.W == 0 {
					continue
				}
				m, v, _ := src.At(wgt.GX, wgt.GY, 0)
				mu += wgt.W * m
				sigmaSq += wgt.W * v
			}

			intensity := float64(frame.GetUCharAt(y, x))
			diff := intensity - mu
			z := diff * diff / math.Max(sigmaSq, s.cfg.VarTrim)

			if s.cfg.CalcProbs {
				out.SetFloatAt(y, x, float32(math.Sqrt(z)))
				continue
			}

			_, _, apparentAge := src.At(gx, gy, 0)
			if z > thetaDSq && apparentAge >= 1 {
				out.SetUCharAt(y, x, 255)
			} else {
				out.SetUCharAt(y, x, 0)
			}
		}
	}

	return out
}
