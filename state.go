package vmdcore

// GridState holds one generation's per-cell model triplet (spec §3): three
// flat Gh*Gw*K arrays, row-major over grid cells with the model axis
// innermost, per Design Note "Multidimensional array broadcasting" — no
// tensor-library broadcasting, just explicit indexing.
type GridState struct {
	Gw, Gh, K int
	Mean      []float64
	Var       []float64
	Age       []float64
}

// NewGridState allocates a GridState with first-frame conditions: all
// means zero, all variances varInit, all ages zero (spec §3 Lifecycle).
func NewGridState(gw, gh, k int, varInit float64) *GridState {
	n := gw * gh * k
	s := &GridState{Gw: gw, Gh: gh, K: k, Mean: make([]float64, n), Var: make([]float64, n), Age: make([]float64, n)}
	for i := range s.Var {
		s.Var[i] = varInit
	}
	return s
}

// base returns the flat-array offset of cell (gx, gy)'s model 0, so that
// model k of that cell sits at base+k.
func (s *GridState) base(gx, gy int) int {
	return (gy*s.Gw + gx) * s.K
}

// At returns (mean, var, age) for cell (gx, gy), model k.
func (s *GridState) At(gx, gy, k int) (mean, variance, age float64) {
	i := s.base(gx, gy) + k
	return s.Mean[i], s.Var[i], s.Age[i]
}

// Set assigns (mean, var, age) for cell (gx, gy), model k.
func (s *GridState) Set(gx, gy, k int, mean, variance, age float64) {
	i := s.base(gx, gy) + k
	s.Mean[i] = mean
	s.Var[i] = variance
	s.Age[i] = age
}

// SwapModels exchanges the full (mean, var, age) triplets of models a and b
// within cell (gx, gy) — used to keep the apparent model at index 0 (spec
// §3 invariant, §4.4's post-update re-ranking).
func (s *GridState) SwapModels(gx, gy, a, b int) {
	if a == b {
		return
	}
	base := s.base(gx, gy)
	ia, ib := base+a, base+b
	s.Mean[ia], s.Mean[ib] = s.Mean[ib], s.Mean[ia]
	s.Var[ia], s.Var[ib] = s.Var[ib], s.Var[ia]
	s.Age[ia], s.Age[ib] = s.Age[ib], s.Age[ia]
}

// Clone returns a deep copy of the state, used where a model array must be
// read while another of the same shape is being written (e.g. the mixed
// sensitivity schedule's staged var/age update).
func (s *GridState) Clone() *GridState {
	clone := &GridState{Gw: s.Gw, Gh: s.Gh, K: s.K}
	clone.Mean = append([]float64(nil), s.Mean...)
	clone.Var = append([]float64(nil), s.Var...)
	clone.Age = append([]float64(nil), s.Age...)
	return clone
}
