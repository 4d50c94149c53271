package vmdcore

import (
	"math"
	"testing"

	"github.com/nmichlo/vmd-core/internal/testutil"
	"gonum.org/v1/gonum/mat"
)

func identityMat() *mat.Dense {
	return identity3x3()
}

func TestCompensate_Identity_PreservesState(t *testing.T) {
	grid, err := NewGrid(16, 16, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultConfig()
	prev := NewGridState(grid.Gw, grid.Gh, cfg.NumModels, cfg.VarInit)
	// Give every cell model 0 a distinctive mean/age so we can detect mixing.
	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			prev.Set(gx, gy, 0, 100, cfg.VarTrim, 10)
		}
	}

	cm := NewCompensationModel(grid, &cfg)
	out := cm.Compensate(identityMat(), prev)

	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			mean, variance, age := out.At(gx, gy, 0)
			testutil.AssertAlmostEqual(t, mean, 100, 1e-6, "mean under identity warp")
			testutil.AssertAlmostEqual(t, variance, cfg.VarTrim, 1e-6, "variance under identity warp")
			testutil.AssertAlmostEqual(t, age, 10, 1e-6, "age under identity warp")
		}
	}
}

func TestCompensate_VarianceFloor(t *testing.T) {
	grid, err := NewGrid(16, 16, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultConfig()
	prev := NewGridState(grid.Gw, grid.Gh, cfg.NumModels, 0) // variance below VarTrim

	cm := NewCompensationModel(grid, &cfg)
	out := cm.Compensate(identityMat(), prev)

	for i, v := range out.Var {
		if v < cfg.VarTrim {
			t.Fatalf("variance floor violated at index %d: %v < %v", i, v, cfg.VarTrim)
		}
	}
}

func TestCompensate_AgeBound(t *testing.T) {
	grid, err := NewGrid(16, 16, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultConfig()
	prev := NewGridState(grid.Gw, grid.Gh, cfg.NumModels, cfg.VarInit)
	for i := range prev.Age {
		prev.Age[i] = cfg.AgeTrim + 1000 // deliberately over the bound
	}

	cm := NewCompensationModel(grid, &cfg)
	out := cm.Compensate(identityMat(), prev)

	for i, a := range out.Age {
		if a > cfg.AgeTrim {
			t.Fatalf("age bound violated at index %d: %v > %v", i, a, cfg.AgeTrim)
		}
		if a < 0 {
			t.Fatalf("age went negative at index %d: %v", i, a)
		}
	}
}

func TestCompensate_OutOfBoundsCellReinitializes(t *testing.T) {
	grid, err := NewGrid(16, 16, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultConfig()
	prev := NewGridState(grid.Gw, grid.Gh, cfg.NumModels, cfg.VarInit)
	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			prev.Set(gx, gy, 0, 200, cfg.VarTrim, 20)
		}
	}

	// A homography translating everything far outside the frame pushes
	// every cell's back-projected center out of bounds.
	H := mat.NewDense(3, 3, []float64{
		1, 0, 100000,
		0, 1, 100000,
		0, 0, 1,
	})

	cm := NewCompensationModel(grid, &cfg)
	out := cm.Compensate(H, prev)

	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			mean, variance, age := out.At(gx, gy, 0)
			if mean != 0 {
				t.Fatalf("expected zero mean for uninitialized cell (%d,%d), got %v", gx, gy, mean)
			}
			if variance != cfg.VarInit {
				t.Fatalf("expected var_init for uninitialized cell (%d,%d), got %v", gx, gy, variance)
			}
			if age != 0 {
				t.Fatalf("expected zero age for uninitialized cell (%d,%d), got %v", gx, gy, age)
			}
		}
	}
}

func TestCompensate_AgeDecaysWhenVarianceExceedsThetaV(t *testing.T) {
	grid, err := NewGrid(16, 16, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultConfig()
	cfg.ThetaV = 10
	cfg.Lam = 0.1

	prev := NewGridState(grid.Gw, grid.Gh, cfg.NumModels, cfg.VarInit)
	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			// Mismatched neighbor means inflate the mixture variance well
			// above ThetaV, forcing the eq.(15)-equivalent decay to fire.
			prev.Set(gx, gy, 0, float64((gx+gy)%2)*200, 50, 15)
		}
	}

	cm := NewCompensationModel(grid, &cfg)
	// A small shift ensures the back-projected centers land
	// between cells, engaging the bilinear mixture of dissimilar means.
	H := mat.NewDense(3, 3, []float64{
		1, 0, 1.5,
		0, 1, 1.5,
		0, 0, 1,
	})
	out := cm.Compensate(H, prev)

	var sawDecay bool
	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			_, variance, age := out.At(gx, gy, 0)
			if variance > cfg.ThetaV && age < 15 {
				sawDecay = true
			}
		}
	}
	if !sawDecay {
		t.Fatalf("expected at least one cell to show age decay when variance exceeds theta_v")
	}
}

func TestCompensate_DynamicPromotesHighestAge(t *testing.T) {
	grid, err := NewGrid(8, 8, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Dynamic = true
	cfg.NumModels = 2

	prev := NewGridState(grid.Gw, grid.Gh, cfg.NumModels, cfg.VarInit)
	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			prev.Set(gx, gy, 0, 10, cfg.VarTrim, 1) // apparent, young
			prev.Set(gx, gy, 1, 20, cfg.VarTrim, 25) // candidate, older
		}
	}

	cm := NewCompensationModel(grid, &cfg)
	out := cm.Compensate(identityMat(), prev)

	for gy := 0; gy < grid.Gh; gy++ {
		for gx := 0; gx < grid.Gw; gx++ {
			_, _, age0 := out.At(gx, gy, 0)
			for k := 1; k < out.K; k++ {
				_, _, agek := out.At(gx, gy, k)
				if age0 < agek {
					t.Fatalf("cell (%d,%d): apparent model age %v should be >= candidate age %v after dynamic promotion", gx, gy, age0, agek)
				}
			}
		}
	}
}

func TestProjectPoint_Identity(t *testing.T) {
	x, y := projectPoint(identityMat(), 12.5, 7.25)
	if math.Abs(x-12.5) > 1e-9 || math.Abs(y-7.25) > 1e-9 {
		t.Fatalf("expected identity projection to be a no-op, got (%v,%v)", x, y)
	}
}
