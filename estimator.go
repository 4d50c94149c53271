package vmdcore

import (
	"image"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ForegroundEstimator is the facade described in spec §4.5: it owns the
// grid, the KLT tracker, and the retained model state (the previous frame's
// statistical-model output), and turns
// a stream of frames into a stream of foreground maps. Construction only
// validates cfg; grid/model state is deferred to the first Process call,
// since the frame size isn't known until then (mirrors the teacher's lazy
// VideoWriter initialization in video.go).
type ForegroundEstimator struct {
	cfg Config

	klt *KLTTracker

	grid  *Grid
	comp  *CompensationModel
	stat  *StatisticalModel
	state *GridState

	firstWidth, firstHeight int
	initialized             bool
}

// NewForegroundEstimator validates cfg and returns a ready-to-use
// estimator, or a *ConfigurationError if cfg is invalid.
func NewForegroundEstimator(cfg Config) (*ForegroundEstimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ForegroundEstimator{
		cfg: cfg,
		klt: NewKLTTracker(cfg.KLT),
	}, nil
}

// Process consumes one grayscale frame (CV_8UC1) and returns its
// foreground map. The first call fixes the frame dimensions for the
// lifetime of the estimator (until Reset); later calls with different
// dimensions fail with *DimensionMismatch.
func (e *ForegroundEstimator) Process(frame gocv.Mat) (gocv.Mat, error) {
	width, height := frame.Cols(), frame.Rows()
	firstFrame := !e.initialized

	if firstFrame {
		grid, err := NewGrid(width, height, e.cfg.BlockSize)
		if err != nil {
			return gocv.NewMat(), err
		}
		e.grid = grid
		e.comp = NewCompensationModel(grid, &e.cfg)
		e.stat = NewStatisticalModel(grid, &e.cfg)
		e.state = NewGridState(grid.Gw, grid.Gh, e.cfg.NumModels, e.cfg.VarInit)
		e.firstWidth, e.firstHeight = width, height
		e.initialized = true
	} else if width != e.firstWidth || height != e.firstHeight {
		return gocv.NewMat(), &DimensionMismatch{
			FirstWidth: e.firstWidth, FirstHeight: e.firstHeight,
			GotWidth: width, GotHeight: height,
		}
	}

	processed, smoothed := e.maybeSmooth(frame)
	if smoothed {
		defer processed.Close()
	}

	// On the first frame there is nothing to track against yet: seed the
	// tracker and use the identity homography directly, rather than calling
	// RunTrack against the frame it's about to be Init'd with (spec §4.5).
	var H *mat.Dense
	if firstFrame {
		e.klt.Init(processed)
		H = identity3x3()
	} else {
		H = e.klt.RunTrack(processed)
	}

	warped := e.comp.Compensate(H, e.state)
	next, foreground := e.stat.Update(processed, warped)
	e.state = next

	return foreground, nil
}

// maybeSmooth applies median(5) then Gaussian(7x7) blur per spec §3's
// Smooth option. Returns the input frame unchanged (smoothed=false) when
// Smooth is false; otherwise the caller owns the returned Mat and must
// Close it.
func (e *ForegroundEstimator) maybeSmooth(frame gocv.Mat) (out gocv.Mat, smoothed bool) {
	if !e.cfg.Smooth {
		return frame, false
	}
	median := gocv.NewMat()
	gocv.MedianBlur(frame, &median, 5)
	result := gocv.NewMat()
	gocv.GaussianBlur(median, &result, image.Pt(7, 7), 0, 0, gocv.BorderDefault)
	median.Close()
	return result, true
}

// Reset reverts the estimator to its pre-first-frame state: the next
// Process call re-initializes the grid, model state, and KLT tracker from
// whatever frame it receives (spec §4.5, §8.6's idempotent-reset property).
func (e *ForegroundEstimator) Reset() {
	e.klt.Reset()
	e.grid = nil
	e.comp = nil
	e.stat = nil
	e.state = nil
	e.firstWidth, e.firstHeight = 0, 0
	e.initialized = false
}
