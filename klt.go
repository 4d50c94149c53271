package vmdcore

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// KLTTracker is a sparse feature tracker that produces the frame-to-frame
// homography consumed by the Compensation Model (spec §4.2). It is
// adapted from the teacher's camera_motion.go MotionEstimator/
// HomographyTransformationGetter pair, collapsed to the single property
// the core needs: one frame-to-frame H per tick, never an accumulated
// homography against a fixed reference frame.
type KLTTracker struct {
	cfg KLTConfig

	grayPrev    gocv.Mat
	prevPts     *mat.Dense // nil triggers a fresh GoodFeaturesToTrack detection
	initialized bool
}

// NewKLTTracker constructs a tracker with the given tuning. Call Init with
// the first frame before RunTrack.
func NewKLTTracker(cfg KLTConfig) *KLTTracker {
	return &KLTTracker{
		cfg:      cfg,
		grayPrev: gocv.NewMat(),
	}
}

// Init retains frame0 as the tracking reference and detects an initial
// sparse feature set on it.
func (k *KLTTracker) Init(frame0 gocv.Mat) {
	frame0.CopyTo(&k.grayPrev)
	k.prevPts = k.detectCorners(k.grayPrev)
	k.initialized = true
}

// Reset drops retained state so the next Init starts clean (backs the
// facade's Reset, spec §4.5).
func (k *KLTTracker) Reset() {
	k.prevPts = nil
	k.initialized = false
	if !k.grayPrev.Empty() {
		k.grayPrev.Close()
	}
	k.grayPrev = gocv.NewMat()
}

// Close releases the gocv.Mat retained for tracking. Safe to call more than
// once.
func (k *KLTTracker) Close() {
	if k.grayPrev.Ptr() != nil && !k.grayPrev.Empty() {
		k.grayPrev.Close()
	}
	k.grayPrev = gocv.NewMat()
}

// identity3x3 returns the 3x3 identity homography, the contractual
// fallback on any tracking failure (spec §4.2 contract: "never fails
// loudly").
func identity3x3() *mat.Dense {
	h := mat.NewDense(3, 3, nil)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)
	h.Set(2, 2, 1)
	return h
}

// RunTrack computes optical-flow correspondences from the retained
// previous frame to frameT, estimates H via RANSAC homography fitting,
// then replaces the retained frame/points with frameT and the tracked (or
// freshly redetected) points. Returns the identity on any failure.
func (k *KLTTracker) RunTrack(frameT gocv.Mat) *mat.Dense {
	if !k.initialized || k.grayPrev.Empty() {
		k.Init(frameT)
		return identity3x3()
	}

	currPts, prevPts, ok := k.getSparseFlow(frameT)
	if !ok {
		WarnOnce("vmdcore: KLT optical flow failed, falling back to identity homography")
		frameT.CopyTo(&k.grayPrev)
		k.prevPts = nil
		return identity3x3()
	}

	H, ok := k.findHomography(currPts, prevPts)

	numTracked, _ := currPts.Dims()
	frameT.CopyTo(&k.grayPrev)
	if numTracked < k.cfg.MaxPoints/2 {
		// Too few survivors to keep tracking; redetect next call.
		k.prevPts = nil
	} else {
		k.prevPts = currPts
	}

	if !ok {
		WarnOnce("vmdcore: KLT homography estimation failed, falling back to identity")
		return identity3x3()
	}
	return H
}

// detectCorners runs GoodFeaturesToTrack on (an optionally downscaled copy
// of) gray, rescaling detected points back to full-resolution pixel
// coordinates.
func (k *KLTTracker) detectCorners(gray gocv.Mat) *mat.Dense {
	scale := k.cfg.DownscaleFactor
	if scale <= 0 {
		scale = 1
	}

	var detectOn gocv.Mat
	if scale > 1 {
		detectOn = gocv.NewMat()
		defer detectOn.Close()
		newSize := image.Pt(int(float64(gray.Cols())/scale), int(float64(gray.Rows())/scale))
		gocv.Resize(gray, &detectOn, newSize, 0, 0, gocv.InterpolationLinear)
	} else {
		detectOn = gray
	}

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(detectOn, &corners, k.cfg.MaxPoints, k.cfg.QualityLevel, float64(k.cfg.MinDistance))
	if corners.Rows() == 0 {
		return nil
	}

	rows := corners.Rows()
	data := make([]float64, rows*2)
	for i := 0; i < rows; i++ {
		v := corners.GetVecfAt(i, 0)
		data[i*2] = float64(v[0]) * scale
		data[i*2+1] = float64(v[1]) * scale
	}
	return mat.NewDense(rows, 2, data)
}

// getSparseFlow computes sparse optical flow between the retained previous
// frame and frameT, detecting fresh corners first if none are retained.
// Returns matched (currPts, prevPts) pairs, or ok=false if nothing could be
// tracked.
func (k *KLTTracker) getSparseFlow(frameT gocv.Mat) (currPts, prevPts *mat.Dense, ok bool) {
	prev := k.prevPts
	if prev == nil {
		prev = k.detectCorners(k.grayPrev)
		if prev == nil {
			return nil, nil, false
		}
	}

	prevGocv := matDenseToGocvMat(prev)
	defer prevGocv.Close()

	currGocv := gocv.NewMat()
	defer currGocv.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	gocv.CalcOpticalFlowPyrLK(k.grayPrev, frameT, prevGocv, currGocv, &status, &errMat)

	rows := status.Rows()
	var prevOut, currOut []float64
	n := 0
	for i := 0; i < rows; i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		pv := prevGocv.GetVecfAt(i, 0)
		cv := currGocv.GetVecfAt(i, 0)
		prevOut = append(prevOut, float64(pv[0]), float64(pv[1]))
		currOut = append(currOut, float64(cv[0]), float64(cv[1]))
		n++
	}
	if n == 0 {
		return nil, nil, false
	}
	return mat.NewDense(n, 2, currOut), mat.NewDense(n, 2, prevOut), true
}

// findHomography fits H such that H*prevPts ~= currPts via RANSAC, using
// gocv.FindHomography. Returns ok=false when fewer than 4 correspondences
// are available or OpenCV reports failure.
func (k *KLTTracker) findHomography(currPts, prevPts *mat.Dense) (*mat.Dense, bool) {
	rows, _ := currPts.Dims()
	if rows < 4 {
		return nil, false
	}

	prevGocv := matDenseToGocvMat(prevPts)
	defer prevGocv.Close()
	currGocv := matDenseToGocvMat(currPts)
	defer currGocv.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	threshold := k.cfg.RansacReprojThreshold
	if threshold <= 0 {
		threshold = 3.0
	}

	homography := gocv.FindHomography(prevGocv, currGocv, gocv.HomographyMethodRANSAC, threshold, &mask, 2000, 0.995)
	defer homography.Close()

	if homography.Empty() || homography.Rows() != 3 || homography.Cols() != 3 {
		return nil, false
	}
	return gocvMatToMatDense(homography), true
}

//
// gocv <-> gonum conversion helpers, adapted from the teacher's
// camera_motion.go matDenseToGocvMat/gocvMatToMatDense.
//

// matDenseToGocvMat converts an (N,2) gonum matrix of pixel points into a
// CV_32FC2 gocv.Mat, the layout gocv's optical-flow/homography calls
// expect.
func matDenseToGocvMat(m *mat.Dense) gocv.Mat {
	rows, _ := m.Dims()
	data := make([]float32, rows*2)
	for i := 0; i < rows; i++ {
		data[i*2] = float32(m.At(i, 0))
		data[i*2+1] = float32(m.At(i, 1))
	}
	result, err := gocv.NewMatFromBytes(rows, 1, gocv.MatTypeCV32FC2, float32BytesLE(data))
	if err != nil {
		WarnOnce("vmdcore: failed to build gocv.Mat from points: " + err.Error())
		return gocv.NewMat()
	}
	return result
}

// gocvMatToMatDense converts a gocv.Mat (rows x cols, CV_64F) into a
// gonum *mat.Dense, used to pull the 3x3 homography out of FindHomography.
func gocvMatToMatDense(m gocv.Mat) *mat.Dense {
	rows, cols := m.Rows(), m.Cols()
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = m.GetDoubleAt(i, j)
		}
	}
	return mat.NewDense(rows, cols, data)
}

// float32BytesLE packs a []float32 into its little-endian byte
// representation, the format gocv.NewMatFromBytes expects.
func float32BytesLE(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		bits := math.Float32bits(v)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
