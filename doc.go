/*
Package vmdcore implements the core of a moving-camera video motion
detector: a dual-model, grid-based background/foreground estimator that
stays valid under camera motion by warping background statistics through a
frame-to-frame homography before each statistical update.

- vmdcore is a Go reimplementation of the core estimation loop from
  MovingCameraBGS/MovingCameraForegroundEstimetor
- This project is in **no** way associated with the original

Each frame is divided into a coarse grid of B*B pixel cells. Every cell
holds K candidate background models (mean, variance, age); the model
believed to represent the background is always kept at index 0, the
apparent model. Two collaborators drive the pipeline each tick: the
Compensation Model projects the previous generation's per-cell statistics
through the current frame's homography, and the Statistical Model fuses
the current observation into the warped statistics and emits foreground.

# Basic Usage

	est, err := vmdcore.NewForegroundEstimator(vmdcore.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}

	for frame := range grayscaleFrames {
		foreground, err := est.Process(frame)
		if err != nil {
			log.Fatal(err)
		}
		consume(foreground)
	}

# Core Types

Config holds every tunable of the estimator (grid geometry, model counts,
thresholds, sensitivity schedule, KLT tuning); DefaultConfig returns the
spec's documented typical defaults.

ForegroundEstimator is the facade: Process consumes one frame and returns
its foreground map; Reset reverts to pre-first-frame state.

Grid maps pixel coordinates to B*B cells and provides the bilinear
interpolation used both to warp statistics under the homography and to
interpolate per-pixel background estimates.

KLTTracker produces the frame-to-frame homography via sparse optical flow
(GoodFeaturesToTrack + CalcOpticalFlowPyrLK) and RANSAC homography fitting,
falling back to the identity on any failure.

CompensationModel and StatisticalModel implement the two coupled passes
described above; GridState is the flat per-cell (mean, var, age) array they
exchange.

# Errors

ConfigurationError is returned by NewForegroundEstimator (or the first
Process call) for a construction-time problem: too few candidate models,
a non-positive block size, another out-of-range Config field (variance or
age bounds, sensitivity, KLT tuning), or frame dimensions not divisible by
the block size.
DimensionMismatch is returned by Process when a later frame's dimensions
differ from the first frame that fixed the estimator's grid; the caller
must Reset before continuing.
*/
package vmdcore
