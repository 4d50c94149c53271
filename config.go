package vmdcore

// Sensitivity selects the ordering of "update statistics" vs. "emit
// foreground" within a frame's statistical update (spec §4.4). It is a
// finite tagged variant rather than a string lookup — the core needs no
// runtime name dispatch, unlike the source's estimator registry.
type Sensitivity int

const (
	// SensitivityUpdateFirst selects+updates means/vars/ages, then emits
	// foreground from the new state. Least sensitive to transient noise.
	SensitivityUpdateFirst Sensitivity = iota
	// SensitivityForegroundFirst emits foreground from the warped state,
	// then selects+updates. Most sensitive to changes (and noise).
	SensitivityForegroundFirst
	// SensitivityMixed updates means, emits foreground from (new means,
	// old vars), then updates vars and ages. Matches the original
	// reference implementation's behavior.
	SensitivityMixed
)

func (s Sensitivity) String() string {
	switch s {
	case SensitivityUpdateFirst:
		return "update-first"
	case SensitivityForegroundFirst:
		return "foreground-first"
	case SensitivityMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Config holds every tunable of the VMD core (spec §3's option table),
// validated once at construction. Zero-value Config fields are NOT defaulted
// silently (the one exception: a KLT.RansacReprojThreshold <= 0 is replaced
// by 3.0 when fitting) — use DefaultConfig() as a starting point and
// override fields.
type Config struct {
	// NumModels is K, the number of candidate models per cell. K >= 2.
	NumModels int

	// BlockSize is B, the side of a square grid cell in pixels. Frame
	// width and height must both be divisible by BlockSize.
	BlockSize int

	// VarInit is the initial variance assigned to a freshly-initialized
	// or re-initialized model. Typically 400 (20^2).
	VarInit float64

	// VarTrim is the lower bound enforced on every model's variance at
	// all times. Typically 25 (5^2).
	VarTrim float64

	// Lam (lambda) is the age-decay coefficient applied to a warped
	// model's age when its warped variance exceeds ThetaV.
	Lam float64

	// ThetaV is the warped-variance threshold beyond which a model's age
	// is exponentially decayed during compensation. Typically 2500 (50^2).
	ThetaV float64

	// AgeTrim is the upper bound enforced on every model's age.
	AgeTrim float64

	// ThetaS is the gating distance (in variance-normalized squared
	// units) used to decide whether an existing model matches a cell's
	// new observation, or whether the youngest (lowest-age) non-apparent
	// candidate should be evicted.
	ThetaS float64

	// ThetaD is the foreground decision threshold (in std-dev units);
	// unused when CalcProbs is true.
	ThetaD float64

	// Dynamic, when true, allows the apparent-model slot to be
	// recomputed per cell (highest-age model) after warping.
	Dynamic bool

	// CalcProbs, when true, makes Process emit a continuous
	// Mahalanobis-like anomaly score instead of a binary mask.
	CalcProbs bool

	// Sensitivity selects the update/foreground ordering (spec §4.4).
	Sensitivity Sensitivity

	// Smooth, when true, applies a median(5) then Gaussian(7x7) blur to
	// each frame before KLT tracking and statistical update.
	Smooth bool

	// KLT holds the sparse tracker's tuning knobs (spec §4.2).
	KLT KLTConfig
}

// KLTConfig tunes the sparse feature tracker backing the homography
// estimator (spec §4.2).
type KLTConfig struct {
	// MaxPoints bounds the number of corners tracked. Default 1000.
	MaxPoints int

	// MinDistance is the minimum pixel distance enforced between
	// detected corners.
	MinDistance int

	// QualityLevel is goodFeaturesToTrack's minimal accepted corner
	// quality, in (0, 1].
	QualityLevel float64

	// RansacReprojThreshold is FindHomography's maximum reprojection
	// error (pixels) to treat a correspondence as an inlier.
	RansacReprojThreshold float64

	// DownscaleFactor detects corners on a frame downscaled by this
	// factor (>= 1); tracked/fit points are rescaled back to full
	// resolution. 1 disables downscaling.
	DownscaleFactor float64
}

// DefaultConfig returns a Config with the values the spec documents as
// typical defaults for every option (spec §3).
func DefaultConfig() Config {
	return Config{
		NumModels:   2,
		BlockSize:   4,
		VarInit:     20.0 * 20.0,
		VarTrim:     5.0 * 5.0,
		Lam:         0.001,
		ThetaV:      50.0 * 50.0,
		AgeTrim:     30,
		ThetaS:      2,
		ThetaD:      2,
		Dynamic:     false,
		CalcProbs:   false,
		Sensitivity: SensitivityMixed,
		Smooth:      true,
		KLT: KLTConfig{
			MaxPoints:             1000,
			MinDistance:           8,
			QualityLevel:          0.01,
			RansacReprojThreshold: 3.0,
			DownscaleFactor:       1.0,
		},
	}
}

// Validate checks the construction-time invariants of spec §7: K >= 2,
// B > 0, VarTrim > 0, VarInit >= VarTrim, AgeTrim > 0, a recognized
// Sensitivity, KLT.MaxPoints > 0 and KLT.DownscaleFactor >= 1. Dimension divisibility is checked
// separately by NewGrid once the first frame's size is known.
func (c *Config) Validate() error {
	if c.NumModels < 2 {
		return &ConfigurationError{Reason: "NumModels (K) must be >= 2"}
	}
	if c.BlockSize <= 0 {
		return &ConfigurationError{Reason: "BlockSize (B) must be > 0"}
	}
	if c.VarTrim <= 0 {
		return &ConfigurationError{Reason: "VarTrim must be > 0"}
	}
	if c.VarInit < c.VarTrim {
		return &ConfigurationError{Reason: "VarInit must be >= VarTrim"}
	}
	if c.AgeTrim <= 0 {
		return &ConfigurationError{Reason: "AgeTrim must be > 0"}
	}
	switch c.Sensitivity {
	case SensitivityUpdateFirst, SensitivityForegroundFirst, SensitivityMixed:
	default:
		return &ConfigurationError{Reason: "Sensitivity must be one of update-first, foreground-first, mixed"}
	}
	if c.KLT.MaxPoints <= 0 {
		return &ConfigurationError{Reason: "KLT.MaxPoints must be > 0"}
	}
	if c.KLT.DownscaleFactor < 1 {
		return &ConfigurationError{Reason: "KLT.DownscaleFactor must be >= 1"}
	}
	return nil
}
