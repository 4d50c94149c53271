// Command vmd-demo runs the core's ForegroundEstimator end to end against a
// video file or camera, writing the foreground map to an output video. It
// hardcodes the one estimator the core provides; the name-to-estimator
// registry belongs to the outer pipeline and is out of scope (spec §1, §9).
package main

import (
	"flag"
	"fmt"
	"log"

	vmdcore "github.com/nmichlo/vmd-core"
	"github.com/nmichlo/vmd-core/internal/videoio"
	"gocv.io/x/gocv"
	"gopkg.in/ini.v1"
)

// frameSource is satisfied by both videoio.Video and videoio.VideoFromFrames:
// whichever the -mot-dir flag selects, the processing loop below drives it
// the same way.
type frameSource interface {
	Frames() <-chan gocv.Mat
	Close() error
}

func main() {
	inputPath := flag.String("input", "", "input video file or image path")
	outputPath := flag.String("output", "out.mp4", "output video file or directory")
	configPath := flag.String("config", "", "optional .ini file overriding default Config")
	camera := flag.Int("camera", -1, "camera device index (overrides -input)")
	motDir := flag.String("mot-dir", "", "MOTChallenge-style frame sequence directory (overrides -input/-camera)")
	makeVideo := flag.Bool("make-video", false, "with -mot-dir, also write the foreground sequence to a video file")
	flag.Parse()

	cfg := vmdcore.DefaultConfig()
	if *configPath != "" {
		if err := loadConfigINI(*configPath, &cfg); err != nil {
			log.Fatalf("vmd-demo: failed to load config: %v", err)
		}
	}

	var source frameSource
	var writeFrame func(gocv.Mat) error

	if *motDir != "" {
		vff, err := videoio.NewVideoFromFrames(*motDir, *outputPath, *makeVideo)
		if err != nil {
			log.Fatalf("vmd-demo: failed to open frame sequence: %v", err)
		}
		source = vff
		writeFrame = vff.Update
	} else {
		opts := videoio.VideoOptions{
			OutputPath: *outputPath,
			Label:      "vmd-demo",
		}
		if *camera >= 0 {
			opts.Camera = camera
		} else if *inputPath != "" {
			opts.InputPath = inputPath
		} else {
			log.Fatalf("vmd-demo: one of -input, -camera, or -mot-dir is required")
		}

		video, err := videoio.NewVideo(opts)
		if err != nil {
			log.Fatalf("vmd-demo: failed to open video: %v", err)
		}
		source = video
		writeFrame = video.Write
	}
	defer source.Close()

	est, err := vmdcore.NewForegroundEstimator(cfg)
	if err != nil {
		log.Fatalf("vmd-demo: invalid config: %v", err)
	}

	var processed int
	for frame := range source.Frames() {
		foreground, err := est.Process(frame)
		if err != nil {
			frame.Close()
			log.Fatalf("vmd-demo: frame %d: %v", processed, err)
		}

		if cfg.CalcProbs {
			scaled := clampToUChar(foreground)
			if err := writeFrame(scaled); err != nil {
				log.Fatalf("vmd-demo: write frame %d: %v", processed, err)
			}
			scaled.Close()
		} else if err := writeFrame(foreground); err != nil {
			log.Fatalf("vmd-demo: write frame %d: %v", processed, err)
		}

		foreground.Close()
		frame.Close()
		processed++
	}

	fmt.Printf("vmd-demo: processed %d frames\n", processed)
}

// clampToUChar converts a CV_32FC1 anomaly-score frame into a CV_8UC1
// frame for video encoding, clamping each score into [0, 255].
func clampToUChar(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMatWithSize(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1)
	for y := 0; y < src.Rows(); y++ {
		for x := 0; x < src.Cols(); x++ {
			v := src.GetFloatAt(y, x)
			switch {
			case v < 0:
				v = 0
			case v > 255:
				v = 255
			}
			dst.SetUCharAt(y, x, uint8(v))
		}
	}
	return dst
}

// loadConfigINI overrides cfg's fields from the [vmd] section of an .ini
// file, leaving unmentioned fields at their DefaultConfig values.
func loadConfigINI(path string, cfg *vmdcore.Config) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	section := file.Section("vmd")

	cfg.NumModels = section.Key("num_models").MustInt(cfg.NumModels)
	cfg.BlockSize = section.Key("block_size").MustInt(cfg.BlockSize)
	cfg.VarInit = section.Key("var_init").MustFloat64(cfg.VarInit)
	cfg.VarTrim = section.Key("var_trim").MustFloat64(cfg.VarTrim)
	cfg.Lam = section.Key("lam").MustFloat64(cfg.Lam)
	cfg.ThetaV = section.Key("theta_v").MustFloat64(cfg.ThetaV)
	cfg.AgeTrim = section.Key("age_trim").MustFloat64(cfg.AgeTrim)
	cfg.ThetaS = section.Key("theta_s").MustFloat64(cfg.ThetaS)
	cfg.ThetaD = section.Key("theta_d").MustFloat64(cfg.ThetaD)
	cfg.Dynamic = section.Key("dynamic").MustBool(cfg.Dynamic)
	cfg.CalcProbs = section.Key("calc_probs").MustBool(cfg.CalcProbs)
	cfg.Smooth = section.Key("smooth").MustBool(cfg.Smooth)

	switch section.Key("sensitivity").MustString(cfg.Sensitivity.String()) {
	case "update-first":
		cfg.Sensitivity = vmdcore.SensitivityUpdateFirst
	case "foreground-first":
		cfg.Sensitivity = vmdcore.SensitivityForegroundFirst
	case "mixed":
		cfg.Sensitivity = vmdcore.SensitivityMixed
	}

	cfg.KLT.MaxPoints = section.Key("klt_max_points").MustInt(cfg.KLT.MaxPoints)
	cfg.KLT.MinDistance = section.Key("klt_min_distance").MustInt(cfg.KLT.MinDistance)
	cfg.KLT.QualityLevel = section.Key("klt_quality_level").MustFloat64(cfg.KLT.QualityLevel)
	cfg.KLT.RansacReprojThreshold = section.Key("klt_ransac_reproj_threshold").MustFloat64(cfg.KLT.RansacReprojThreshold)
	cfg.KLT.DownscaleFactor = section.Key("klt_downscale_factor").MustFloat64(cfg.KLT.DownscaleFactor)

	return nil
}
