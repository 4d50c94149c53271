// Package videoio provides the frame-producing/frame-consuming collaborators
// the core's demo harness drives: a gocv.VideoCapture/VideoWriter wrapper
// with progress reporting, and an MOT-style frame-sequence reader. Neither
// is part of the core estimator itself (spec §1's "outer pipeline" is out
// of scope); these exist to run cmd/vmd-demo end to end.
package videoio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	vmdcore "github.com/nmichlo/vmd-core"
	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"
	"gopkg.in/ini.v1"
)

// Video wraps OpenCV VideoCapture and VideoWriter with progress tracking.
// Supports reading from video files or camera devices.
type Video struct {
	// Input (exactly one must be set)
	camera    *int
	inputPath *string

	// OpenCV handles
	videoCapture *gocv.VideoCapture
	videoWriter  *gocv.VideoWriter // Lazy initialization

	// Metadata
	fps        float64
	width      int
	height     int
	frameCount int

	// Output configuration
	outputPath   string
	outputFps    float64
	outputFourcc *string
	outputExt    string

	// Progress tracking
	label        string
	frameCounter int
	startTime    time.Time
	progressBar  *progressbar.ProgressBar
}

// VideoOptions configures Video creation.
type VideoOptions struct {
	// Input (exactly one must be set)
	Camera    *int
	InputPath *string

	// Output (optional)
	OutputPath   string  // File path or directory (default: ".")
	OutputFps    float64 // Framerate (default: input fps)
	OutputFourcc *string // Codec (default: auto-detect from extension)
	OutputExt    string  // Extension for auto-naming (default: "mp4")
	Label        string  // Progress bar label
}

// NewVideo creates a new Video instance.
// Exactly one of opts.Camera or opts.InputPath must be set.
func NewVideo(opts VideoOptions) (*Video, error) {
	if (opts.Camera == nil && opts.InputPath == nil) || (opts.Camera != nil && opts.InputPath != nil) {
		return nil, fmt.Errorf("exactly one of Camera or InputPath must be set")
	}

	v := &Video{
		camera:       opts.Camera,
		inputPath:    opts.InputPath,
		outputPath:   opts.OutputPath,
		outputFps:    opts.OutputFps,
		outputFourcc: opts.OutputFourcc,
		outputExt:    opts.OutputExt,
		label:        opts.Label,
	}

	if v.outputPath == "" {
		v.outputPath = "."
	}
	if v.outputExt == "" {
		v.outputExt = "mp4"
	}

	var err error
	if opts.Camera != nil {
		v.videoCapture, err = gocv.OpenVideoCapture(*opts.Camera)
		if err != nil {
			return nil, fmt.Errorf("failed to open camera %d: %w", *opts.Camera, err)
		}
	} else {
		path := *opts.InputPath
		if strings.HasPrefix(path, "~") {
			home, err := os.UserHomeDir()
			if err == nil {
				path = filepath.Join(home, path[1:])
			}
		}

		v.videoCapture, err = gocv.OpenVideoCapture(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open video file %s: %w", path, err)
		}
	}

	v.fps = v.videoCapture.Get(gocv.VideoCaptureFPS)
	v.width = int(v.videoCapture.Get(gocv.VideoCaptureFrameWidth))
	v.height = int(v.videoCapture.Get(gocv.VideoCaptureFrameHeight))
	v.frameCount = int(v.videoCapture.Get(gocv.VideoCaptureFrameCount))

	if v.outputFps == 0 {
		v.outputFps = v.fps
	}

	return v, nil
}

// Width and Height return the input's frame dimensions as reported by the
// capture.
func (v *Video) Width() int  { return v.width }
func (v *Video) Height() int { return v.height }

// Frames returns a channel that yields video frames, in the grayscale
// format the core's ForegroundEstimator.Process expects.
// The channel is closed when all frames have been read or an error occurs.
func (v *Video) Frames() <-chan gocv.Mat {
	frames := make(chan gocv.Mat)

	go func() {
		defer close(frames)
		defer v.cleanup()

		v.startTime = time.Now()
		v.frameCounter = 0
		v.setupProgressBar()

		for {
			color := gocv.NewMat()
			if ok := v.videoCapture.Read(&color); !ok || color.Empty() {
				color.Close()
				break
			}

			gray := gocv.NewMat()
			gocv.CvtColor(color, &gray, gocv.ColorBGRToGray)
			color.Close()

			v.frameCounter++
			v.updateProgressBar()

			frames <- gray
		}
	}()

	return frames
}

// Write writes a foreground map (or any single frame) to the output video.
// VideoWriter is lazily initialized on first call, since only then is the
// frame size (and whether it's grayscale or color) known.
func (v *Video) Write(frame gocv.Mat) error {
	if v.videoWriter == nil {
		outputPath := v.GetOutputFilePath()
		codec := v.getCodecFourcc(outputPath)

		var err error
		v.videoWriter, err = gocv.VideoWriterFile(
			outputPath,
			codec,
			v.outputFps,
			frame.Cols(),
			frame.Rows(),
			frame.Channels() > 1,
		)
		if err != nil {
			return fmt.Errorf("failed to create video writer: %w", err)
		}
	}

	if err := v.videoWriter.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// GetOutputFilePath returns the output file path.
// If outputPath is a directory, generates a filename based on input.
func (v *Video) GetOutputFilePath() string {
	info, err := os.Stat(v.outputPath)
	if err == nil && info.IsDir() {
		var baseName string
		if v.camera != nil {
			baseName = fmt.Sprintf("camera_%d_out", *v.camera)
		} else {
			fileName := filepath.Base(*v.inputPath)
			ext := filepath.Ext(fileName)
			baseName = strings.TrimSuffix(fileName, ext) + "_out"
		}
		return filepath.Join(v.outputPath, baseName+"."+v.outputExt)
	}

	return v.outputPath
}

// getCodecFourcc returns the codec fourcc for the given filename.
// Auto-detects based on extension if not explicitly set.
func (v *Video) getCodecFourcc(filename string) string {
	if v.outputFourcc != nil {
		return *v.outputFourcc
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".avi":
		return "MJPG" // More cross-platform than XVID
	case ".mp4":
		return "mp4v"
	default:
		return "mp4v"
	}
}

// setupProgressBar creates and configures the progress bar.
func (v *Video) setupProgressBar() {
	description := v.getProgressDescription()

	if v.camera != nil {
		v.progressBar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("fps"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	} else {
		v.progressBar = progressbar.NewOptions(v.frameCount,
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("fps"),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
}

// getProgressDescription returns the description for the progress bar.
func (v *Video) getProgressDescription() string {
	var desc string
	if v.camera != nil {
		desc = fmt.Sprintf("Camera %d", *v.camera)
	} else {
		desc = filepath.Base(*v.inputPath)
	}

	if v.label != "" {
		desc = fmt.Sprintf("%s - %s", desc, v.label)
	}

	termCols, _ := vmdcore.GetTerminalSize(80, 24)
	maxLen := termCols - 25
	if len(desc) > maxLen && maxLen > 10 {
		start := desc[:maxLen/2-2]
		end := desc[len(desc)-(maxLen/2-3):]
		desc = start + " ... " + end
	}

	return desc
}

// updateProgressBar updates the progress bar with current progress.
func (v *Video) updateProgressBar() {
	if v.progressBar != nil {
		v.progressBar.Add(1)
	}
}

// cleanup releases resources.
func (v *Video) cleanup() {
	if v.videoWriter != nil {
		v.videoWriter.Close()
	}
	if v.videoCapture != nil {
		v.videoCapture.Close()
	}
}

// Close releases all resources.
// Should be called with defer after creating a Video.
func (v *Video) Close() error {
	v.cleanup()
	return nil
}

// VideoFromFrames reads image sequences from MOTChallenge-style directories.
// Expects a seqinfo.ini file with metadata and numbered image files. Used to
// benchmark the core against frame sequences with known ground truth.
type VideoFromFrames struct {
	inputPath  string
	outputPath string
	makeVideo  bool

	// Metadata from seqinfo.ini
	length int
	imExt  string
	imDir  string
	fps    int
	width  int
	height int
	name   string

	// State
	frameNumber int
	videoWriter *gocv.VideoWriter
}

// NewVideoFromFrames creates a new VideoFromFrames instance.
// Reads metadata from seqinfo.ini in the input directory.
func NewVideoFromFrames(inputPath, savePath string, makeVideo bool) (*VideoFromFrames, error) {
	vff := &VideoFromFrames{
		inputPath:   inputPath,
		outputPath:  savePath,
		makeVideo:   makeVideo,
		frameNumber: 0,
	}

	if vff.outputPath == "" {
		vff.outputPath = "."
	}

	iniPath := filepath.Join(inputPath, "seqinfo.ini")
	cfg, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load seqinfo.ini: %w", err)
	}

	section := cfg.Section("Sequence")

	vff.length = section.Key("seqLength").MustInt(0)
	vff.fps = section.Key("frameRate").MustInt(30)
	vff.width = section.Key("imWidth").MustInt(0)
	vff.height = section.Key("imHeight").MustInt(0)
	vff.imExt = section.Key("imExt").MustString(".jpg")
	vff.imDir = section.Key("imDir").MustString("img1")
	vff.name = section.Key("name").MustString("sequence")

	if vff.length == 0 || vff.width == 0 || vff.height == 0 {
		return nil, fmt.Errorf("invalid seqinfo.ini: missing required fields")
	}

	if vff.makeVideo {
		videosDir := filepath.Join(vff.outputPath, "videos")
		if err := os.MkdirAll(videosDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create videos directory: %w", err)
		}

		outputPath := filepath.Join(videosDir, vff.name+".mp4")
		vff.videoWriter, err = gocv.VideoWriterFile(
			outputPath,
			"mp4v",
			float64(vff.fps),
			vff.width,
			vff.height,
			false,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create video writer: %w", err)
		}
	}

	return vff, nil
}

// Width and Height return the sequence's frame dimensions from seqinfo.ini.
func (vff *VideoFromFrames) Width() int  { return vff.width }
func (vff *VideoFromFrames) Height() int { return vff.height }

// Frames returns a channel that yields grayscale frames from the image
// sequence.
func (vff *VideoFromFrames) Frames() <-chan gocv.Mat {
	frames := make(chan gocv.Mat)

	go func() {
		defer close(frames)

		for i := 1; i <= vff.length; i++ {
			framePath := filepath.Join(vff.inputPath, vff.imDir, fmt.Sprintf("%06d%s", i, vff.imExt))

			frame := gocv.IMRead(framePath, gocv.IMReadGrayScale)
			if frame.Empty() {
				frame.Close()
				continue
			}

			vff.frameNumber = i
			frames <- frame
		}
	}()

	return frames
}

// Update writes a frame to the video if makeVideo is true, and closes the
// writer once the sequence is exhausted.
func (vff *VideoFromFrames) Update(frame gocv.Mat) error {
	if vff.videoWriter != nil {
		if err := vff.videoWriter.Write(frame); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
	}

	if vff.frameNumber >= vff.length {
		vff.Close()
	}

	return nil
}

// Close releases all resources.
func (vff *VideoFromFrames) Close() error {
	if vff.videoWriter != nil {
		vff.videoWriter.Close()
		vff.videoWriter = nil
	}
	return nil
}
