package videoio

import (
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// writeSeqInfo writes a minimal seqinfo.ini describing a one-frame, 8x8
// grayscale sequence, matching the fields NewVideoFromFrames reads.
func writeSeqInfo(t *testing.T, dir string) {
	t.Helper()
	contents := "[Sequence]\n" +
		"name=test-seq\n" +
		"imDir=img1\n" +
		"frameRate=10\n" +
		"seqLength=1\n" +
		"imWidth=8\n" +
		"imHeight=8\n" +
		"imExt=.jpg\n"
	if err := os.WriteFile(filepath.Join(dir, "seqinfo.ini"), []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write seqinfo.ini: %v", err)
	}
}

// writeSampleFrame writes a single solid-gray 8x8 JPEG at img1/000001.jpg,
// the first (and only) frame NewVideoFromFrames' Frames() will read.
func writeSampleFrame(t *testing.T, dir string) {
	t.Helper()
	imgDir := filepath.Join(dir, "img1")
	if err := os.MkdirAll(imgDir, 0755); err != nil {
		t.Fatalf("failed to create img1: %v", err)
	}
	frame := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC1)
	defer frame.Close()
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			frame.SetUCharAt(y, x, 100)
		}
	}
	if ok := gocv.IMWrite(filepath.Join(imgDir, "000001.jpg"), frame); !ok {
		t.Fatalf("failed to write sample frame")
	}
}

func TestNewVideoFromFrames_ReadsSeqInfo(t *testing.T) {
	dir := t.TempDir()
	writeSeqInfo(t, dir)
	writeSampleFrame(t, dir)

	vff, err := NewVideoFromFrames(dir, t.TempDir(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer vff.Close()

	if vff.Width() != 8 || vff.Height() != 8 {
		t.Fatalf("expected 8x8 dimensions, got %dx%d", vff.Width(), vff.Height())
	}
}

func TestNewVideoFromFrames_MissingSeqInfoErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewVideoFromFrames(dir, t.TempDir(), false); err == nil {
		t.Fatalf("expected error when seqinfo.ini is missing")
	}
}

func TestVideoFromFrames_FramesYieldsGrayscaleFrame(t *testing.T) {
	dir := t.TempDir()
	writeSeqInfo(t, dir)
	writeSampleFrame(t, dir)

	vff, err := NewVideoFromFrames(dir, t.TempDir(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer vff.Close()

	var n int
	for frame := range vff.Frames() {
		if frame.Channels() != 1 {
			t.Fatalf("expected a single-channel frame, got %d channels", frame.Channels())
		}
		if err := vff.Update(frame); err != nil {
			t.Fatalf("unexpected error from Update: %v", err)
		}
		frame.Close()
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 frame, got %d", n)
	}
}

func TestVideoFromFrames_MakeVideoWritesOutput(t *testing.T) {
	dir := t.TempDir()
	writeSeqInfo(t, dir)
	writeSampleFrame(t, dir)

	outDir := t.TempDir()
	vff, err := NewVideoFromFrames(dir, outDir, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for frame := range vff.Frames() {
		if err := vff.Update(frame); err != nil {
			t.Fatalf("unexpected error from Update: %v", err)
		}
		frame.Close()
	}

	if _, err := os.Stat(filepath.Join(outDir, "videos", "test-seq.mp4")); err != nil {
		t.Fatalf("expected output video to be written: %v", err)
	}
}
