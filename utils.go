package vmdcore

import (
	"log"
	"os"
	"sync"

	"golang.org/x/term"
)

// GetTerminalSize returns the terminal dimensions (columns, lines), used by
// internal/videoio to size its progress bar description. If terminal size
// cannot be detected, returns the provided defaults.
func GetTerminalSize(defaultCols, defaultLines int) (cols, lines int) {
	if width, height, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
		return width, height
	}
	if width, height, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return width, height
	}
	if width, height, err := term.GetSize(int(os.Stderr.Fd())); err == nil {
		return width, height
	}
	return defaultCols, defaultLines
}

// warnedMessages tracks which messages have already been logged by
// WarnOnce (thread-safe).
var warnedMessages sync.Map

// WarnOnce prints a warning message only once. The core's KLT failures are
// never surfaced as errors per spec §7, but a long degraded stretch logging
// every frame would be useless noise, so each distinct message logs a single
// time. All-out-of-bounds cells under warp are handled without logging.
func WarnOnce(message string) {
	if _, loaded := warnedMessages.LoadOrStore(message, true); !loaded {
		log.Printf("WARNING: %s", message)
	}
}
