// Package logging configures the process-wide standard logger.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds log output settings
type Config struct {
	// File enables rotation into this path in addition to stderr
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup points the standard logger at stderr and, when configured, a rotated file.
// The returned writer is what request logging should write to; the closer flushes the file.
func Setup(config Config) (io.Writer, io.Closer) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if config.File == "" {
		log.SetOutput(os.Stderr)
		return os.Stderr, nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    orDefault(config.MaxSizeMB, 50),
		MaxBackups: orDefault(config.MaxBackups, 5),
		MaxAge:     orDefault(config.MaxAgeDays, 28),
		Compress:   true,
	}

	out := io.MultiWriter(os.Stderr, rotator)
	log.SetOutput(out)
	log.Printf("Logging to %s", config.File)
	return out, rotator
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
