// Package logging provides plain, level-tagged console logging, in the same
// spirit as the teacher's fmt.Printf/fmt.Fprintf(os.Stderr, ...) console
// output, but namespaced so configuration reversions (the Check warnings
// that pkg/model's Load reports) show up distinctly instead of blending
// into ordinary progress output.
package logging

import (
	"log"
	"os"
)

// Logger is a minimal leveled wrapper around the standard library's *log.Logger.
type Logger struct {
	info *log.Logger
	warn *log.Logger
}

// Default writes INFO to stdout and WARN to stderr, without timestamps
// (the teacher's CLI output is itself the progress record).
func Default() *Logger {
	return &Logger{
		info: log.New(os.Stdout, "", 0),
		warn: log.New(os.Stderr, "", 0),
	}
}

// Infof logs a routine progress message.
func (l *Logger) Infof(format string, args ...any) {
	l.info.Printf("[info] "+format, args...)
}

// Warnf logs a recoverable anomaly, such as a reverted configuration flag
// after a refused adjusted-dynamics request (spec §7).
func (l *Logger) Warnf(format string, args ...any) {
	l.warn.Printf("[warn] "+format, args...)
}

var std = Default()

// Infof logs to the package-level default Logger.
func Infof(format string, args ...any) { std.Infof(format, args...) }

// Warnf logs to the package-level default Logger.
func Warnf(format string, args ...any) { std.Warnf(format, args...) }
