package config

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logs creates the loggers of each component. Output goes to stderr and,
// when a log file is configured, to a size-rotated file as well.
type Logs struct {
	out    io.Writer
	closer io.Closer
	flags  int
}

// NewLogs builds the shared log output from cfg.
func NewLogs(cfg LogConfig) *Logs {
	l := &Logs{out: os.Stderr, flags: log.LstdFlags}
	if cfg.Verbose {
		l.flags |= log.Lmicroseconds
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		l.out = io.MultiWriter(os.Stderr, rotator)
		l.closer = rotator
	}
	return l
}

// Logger returns a logger for one component, e.g. Logger("sync") logs
// with the prefix "[sync] ".
func (l *Logs) Logger(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", l.flags)
}

// Writer returns the shared output.
func (l *Logs) Writer() io.Writer {
	return l.out
}

// Close closes the log file, if any.
func (l *Logs) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
