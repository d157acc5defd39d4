// Package logging provides the levelled package-level logger used by the
// converter. Messages go to stderr until Config.SetLogger routes them to a
// rotating log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
)

type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	mu     sync.Mutex
	mode   = InfoMode
	std    = log.New(os.Stderr, "", log.LstdFlags)
	rotate *lumberjack.Logger
)

// Config describes the rotating log file.
type Config struct {
	Logfile string `yaml:"file" toml:"file"`
	// MaxSize is in megabytes, MaxAge in days.
	MaxSize int `yaml:"max_size" toml:"max_size"`
	MaxAge  int `yaml:"max_age" toml:"max_age"`
	// Console also echoes messages to stderr.
	Console bool `yaml:"console" toml:"console"`
}

// SetLogger creates a logger that saves to a rotating log file.
func (c *Config) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	var w io.Writer = l
	if c.Console {
		w = io.MultiWriter(os.Stderr, l)
	}

	mu.Lock()
	if rotate != nil {
		rotate.Close()
	}
	rotate = l
	std.SetOutput(w)
	mu.Unlock()
}

// SetOutput sends log messages to w, closing any rotating log file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if rotate != nil {
		rotate.Close()
		rotate = nil
	}
	std.SetOutput(w)
}

// Shutdown makes sure logs are closed.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if rotate != nil {
		rotate.Close()
		rotate = nil
	}
	std.SetOutput(os.Stderr)
}

// SetLogMode sets the severity required for a log message to be printed.
// For example, SetLogMode(WarningMode) logs Warningf, Errorf and Criticalf
// calls. SilentMode turns logging off.
func SetLogMode(newMode ModeFlag) {
	mu.Lock()
	mode = newMode
	mu.Unlock()
}

// Mode returns the current severity threshold.
func Mode() ModeFlag {
	mu.Lock()
	defer mu.Unlock()
	return mode
}

// ParseMode maps "debug", "info", "warning", "error", "critical" and
// "silent" to a ModeFlag.
func ParseMode(s string) (ModeFlag, error) {
	switch s {
	case "debug":
		return DebugMode, nil
	case "info", "":
		return InfoMode, nil
	case "warning", "warn":
		return WarningMode, nil
	case "error":
		return ErrorMode, nil
	case "critical":
		return CriticalMode, nil
	case "silent":
		return SilentMode, nil
	}
	return InfoMode, fmt.Errorf("unknown log level %q", s)
}

func output(level ModeFlag, tag, format string, args ...interface{}) {
	if Mode() > level {
		return
	}
	std.Printf(tag+format, args...)
}

// Debugf formats its arguments analogous to fmt.Printf and records the text
// as a log message at Debug level.
func Debugf(format string, args ...interface{}) {
	output(DebugMode, "    DEBUG ", format, args...)
}

// Infof is like Debugf, but at Info level.
func Infof(format string, args ...interface{}) {
	output(InfoMode, "     INFO ", format, args...)
}

func Warningf(format string, args ...interface{}) {
	output(WarningMode, "  WARNING ", format, args...)
}

func Errorf(format string, args ...interface{}) {
	output(ErrorMode, "    ERROR ", format, args...)
}

func Criticalf(format string, args ...interface{}) {
	output(CriticalMode, " CRITICAL ", format, args...)
}

// TimeLog adds elapsed time to logging.
// Example:
//
//	mylog := NewTimeLog()
//	...
//	mylog.Debugf("stuff happened")  // Appends elapsed time from NewTimeLog() to message.
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

// Elapsed returns the time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	Debugf(format+": %s", append(args, t.Elapsed())...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	Infof(format+": %s", append(args, t.Elapsed())...)
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	Warningf(format+": %s", append(args, t.Elapsed())...)
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	Errorf(format+": %s", append(args, t.Elapsed())...)
}
