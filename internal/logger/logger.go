// Package logger provides leveled logging in text or JSON-lines form.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	json   bool
	out    io.Writer
	mu     sync.Mutex
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger writing to stderr.
func Init(level string, format string) {
	InitWriter(level, format, os.Stderr)
}

// InitWriter initializes the default logger with an explicit destination.
func InitWriter(level, format string, w io.Writer) {
	l := &Logger{
		level: ParseLevel(level),
		json:  strings.ToLower(format) == "json",
		out:   w,
	}
	if !l.json {
		l.logger = log.New(w, "", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	}
	defaultLogger = l
}

type jsonLine struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func (l *Logger) output(lvl Level, format string, args ...interface{}) {
	if l == nil || l.level > lvl {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if !l.json {
		_ = l.logger.Output(3, "["+lvl.String()+"] "+msg)
		return
	}
	b, err := json.Marshal(jsonLine{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: strings.ToLower(lvl.String()),
		Msg:   msg,
	})
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

func Debug(format string, args ...interface{}) {
	defaultLogger.output(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.output(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.output(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.output(ErrorLevel, format, args...)
}

// Fatal logs unconditionally and exits with status 1.
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		lvl := defaultLogger.level
		defaultLogger.level = DebugLevel
		defaultLogger.output(ErrorLevel, "[FATAL] "+format, args...)
		defaultLogger.level = lvl
	} else {
		fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	}
	os.Exit(1)
}
