package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a log line.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	SILENT
)

var levelNames = map[Level]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	WARN:   "WARN",
	ERROR:  "ERROR",
	SILENT: "SILENT",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel accepts debug|info|warn|error|silent in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// Logger writes "[LEVEL] [module] message" lines.
type Logger struct {
	mu    sync.Mutex
	level Level
	out   *log.Logger
}

func New(level Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{level: level, out: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) logf(level Level, module, format string, args ...any) {
	if level < l.Level() {
		return
	}
	prefix := "[" + levelNames[level] + "]"
	if module != "" {
		prefix += " [" + module + "]"
	}
	l.out.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(module, format string, args ...any) { l.logf(DEBUG, module, format, args...) }
func (l *Logger) Info(module, format string, args ...any)  { l.logf(INFO, module, format, args...) }
func (l *Logger) Warn(module, format string, args ...any)  { l.logf(WARN, module, format, args...) }
func (l *Logger) Error(module, format string, args ...any) { l.logf(ERROR, module, format, args...) }

var std = New(INFO, os.Stderr)

// Init replaces the package logger; call once at startup.
func Init(level Level, w io.Writer) { std = New(level, w) }

func SetLevel(level Level) { std.SetLevel(level) }

func Debug(module, format string, args ...any) { std.Debug(module, format, args...) }
func Info(module, format string, args ...any)  { std.Info(module, format, args...) }
func Warn(module, format string, args ...any)  { std.Warn(module, format, args...) }
func Error(module, format string, args ...any) { std.Error(module, format, args...) }
