package logging

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Logger writes structured JSON log lines, one object per line.
type Logger struct {
	level     Level
	component string
	mu        *sync.Mutex
	out       io.Writer
}

func NewLogger(levelStr string) *Logger {
	return NewLoggerWithWriter(levelStr, os.Stdout)
}

func NewLoggerWithWriter(levelStr string, w io.Writer) *Logger {
	return &Logger{level: parseLevel(levelStr), mu: &sync.Mutex{}, out: w}
}

// WithComponent returns a logger that tags every line with a component name.
// The underlying writer and level are shared.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{level: l.level, component: name, mu: l.mu, out: l.out}
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	rec := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		rec[k] = v
	}
	rec["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	rec["level"] = level.String()
	rec["msg"] = msg
	if l.component != "" {
		rec["component"] = l.component
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}

func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg, nil) }
func (l *Logger) Info(msg string)  { l.log(LevelInfo, msg, nil) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, msg, nil) }
func (l *Logger) Error(msg string) { l.log(LevelError, msg, nil) }

func (l *Logger) Debugw(msg string, fields map[string]interface{}) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Infow(msg string, fields map[string]interface{})  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warnw(msg string, fields map[string]interface{})  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Errorw(msg string, fields map[string]interface{}) { l.log(LevelError, msg, fields) }
