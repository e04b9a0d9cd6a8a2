// Package logger provides structured JSON logging for the SelfDev service.
// Fields are zap fields; call sites use the constructors here and never
// import zap themselves.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a log severity.
type Level int8

const (
	LevelDebug Level = Level(zapcore.DebugLevel)
	LevelInfo  Level = Level(zapcore.InfoLevel)
	LevelWarn  Level = Level(zapcore.WarnLevel)
	LevelError Level = Level(zapcore.ErrorLevel)
	LevelFatal Level = Level(zapcore.FatalLevel)
)

func (l Level) String() string {
	return zapcore.Level(l).CapitalString()
}

// ParseLevel accepts debug, info, warn/warning, error and fatal in any
// case. Anything else is info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(s)); err != nil || zl > zapcore.FatalLevel {
		return LevelInfo
	}
	return Level(zl)
}

// Field is one structured key/value.
type Field = zap.Field

func String(key, value string) Field { return zap.String(key, value) }
func Int(key string, value int) Field { return zap.Int(key, value) }
func Bool(key string, value bool) Field { return zap.Bool(key, value) }
func Any(key string, value any) Field { return zap.Any(key, value) }

// Duration renders d like "1.5s" rather than a float of seconds.
func Duration(key string, d time.Duration) Field { return zap.Stringer(key, d) }

// Err adds the error message under "error". A nil error adds nothing.
func Err(err error) Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", err.Error())
}

// Domain fields.
func UserID(id string) Field        { return String("user_id", id) }
func HabitID(id string) Field       { return String("habit_id", id) }
func AchievementID(id string) Field { return String("achievement_id", id) }
func Points(p int) Field            { return Int("points", p) }
func LevelNumber(level int) Field   { return Int("level", level) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }

// Logger writes JSON lines.
type Logger struct {
	z *zap.Logger
}

// Options configures New.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
}

func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, AddCaller: true}
}

// New builds a logger writing to opts.Output (stdout when nil).
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(out), zapcore.Level(opts.Level))

	var zopts []zap.Option
	if opts.AddCaller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{z: zap.New(core, zopts...)}
}

func Default() *Logger { return New(DefaultOptions()) }

// Nop discards everything.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
