package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config selects the log sink. It mirrors the logging section of the
// configuration file.
type Config struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string

	// Format is "text" (console encoder) or "json".
	Format string

	// Output is "stdout", "stderr" or a file path opened for append.
	Output string
}

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar       atomic.Pointer[zap.SugaredLogger]
	closer      atomic.Pointer[os.File]
)

func init() {
	sugar.Store(build("text", zapcore.Lock(os.Stdout)))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to LevelInfo
// and ok=false.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	if l, ok := ParseLevel(level); ok {
		atomicLevel.SetLevel(l.zapLevel())
	}
}

// CurrentLevel reports the active minimum level.
func CurrentLevel() Level {
	switch atomicLevel.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// Init rebuilds the global logger from cfg.
func Init(cfg Config) error {
	var (
		sink zapcore.WriteSyncer
		file *os.File
	)

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.Output, err)
		}
		sink = zapcore.Lock(f)
		file = f
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}

	swap(build(cfg.Format, sink), file)
	return nil
}

// SetOutput redirects logging to w using the given format. Intended for tests
// that assert on log output.
func SetOutput(w io.Writer, format string) {
	swap(build(format, zapcore.AddSync(w)), nil)
}

// Sync flushes buffered log entries.
func Sync() error {
	return sugar.Load().Sync()
}

func swap(next *zap.SugaredLogger, file *os.File) {
	prev := sugar.Swap(next)
	_ = prev.Sync()

	if old := closer.Swap(file); old != nil {
		_ = old.Close()
	}
}

func build(format string, sink zapcore.WriteSyncer) *zap.SugaredLogger {
	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.CallerKey = ""
		cfg.ConsoleSeparator = " "
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	return zap.New(zapcore.NewCore(encoder, sink, atomicLevel)).Sugar()
}

func Debug(format string, v ...any) {
	sugar.Load().Debugf(format, v...)
}

func Info(format string, v ...any) {
	sugar.Load().Infof(format, v...)
}

func Warn(format string, v ...any) {
	sugar.Load().Warnf(format, v...)
}

func Error(format string, v ...any) {
	sugar.Load().Errorf(format, v...)
}
