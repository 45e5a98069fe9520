/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a single key-value pair of a structured log entry.
type Field = logf.Field

// LogFunc logs a message with the level bound by FieldLogger.AtLevel.
// nolint: revive
type LogFunc = logf.LogFunc

// CloseFunc flushes buffered entries and stops the asynchronous writer.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	Error      = logf.Error
	NamedError = logf.NamedError
	String     = logf.String
	Strings    = logf.Strings
	Bytes      = logf.Bytes
	Int        = logf.Int
	Int64      = logf.Int64
	Uint16     = logf.Uint16
	Uint64     = logf.Uint64
	Float64    = logf.Float64
	Bool       = logf.Bool
	Duration   = logf.Duration
	Time       = logf.Time
	Any        = logf.Any
)

// DurationIn returns a "duration" field expressed as an integer number of units.
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", val.Nanoseconds()/unit.Nanoseconds())
}

// FieldLogger is a leveled structured logger.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
	WithLevel(level Level) FieldLogger
}

var logfLevels = map[Level]logf.Level{
	LevelError: logf.LevelError,
	LevelWarn:  logf.LevelWarn,
	LevelInfo:  logf.LevelInfo,
	LevelDebug: logf.LevelDebug,
}

// ToLogfLevel maps the level to logf's one. Unknown levels are treated as "info".
func ToLogfLevel(level Level) logf.Level {
	if l, ok := logfLevels[level]; ok {
		return l
	}
	return logf.LevelInfo
}

// FromLogfLevel is the inverse of ToLogfLevel.
func FromLogfLevel(level logf.Level) Level {
	for l, ll := range logfLevels {
		if ll == level {
			return l
		}
	}
	return LevelInfo
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{Logger: logf.NewDisabledLogger()}
}

// NewLogger builds an asynchronous logger for the configuration.
// The returned CloseFunc must be called before the process exits, otherwise the tail of the log may be lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	channel, closeFn := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, newOutputWriter(cfg)),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(ToLogfLevel(cfg.Level), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		// The adapter's own frame is skipped.
		logger = logger.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{Logger: logger}, CloseFunc(closeFn)
}

func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.With(fs...)}
}

func (l *LogfAdapter) Debug(text string, fs ...Field) { l.Logger.Debug(text, fs...) }

func (l *LogfAdapter) Info(text string, fs ...Field) { l.Logger.Info(text, fs...) }

func (l *LogfAdapter) Warn(text string, fs ...Field) { l.Logger.Warn(text, fs...) }

func (l *LogfAdapter) Error(text string, fs ...Field) { l.Logger.Error(text, fs...) }

func (l *LogfAdapter) Debugf(format string, args ...interface{}) { l.printf(LevelDebug, format, args) }

func (l *LogfAdapter) Infof(format string, args ...interface{}) { l.printf(LevelInfo, format, args) }

func (l *LogfAdapter) Warnf(format string, args ...interface{}) { l.printf(LevelWarn, format, args) }

func (l *LogfAdapter) Errorf(format string, args ...interface{}) { l.printf(LevelError, format, args) }

// printf formats the message only when the level is enabled.
func (l *LogfAdapter) printf(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(logFn LogFunc) {
		logFn(fmt.Sprintf(format, args...))
	})
}

// AtLevel calls fn only if the level is enabled.
func (l *LogfAdapter) AtLevel(level Level, fn func(LogFunc)) {
	l.Logger.AtLevel(ToLogfLevel(level), fn)
}

// WithLevel returns a logger with an additional level check.
// The level can only be raised this way: messages below any of the levels are dropped.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(ToLogfLevel(level))}
}

func newOutputWriter(cfg *Config) io.Writer {
	switch cfg.Output {
	case OutputFile:
		rotation := cfg.File.Rotation
		return &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, time.Now()),
			MaxSize:    int(rotation.MaxSize / (1024 * 1024)),
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
			LocalTime:  rotation.LocalTimeInNames,
		}
	case OutputStderr:
		return os.Stderr
	default:
		return os.Stdout
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	var errEncoder logf.ErrorEncoder
	if cfg.Error.NoVerbose || cfg.Error.VerboseSuffix != "" {
		errEncoder = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: errEncoder,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  errEncoder,
	}))
}

// expandFilePath substitutes {{starttime}} and {{pid}} in the log file path.
func expandFilePath(path string, startTime time.Time) string {
	return strings.NewReplacer(
		"{{starttime}}", startTime.Format("200601021504"),
		"{{pid}}", strconv.Itoa(os.Getpid()),
	).Replace(path)
}
