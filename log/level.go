package log

import (
	"go.uber.org/zap/zapcore"
)

type Level int8

const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	WarnLevel  = Level(zapcore.WarnLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
	FatalLevel = Level(zapcore.FatalLevel)
)

// ParseLevel accepts the zap level names, an empty string is info.
func ParseLevel(text string) (Level, error) {
	if text == "" {
		return InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(text)); err != nil {
		return InfoLevel, err
	}
	return Level(l), nil
}

type OutputEncoder func(cfg zapcore.EncoderConfig) zapcore.Encoder

type CallerEncoder func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder)

type LevelEncoder func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder)

var (
	JsonOutputEncoder    OutputEncoder = zapcore.NewJSONEncoder
	ConsoleOutputEncoder OutputEncoder = zapcore.NewConsoleEncoder

	ShortCallerEncoder CallerEncoder = zapcore.ShortCallerEncoder
	FullCallerEncoder  CallerEncoder = zapcore.FullCallerEncoder

	CapitalLevelEncoder LevelEncoder = zapcore.CapitalLevelEncoder
	BracketLevelEncoder LevelEncoder = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + level.CapitalString() + "]")
	}
)

// ParseOutputEncoder maps "json" and "console" to their encoders.
func ParseOutputEncoder(text string) OutputEncoder {
	if text == "console" {
		return ConsoleOutputEncoder
	}
	return JsonOutputEncoder
}
