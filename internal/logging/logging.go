package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger injected into components.
type Logger = logrus.FieldLogger

// Fields represents structured logging fields
type Fields = logrus.Fields

var std = New("info", "json", os.Stdout)

// New builds a logrus logger writing to out. format is "json" (default) or "text".
func New(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	l.SetLevel(ParseLevel(level))
	return l
}

// ParseLevel maps a level name to logrus, defaulting to info.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// SetDefault replaces the logger behind the package-level helpers.
func SetDefault(l *logrus.Logger) { std = l }

// Default returns the logger behind the package-level helpers.
func Default() *logrus.Logger { return std }

func Log(level logrus.Level, msg string, fields map[string]any) {
	std.WithFields(logrus.Fields(fields)).Log(level, msg)
}

func Info(msg string, fields map[string]any)  { Log(logrus.InfoLevel, msg, fields) }
func Warn(msg string, fields map[string]any)  { Log(logrus.WarnLevel, msg, fields) }
func Error(msg string, fields map[string]any) { Log(logrus.ErrorLevel, msg, fields) }
