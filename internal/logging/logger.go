// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the standard logrus logger at the configured sinks.
func Setup(cfg config.LogConfig) {
	if cfg.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetLevel(GetLevel(cfg.Level))
	logrus.SetOutput(Output(cfg))
}

// Output builds the writer for cfg: stdout, a rotating file, or both.
func Output(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}

	fileName := cfg.File
	if !strings.HasSuffix(fileName, ".log") {
		fileName += ".log"
	}
	rotating := &lumberjack.Logger{
		Filename: fileName,
		MaxSize:  50, // megabytes
		Compress: true,
	}
	if cfg.Stdout {
		return io.MultiWriter(os.Stdout, rotating)
	}
	return rotating
}

// GetLevel maps a config level name to a logrus level, defaulting to info.
func GetLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
