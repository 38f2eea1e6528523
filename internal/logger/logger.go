package logger

import (
	"io"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the shared application logger. Packages log through it with structured
// fields (symbol, cycle) rather than formatting everything into the message.
var Log = logrus.New()

// Setup routes the logger to stdout plus a size-rotated file and pins the level.
// It also redirects the stdlib logger so early config/startup lines land in the
// same place.
func Setup(filename string, maxSizeMB, maxBackups int, level string) {
	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     28, // days
		Compress:   true,
	}

	Log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Log.Warnf("Unknown log level %q, defaulting to info", level)
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	log.SetOutput(Log.Writer())
	log.SetFlags(0)
}
