package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is re-exported so callers don't import logrus directly.
type Fields = logrus.Fields

var (
	log     = logrus.New()
	logFile *os.File
)

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		PadLevelText:    true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)
}

// InitLogger initializes the logger with a console output and, when filename
// is not empty, a file output. Unknown levels fall back to info.
func InitLogger(filename string, level string) error {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	if filename == "" {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	return nil
}

// SetOutput redirects all log output, e.g. to stderr when stdout carries the
// job summary.
func SetOutput(w io.Writer) {
	if logFile != nil {
		w = io.MultiWriter(w, logFile)
	}
	log.SetOutput(w)
}

func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// WithFields returns an entry carrying structured context such as table and batch.
func WithFields(fields Fields) *logrus.Entry {
	return log.WithFields(fields)
}

func Debugf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}

func Info(format string, v ...interface{}) {
	log.Infof(format, v...)
}

func Infof(format string, v ...interface{}) {
	Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	log.Warnf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	log.Errorf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	Error(format, v...)
}
