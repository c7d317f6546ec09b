package common

import (
	"io"
	"log"
	"os"
)

var (
	logger = log.New(os.Stderr, "[alsepgate] ", log.LstdFlags|log.Lmicroseconds)
)

// SetLogOutput redirects package logging, e.g. into a rotating file.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Printf("WARN "+format, args...)
}
