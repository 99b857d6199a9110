package logging

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var verbose atomic.Bool

// InitLogging routes the standard logger to stdout with microsecond timestamps.
func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

// SetVerbose toggles Debugf output.
func SetVerbose(v bool) {
	verbose.Store(v)
}

func Infof(format string, v ...any) {
	log.Println("INFO:", fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	log.Println("WARN:", fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	log.Println("ERROR:", fmt.Sprintf(format, v...))
}

// Debugf logs only when verbose mode is enabled.
func Debugf(format string, v ...any) {
	if !verbose.Load() {
		return
	}
	log.Println("DEBUG:", fmt.Sprintf(format, v...))
}
