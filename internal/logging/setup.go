package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"time"
)

const flags = log.LstdFlags | log.Lmicroseconds

// Setup points the standard logger at stderr (or stdout for daemons) and,
// when target is set, mirrors it to a rotating file. The returned closer
// releases the file.
func Setup(prefix, target string, console io.Writer) (io.Closer, error) {
	if console == nil {
		console = os.Stderr
	}
	log.SetFlags(flags)
	log.SetPrefix(prefix)
	if strings.TrimSpace(target) == "" {
		log.SetOutput(console)
		return nopWriteCloser{w: io.Discard}, nil
	}
	rot, err := newRotatingWriter(target, DefaultMaxBytes, DefaultRetain, time.Now)
	if err != nil {
		log.SetOutput(console)
		return nil, err
	}
	log.SetOutput(io.MultiWriter(console, rot))
	return rot, nil
}

// New returns a logger writing wherever the standard logger writes, with its
// own component prefix.
func New(prefix string) *log.Logger {
	return log.New(log.Writer(), prefix, flags)
}

// Debugf logs through l only when enabled.
func Debugf(l *log.Logger, enabled bool, format string, args ...any) {
	if enabled && l != nil {
		l.Printf("[debug] "+format, args...)
	}
}
