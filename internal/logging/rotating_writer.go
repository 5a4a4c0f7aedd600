package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes is the size rollover threshold used when none is given.
const DefaultMaxBytes int64 = 50 << 20

// DefaultRetain is how many rotated files Setup keeps per log.
const DefaultRetain = 14

// RotatingWriter appends to <stem>-YYYY-MM-DD[-N]<ext> next to Path, starting
// a new file each UTC day and whenever a write would push the active file past
// MaxBytes. Path itself is kept as a symlink to the active file, so
// `tail -F logs/readrd.log` follows rotation.
type RotatingWriter struct {
	Path     string
	MaxBytes int64
	// Retain bounds the number of rotated files left on disk; 0 keeps all.
	Retain int

	now func() time.Time

	mu    sync.Mutex
	day   string
	seq   int
	file  *os.File
	bytes int64
}

// NewRotatingWriter opens the active file for path. A path of "-" yields a
// writer that discards everything.
func NewRotatingWriter(path string, maxBytes int64) (io.WriteCloser, error) {
	return newRotatingWriter(path, maxBytes, 0, time.Now)
}

func newRotatingWriter(path string, maxBytes int64, retain int, now func() time.Time) (io.WriteCloser, error) {
	path = strings.TrimSpace(path)
	if path == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &RotatingWriter{Path: path, MaxBytes: maxBytes, Retain: retain, now: now}
	if err := w.roll(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// roll switches files when the day changes or the next write would overflow.
func (w *RotatingWriter) roll(next int64) error {
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	day := now().UTC().Format(time.DateOnly)
	switch {
	case w.file == nil && w.day == day:
		// reopened after Close: continue the current file
	case w.file == nil || w.day != day:
		w.day, w.seq = day, 1
	case w.bytes+next > w.MaxBytes:
		w.seq++
	default:
		return nil
	}
	return w.open()
}

func (w *RotatingWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create dir: %w", err)
	}
	target := w.name(w.day, w.seq)
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", target, err)
	}
	w.file, w.bytes = f, 0
	if st, err := f.Stat(); err == nil {
		w.bytes = st.Size()
	}
	w.link(target)
	w.prune()
	return nil
}

func (w *RotatingWriter) stem() (dir, stem, ext string) {
	dir, name := filepath.Split(w.Path)
	ext = filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	return dir, stem, ext
}

func (w *RotatingWriter) name(day string, seq int) string {
	dir, stem, ext := w.stem()
	if seq > 1 {
		return filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", stem, day, seq, ext))
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, day, ext))
}

// link points Path at target: a symlink, else a hard link, else a note. The
// symlink is relative since both files share a directory.
func (w *RotatingWriter) link(target string) {
	rel := filepath.Base(target)
	if dest, err := os.Readlink(w.Path); err == nil && dest == rel {
		return
	}
	_ = os.Remove(w.Path)
	if os.Symlink(rel, w.Path) == nil || os.Link(target, w.Path) == nil {
		return
	}
	_ = os.WriteFile(w.Path, []byte("current log file: "+target+"\n"), 0o644)
}

// prune removes the oldest rotated files beyond Retain.
func (w *RotatingWriter) prune() {
	if w.Retain <= 0 {
		return
	}
	dir, stem, ext := w.stem()
	matches, err := filepath.Glob(filepath.Join(dir, stem+"-*"+ext))
	if err != nil || len(matches) <= w.Retain {
		return
	}
	type rotated struct {
		path string
		day  string
		seq  int
	}
	files := make([]rotated, 0, len(matches))
	for _, m := range matches {
		rest := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), stem+"-"), ext)
		if len(rest) < len(time.DateOnly) {
			continue
		}
		f := rotated{path: m, day: rest[:len(time.DateOnly)], seq: 1}
		if _, err := time.Parse(time.DateOnly, f.day); err != nil {
			continue
		}
		if tail := rest[len(time.DateOnly):]; tail != "" {
			n, err := strconv.Atoi(strings.TrimPrefix(tail, "-"))
			if err != nil {
				continue
			}
			f.seq = n
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].day != files[j].day {
			return files[i].day < files[j].day
		}
		return files[i].seq < files[j].seq
	})
	for len(files) > w.Retain {
		_ = os.Remove(files[0].path)
		files = files[1:]
	}
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
