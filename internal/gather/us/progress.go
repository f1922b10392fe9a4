package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// symbolLog is an append-only set of symbols persisted one per line.
type symbolLog struct {
	path   string
	set    map[string]struct{}
	file   *os.File
	writer *bufio.Writer
}

func openSymbolLog(path string) (*symbolLog, error) {
	l := &symbolLog{path: path, set: make(map[string]struct{})}
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				l.set[sym] = struct{}{}
			}
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	return l, nil
}

func (l *symbolLog) has(sym string) bool {
	_, ok := l.set[sym]
	return ok
}

func (l *symbolLog) add(sym string) error {
	if l.has(sym) {
		return nil
	}
	l.set[sym] = struct{}{}
	if _, err := l.writer.WriteString(sym + "\n"); err != nil {
		return err
	}
	return l.writer.Flush()
}

func (l *symbolLog) close() error {
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *symbolLog) truncate() error {
	l.close()
	os.Remove(l.path)
	fresh, err := openSymbolLog(l.path)
	if err != nil {
		return err
	}
	*l = *fresh
	return nil
}

// progressTracker makes `bibo fetch` resumable: symbols already fetched or
// found empty for the current end date are skipped after a crash.
//
// Files under the daily directory:
//
//	.fetched         symbols written for the end date in .last-completed
//	.tried-empty     symbols that returned no bars
//	.last-completed  end date of the last fully finished run
type progressTracker struct {
	mu       sync.Mutex
	dailyDir string
	fetched  *symbolLog
	empty    *symbolLog
}

// newProgressTracker creates a tracker rooted at the given daily directory
// and loads any existing entries.
func newProgressTracker(dailyDir string) (*progressTracker, error) {
	if err := os.MkdirAll(dailyDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating daily dir: %w", err)
	}
	fetched, err := openSymbolLog(filepath.Join(dailyDir, ".fetched"))
	if err != nil {
		return nil, err
	}
	empty, err := openSymbolLog(filepath.Join(dailyDir, ".tried-empty"))
	if err != nil {
		fetched.close()
		return nil, err
	}
	return &progressTracker{dailyDir: dailyDir, fetched: fetched, empty: empty}, nil
}

// Done reports whether symbol was fetched or found empty.
func (p *progressTracker) Done(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetched.has(symbol) || p.empty.has(symbol)
}

// IsTriedEmpty returns true if the symbol was already tried and returned no data.
func (p *progressTracker) IsTriedEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.empty.has(symbol)
}

// MarkFetched records a symbol whose bars were written.
func (p *progressTracker) MarkFetched(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetched.add(symbol)
}

// MarkEmpty records a symbol that returned no bars.
func (p *progressTracker) MarkEmpty(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.empty.add(symbol)
}

// MarkCompleted writes the given date to .last-completed.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(filepath.Join(p.dailyDir, ".last-completed"), []byte(date), 0o644)
}

// LastCompleted returns the date string from .last-completed, or empty string.
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(filepath.Join(p.dailyDir, ".last-completed"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Reset clears both symbol logs for a new end date.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fetched.truncate(); err != nil {
		return err
	}
	return p.empty.truncate()
}

// Close flushes and closes the symbol logs.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.empty.close()
	return p.fetched.close()
}
