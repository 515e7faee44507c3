// Package history persists the shell's command log.
//
// The log is one record per line, fields joined by '|':
//
//	command|timestamp
//	command|timestamp|case
//
// The two-field form is the legacy encoding and still parses (empty
// case). Lines starting with '#' or '+' are comments and skipped.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Separator joins the fields of one record. A command containing it (or
// a newline) cannot be encoded unambiguously and is rejected. Case names
// never carry it; the case store refuses them at creation.
const Separator = "|"

// TimeFormat is the on-disk timestamp layout.
const TimeFormat = "2006-01-02 15:04:05"

// ErrUnrecordable marks a command the log cannot hold.
var ErrUnrecordable = errors.New("command cannot be recorded")

// Entry is one recorded command invocation. Timestamp is kept verbatim
// as read; the reader never rejects an entry over an odd timestamp.
type Entry struct {
	Command   string
	Timestamp string
	Case      string
}

// Store is an append-only history log bounded by rotation.
type Store struct {
	mu   sync.Mutex
	path string
	max  int
	now  func() time.Time
	log  *zap.Logger
}

// New creates a store writing to path, keeping at most max entries.
func New(path string, max int, logger *zap.Logger) (*Store, error) {
	if max < 1 {
		return nil, fmt.Errorf("history: max entries must be at least 1, got %d", max)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("history: create log directory: %w", err)
	}
	return &Store{
		path: path,
		max:  max,
		now:  time.Now,
		log:  logger,
	}, nil
}

// Append records one command with the case it ran under. Blank commands
// are dropped silently. A command containing the separator or a newline
// returns ErrUnrecordable; the caller decides whether to dispatch
// anyway (it should - recording never blocks execution). A failed
// rotation is returned the same way: the unrotated log is still valid,
// just larger than configured.
func (s *Store) Append(command, caseName string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	if strings.ContainsAny(command, Separator+"\n\r") {
		return fmt.Errorf("%w: contains %q or a newline", ErrUnrecordable, Separator)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := encode(Entry{Command: command, Timestamp: s.now().Format(TimeFormat), Case: caseName})

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("history: open log: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("history: write entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("history: close log: %w", err)
	}

	return s.rotate()
}

// Read returns recorded entries, most recent first. limit <= 0 means
// all. A missing log file reads as empty, not as an error.
func (s *Store) Read(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return nil, fmt.Errorf("history: read log: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// rotate truncates the log to the most recent max entries, preserving
// their chronological order. The rewrite goes through a temp file in
// the same directory plus a rename, so a crash mid-rotation never
// leaves a half-written log. Callers hold s.mu.
func (s *Store) rotate() error {
	entries, err := s.readAll()
	if err != nil {
		return fmt.Errorf("history: rotate read: %w", err)
	}
	if len(entries) <= s.max {
		return nil
	}
	dropped := len(entries) - s.max
	entries = entries[dropped:]

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".mhistory-*.tmp")
	if err != nil {
		return fmt.Errorf("history: rotate temp file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		if _, err := w.WriteString(encode(e) + "\n"); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("history: rotate write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("history: rotate flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("history: rotate close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("history: rotate replace: %w", err)
	}

	s.log.Debug("rotated history log",
		zap.Int("kept", s.max),
		zap.Int("dropped", dropped))
	return nil
}

// readAll parses the log in file (chronological) order. Blank lines,
// comments, and lines with fewer than two fields are skipped.
func (s *Store) readAll() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "+") {
			continue
		}
		parts := strings.SplitN(line, Separator, 3)
		if len(parts) < 2 {
			continue
		}
		e := Entry{Command: parts[0], Timestamp: parts[1]}
		if len(parts) == 3 {
			e.Case = parts[2]
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// encode renders one record. The case field is omitted entirely when
// empty, which keeps legacy readers working on new files.
func encode(e Entry) string {
	line := e.Command + Separator + e.Timestamp
	if e.Case != "" {
		line += Separator + e.Case
	}
	return line
}
