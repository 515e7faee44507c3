// Package casefile owns the lifecycle and metadata of cases: one
// directory per case under the investigations root, with a JSON
// metadata document inside. Every mutation is a read-modify-write of
// the whole document through a temp file and rename, so a reader never
// observes a half-written case.
package casefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MetadataFile is the per-case metadata document name.
const MetadataFile = "case.json"

// ReservedChars may not appear in a case name. The set covers both
// path separators, so a name can never escape the investigations root.
const ReservedChars = `<>:"/\|?*`

var (
	ErrInvalidName = errors.New("invalid case name")
	ErrNotFound    = errors.New("case not found")
	ErrExists      = errors.New("case already exists")
)

// Evidence is one registered file. Immutable once appended.
type Evidence struct {
	File        string    `json:"file"`
	Description string    `json:"description"`
	Added       time.Time `json:"added"`
}

// Case is the metadata document for one investigation.
type Case struct {
	Name     string     `json:"name"`
	Created  time.Time  `json:"created"`
	Updated  time.Time  `json:"updated"`
	Examiner string     `json:"examiner"`
	Evidence []Evidence `json:"evidence"`
	Notes    []string   `json:"notes"`
}

// Store manages cases under one investigations root.
type Store struct {
	root     string
	examiner string
	strict   bool
	now      func() time.Time
	log      *zap.Logger
}

// NewStore creates a store rooted at root. examiner is stamped on new
// cases. With strict set, Create fails on an existing case instead of
// activating it.
func NewStore(root, examiner string, strict bool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		root:     root,
		examiner: examiner,
		strict:   strict,
		now:      time.Now,
		log:      logger,
	}
}

// Dir returns the directory a case lives in. The name is not checked
// here; callers go through Create/Open first.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Create makes a new case and returns it. If the case already exists,
// the default policy returns it with existed=true so the caller can
// warn and activate it; strict mode returns ErrExists instead. An
// existing directory without metadata is adopted: initial metadata is
// written into it.
func (s *Store) Create(name string) (*Case, bool, error) {
	if err := validateName(name); err != nil {
		return nil, false, err
	}

	dir := s.Dir(name)
	if _, err := os.Stat(filepath.Join(dir, MetadataFile)); err == nil {
		if s.strict {
			return nil, false, fmt.Errorf("%w: %s", ErrExists, name)
		}
		c, err := s.load(name)
		if err != nil {
			return nil, false, err
		}
		s.log.Info("reusing existing case", zap.String("case", name))
		return c, true, nil
	}

	adopted := false
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		if s.strict {
			return nil, false, fmt.Errorf("%w: directory %s already exists", ErrExists, name)
		}
		adopted = true
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, false, fmt.Errorf("create case directory: %w", err)
	}

	now := s.now()
	c := &Case{
		Name:     name,
		Created:  now,
		Updated:  now,
		Examiner: s.examiner,
		Evidence: []Evidence{},
		Notes:    []string{},
	}
	if err := s.write(c); err != nil {
		return nil, false, err
	}

	s.log.Info("created case",
		zap.String("case", name),
		zap.String("examiner", s.examiner),
		zap.Bool("adopted_dir", adopted))
	return c, adopted, nil
}

// Open returns an existing case. A directory without a metadata
// document is not a valid case and reads as ErrNotFound.
func (s *Store) Open(name string) (*Case, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	c, err := s.load(name)
	if err != nil {
		return nil, err
	}
	s.log.Info("opened case", zap.String("case", name))
	return c, nil
}

// Get reads a case's metadata verbatim.
func (s *Store) Get(name string) (*Case, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return s.load(name)
}

// List returns the names of all valid cases, lexicographically sorted.
// Directories lacking a metadata document are not cases and are
// skipped. A missing investigations root lists as empty.
func (s *Store) List() ([]string, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cases: %w", err)
	}

	var names []string
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, d.Name(), MetadataFile)); err != nil {
			continue
		}
		names = append(names, d.Name())
	}
	sort.Strings(names)
	return names, nil
}

// AddEvidence appends a registered file to the case. The path is
// stored absolute so the record stays meaningful after the process
// leaves its working directory.
func (s *Store) AddEvidence(name, file, description string) error {
	c, err := s.Get(name)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("resolve evidence path: %w", err)
	}

	added := s.now()
	c.Evidence = append(c.Evidence, Evidence{
		File:        abs,
		Description: description,
		Added:       added,
	})
	c.Updated = added

	if err := s.write(c); err != nil {
		return err
	}
	s.log.Debug("added evidence",
		zap.String("case", name),
		zap.String("file", abs))
	return nil
}

// AddNote appends a free-form note to the case.
func (s *Store) AddNote(name, text string) error {
	c, err := s.Get(name)
	if err != nil {
		return err
	}

	c.Notes = append(c.Notes, text)
	c.Updated = s.now()

	if err := s.write(c); err != nil {
		return err
	}
	s.log.Debug("added note", zap.String("case", name))
	return nil
}

func (s *Store) load(name string) (*Case, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(name), MetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read case metadata: %w", err)
	}

	var c Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse case metadata for %q: %w", name, err)
	}
	return &c, nil
}

// write replaces the metadata document atomically. On failure the
// previous document remains authoritative.
func (s *Store) write(c *Case) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal case metadata: %w", err)
	}

	dir := s.Dir(c.Name)
	tmp, err := os.CreateTemp(dir, ".case-*.json")
	if err != nil {
		return fmt.Errorf("write case metadata: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write case metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write case metadata: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write case metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, MetadataFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace case metadata: %w", err)
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, ReservedChars) {
		return fmt.Errorf("%w: %q contains a reserved character (one of %s)", ErrInvalidName, name, ReservedChars)
	}
	return nil
}
