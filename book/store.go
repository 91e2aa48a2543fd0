package book

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/maruel/natural"
	yaml "gopkg.in/yaml.v3"

	"booksmith/config"
	"booksmith/text"
)

const (
	conceptFile  = "book_concept.txt"
	outlineFile  = "book_outline.txt"
	profilesFile = "character_profiles.txt"
	titleFile    = "title.txt"
	metaFile     = "project.yaml"

	chaptersDir  = "chapters"
	summariesDir = "summaries"
	backupsDir   = "backups"
	contextDir   = "context"
)

var chapterFileName = regexp.MustCompile(`^chapter_(\d+)\.txt$`)

// ErrNotFound is returned when book directory does not exist.
var ErrNotFound = errors.New("book not found")

// Meta is project information which cannot be recovered from text files.
type Meta struct {
	Title    string    `yaml:"title"`
	Genre    string    `yaml:"genre"`
	Planned  int       `yaml:"planned_chapters"`
	Enhance  bool      `yaml:"enhance"`
	Format   string    `yaml:"format,omitempty"`
	Created  time.Time `yaml:"created"`
	Modified time.Time `yaml:"modified"`
}

// Store gives access to book files under <output>/<slug>.
type Store struct {
	dir string
}

// NewStore returns store for book with given title, nothing is created on disk.
func NewStore(outputDir, title string) *Store {
	return &Store{dir: filepath.Join(outputDir, Slug(title))}
}

func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether book directory is present.
func (s *Store) Exists() bool {
	fi, err := os.Stat(s.dir)
	return err == nil && fi.IsDir()
}

// Create makes book directory tree.
func (s *Store) Create() error {
	for _, d := range []string{s.dir, filepath.Join(s.dir, chaptersDir), filepath.Join(s.dir, summariesDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("unable to create book directory: %w", err)
		}
	}
	return nil
}

func (s *Store) write(name, text string) error {
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("unable to write %s: %w", name, err)
	}
	return nil
}

func (s *Store) read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("unable to read %s: %w", name, err)
	}
	return string(data), nil
}

func chapterName(n int) string {
	return filepath.Join(chaptersDir, fmt.Sprintf("chapter_%d.txt", n))
}

func summaryName(n int) string {
	return filepath.Join(summariesDir, fmt.Sprintf("chapter_%d_summary.txt", n))
}

func backupName(n int) string {
	return filepath.Join(backupsDir, fmt.Sprintf("chapter_%d_original.txt", n))
}

func contextName(n int) string {
	return filepath.Join(contextDir, fmt.Sprintf("chapter_%d_context.txt", n))
}

func (s *Store) ChapterPath(n int) string {
	return filepath.Join(s.dir, chapterName(n))
}

func (s *Store) SaveConcept(text string) error  { return s.write(conceptFile, text) }
func (s *Store) SaveOutline(text string) error  { return s.write(outlineFile, text) }
func (s *Store) SaveProfiles(text string) error { return s.write(profilesFile, text) }
func (s *Store) SaveTitle(text string) error    { return s.write(titleFile, text) }

func (s *Store) SaveChapter(n int, text string) error { return s.write(chapterName(n), text) }
func (s *Store) SaveSummary(n int, text string) error { return s.write(summaryName(n), text) }
func (s *Store) SaveBackup(n int, text string) error  { return s.write(backupName(n), text) }

// SaveContext keeps compressed context bundle for inspection.
func (s *Store) SaveContext(n int, text string) error { return s.write(contextName(n), text) }

func (s *Store) LoadChapter(n int) (string, error) { return s.read(chapterName(n)) }
func (s *Store) LoadSummary(n int) (string, error) { return s.read(summaryName(n)) }
func (s *Store) LoadBackup(n int) (string, error)  { return s.read(backupName(n)) }

func (s *Store) HasSummary(n int) bool {
	_, err := os.Stat(filepath.Join(s.dir, summaryName(n)))
	return err == nil
}

func (s *Store) HasBackup(n int) bool {
	_, err := os.Stat(filepath.Join(s.dir, backupName(n)))
	return err == nil
}

// RemoveBackup deletes backup of the chapter original, absent backup is not an error.
func (s *Store) RemoveBackup(n int) error {
	if err := os.Remove(filepath.Join(s.dir, backupName(n))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ChapterIndexes returns indexes of chapter files present on disk in order.
func (s *Store) ChapterIndexes() ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, chaptersDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && chapterFileName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(natural.StringSlice(names))

	indexes := make([]int, 0, len(names))
	for _, name := range names {
		n, err := strconv.Atoi(chapterFileName.FindStringSubmatch(name)[1])
		if err != nil || n < 1 {
			continue
		}
		indexes = append(indexes, n)
	}
	return indexes, nil
}

// ContiguousChapters returns number of chapters 1..N present without gaps.
func (s *Store) ContiguousChapters() (int, error) {
	indexes, err := s.ChapterIndexes()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, idx := range indexes {
		if idx != n+1 {
			break
		}
		n = idx
	}
	return n, nil
}

func (s *Store) SaveMeta(m Meta) error {
	m.Modified = time.Now()
	if m.Created.IsZero() {
		m.Created = m.Modified
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return s.write(metaFile, string(data))
}

func (s *Store) LoadMeta() (Meta, error) {
	var m Meta
	data, err := s.read(metaFile)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal([]byte(data), &m); err != nil {
		return m, fmt.Errorf("unable to decode %s: %w", metaFile, err)
	}
	return m, nil
}

var genreLine = regexp.MustCompile(`(?im)^\s*genre\s*:\s*(.+?)\s*$`)

// FallbackGenre is used when genre cannot be recovered.
const FallbackGenre = "fiction"

// Load rehydrates project with all chapters present on disk. Outline and
// profiles are required, everything else is optional.
func (s *Store) Load() (*Project, error) {
	if !s.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.dir)
	}

	p := &Project{}
	var err error
	if p.Outline, err = s.read(outlineFile); err != nil {
		return nil, err
	}
	if p.Profiles, err = s.read(profilesFile); err != nil {
		return nil, err
	}
	p.Concept, _ = s.read(conceptFile)
	if t, err := s.read(titleFile); err == nil {
		p.Title = strings.TrimSpace(t)
	}

	if m, err := s.LoadMeta(); err == nil {
		p.Genre, p.Planned, p.Enhance = m.Genre, m.Planned, m.Enhance
		if len(p.Title) == 0 {
			p.Title = m.Title
		}
	}
	if len(p.Genre) == 0 {
		if m := genreLine.FindStringSubmatch(p.Concept); m != nil {
			p.Genre = m[1]
		} else {
			p.Genre = FallbackGenre
		}
	}

	count, err := s.ContiguousChapters()
	if err != nil {
		return nil, err
	}
	for i := 1; i <= count; i++ {
		c := &Chapter{Index: i}
		if c.Draft, err = s.LoadChapter(i); err != nil {
			return nil, err
		}
		if s.HasBackup(i) {
			// canonical file holds accepted enhancement
			c.Enhanced = c.Draft
			if c.Draft, err = s.LoadBackup(i); err != nil {
				return nil, err
			}
			c.EnhancedWords = text.WordCount(c.Enhanced)
		}
		c.Summary, _ = s.LoadSummary(i)
		if err := p.AddChapter(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// DocumentPath returns location of compiled document for the book.
func (s *Store) DocumentPath(title string, format config.OutputFmt, transliterate bool) string {
	name := title
	if transliterate {
		name = slug.Make(name)
	}
	return filepath.Join(s.dir, config.CleanFileName(name)+format.Ext())
}
