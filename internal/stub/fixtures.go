package stub

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/engage/internal/assessment"
	"github.com/abhisek/engage/internal/content"
)

//go:embed fixtures/*.yaml
var embedded embed.FS

// Fixture is the canned content and question bank for one subject/topic.
type Fixture struct {
	Subject           string                   `yaml:"subject"`
	Topic             string                   `yaml:"topic"`
	Default           bool                     `yaml:"default"`
	Metadata          content.Metadata         `yaml:"metadata"`
	InstructionalPlan string                   `yaml:"instructional_plan"`
	Sections          []content.Section        `yaml:"sections"`
	Questions         []assessment.RawQuestion `yaml:"questions"`
}

// Library indexes fixtures by subject and topic.
type Library struct {
	byKey    map[string]*Fixture
	fallback *Fixture
}

func key(subject, topic string) string {
	return strings.ToLower(strings.TrimSpace(subject)) + "/" + strings.ToLower(strings.TrimSpace(topic))
}

// DefaultLibrary loads the fixtures compiled into the binary.
func DefaultLibrary() (*Library, error) {
	sub, err := fs.Sub(embedded, "fixtures")
	if err != nil {
		return nil, err
	}
	return LoadLibrary(sub)
}

// LoadDir loads the embedded fixtures and then any *.yaml in dir, which
// replace embedded fixtures with the same subject/topic.
func LoadDir(dir string) (*Library, error) {
	lib, err := DefaultLibrary()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return lib, nil
	}
	extra, err := LoadLibrary(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	for k, f := range extra.byKey {
		lib.byKey[k] = f
		if f.Default {
			lib.fallback = f
		}
	}
	return lib, nil
}

// LoadLibrary parses every *.yaml at the root of fsys.
func LoadLibrary(fsys fs.FS) (*Library, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	lib := &Library{byKey: make(map[string]*Fixture)}
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", name, err)
		}
		var f Fixture
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse fixture %s: %w", name, err)
		}
		if f.Subject == "" || f.Topic == "" {
			return nil, fmt.Errorf("fixture %s: subject and topic are required", path.Base(name))
		}
		for i := range f.Sections {
			f.Sections[i].Type = content.ParseSectionType(string(f.Sections[i].Type))
		}
		content.SortByOrdinal(f.Sections)
		lib.byKey[key(f.Subject, f.Topic)] = &f
		if f.Default || lib.fallback == nil {
			lib.fallback = &f
		}
	}
	if len(lib.byKey) == 0 {
		return nil, errors.New("no fixtures found")
	}
	return lib, nil
}

// Lookup returns the fixture for subject/topic, or the default fixture.
// The bool reports an exact match.
func (l *Library) Lookup(subject, topic string) (*Fixture, bool) {
	if f, ok := l.byKey[key(subject, topic)]; ok {
		return f, true
	}
	return l.fallback, false
}

// Topics lists "subject/topic" keys in sorted order.
func (l *Library) Topics() []string {
	out := make([]string, 0, len(l.byKey))
	for _, f := range l.byKey {
		out = append(out, f.Subject+"/"+f.Topic)
	}
	sort.Strings(out)
	return out
}
