package scanner

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// IgnoreFileName is the per-directory ignore file the scanner honors.
const IgnoreFileName = ".stumpignore"

// Rule is one parsed ignore pattern. Patterns are doublestar globs matched
// against the slash-separated path relative to the directory that declared
// them. A leading "!" negates the rule.
type Rule struct {
	Pattern string
	Negate  bool
}

type ignoreSource struct {
	base  string
	rules []Rule
}

// IgnoreMatcher decides which paths a scan skips. Sources are consulted
// root-first and within a source in declaration order; the last matching rule
// wins, so a deeper ignore file can re-include what the library excluded.
type IgnoreMatcher struct {
	sources []ignoreSource
}

// NewIgnoreMatcher builds a matcher rooted at the library path. The library's
// configured rules form the first source; the root .stumpignore, when
// present, is loaded as the second.
func NewIgnoreMatcher(libraryPath string, libraryRules []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}

	if len(libraryRules) > 0 {
		rules, err := ParseRules(libraryRules)
		if err != nil {
			return nil, err
		}
		m.sources = append(m.sources, ignoreSource{base: libraryPath, rules: rules})
	}

	if err := m.AddFile(filepath.Join(libraryPath, IgnoreFileName)); err != nil {
		return nil, err
	}

	return m, nil
}

// AddFile loads a .stumpignore file as a new source based at the file's
// directory. A missing file is not an error.
func (m *IgnoreMatcher) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithStack(err)
	}
	defer f.Close()

	lines := []string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return errors.WithStack(err)
	}

	rules, err := ParseRules(lines)
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	if len(rules) > 0 {
		m.sources = append(m.sources, ignoreSource{base: filepath.Dir(path), rules: rules})
	}

	return nil
}

// Ignored reports whether the path is excluded from the scan. The path must
// be inside the library tree.
func (m *IgnoreMatcher) Ignored(path string) bool {
	ignored := false
	for _, src := range m.sources {
		rel, err := filepath.Rel(src.base, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		for _, rule := range src.rules {
			ok, err := doublestar.Match(rule.Pattern, rel)
			if err != nil || !ok {
				continue
			}
			ignored = !rule.Negate
		}
	}
	return ignored
}

// ParseRules parses ignore lines into rules. Blank lines and # comments are
// skipped. Invalid globs are an error so a bad rule aborts the scan during
// init instead of silently matching nothing.
func ParseRules(lines []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule := Rule{Pattern: line}
		if strings.HasPrefix(line, "!") {
			rule.Negate = true
			rule.Pattern = strings.TrimSpace(line[1:])
		}
		if rule.Pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(rule.Pattern) {
			return nil, errors.Errorf("invalid ignore pattern %q", rule.Pattern)
		}

		rules = append(rules, rule)
	}
	return rules, nil
}

// ValidateRules checks library-configured ignore rules without building a
// matcher. Used by the libraries API before persisting.
func ValidateRules(rules []string) error {
	_, err := ParseRules(rules)
	return err
}
