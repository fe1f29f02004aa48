// Package ignore interprets a directory-scoped .dockerignore file to
// classify context files as ignored or not, per the Docker ignore-file
// grammar (literal segments, * globs, ** crossing directories, leading /
// anchors, ! re-inclusion).
package ignore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// FileName is the conventional name of the ignore file, read from the
// context root.
const FileName = ".dockerignore"

// Matcher decides whether a context-relative path is excluded.
type Matcher struct {
	pm *patternmatcher.PatternMatcher
}

// Load reads FileName from contextDir, if present, and builds a Matcher
// from its patterns. Absence of the file yields a Matcher that excludes
// nothing.
func Load(contextDir string) (*Matcher, error) {
	patterns, err := readPatterns(contextDir)
	if err != nil {
		return nil, err
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &Matcher{pm: pm}, nil
}

func readPatterns(contextDir string) ([]string, error) {
	file, err := os.Open(filepath.Join(contextDir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return ignorefile.ReadAll(file)
}

// Ignored reports whether relativePath (relative to the context root,
// using '/' separators) is excluded by the loaded patterns.
func (m *Matcher) Ignored(relativePath string) bool {
	if m == nil || m.pm == nil {
		return false
	}
	matched, err := m.pm.MatchesOrParentMatches(filepath.ToSlash(relativePath))
	if err != nil {
		return false
	}
	return matched
}
