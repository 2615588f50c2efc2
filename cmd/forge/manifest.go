package main

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/forgebuild/forge/internal/ignore"
	"github.com/forgebuild/forge/internal/target"
	"golang.org/x/xerrors"
)

// manifestTarget is the on-disk shape of one target entry in forge.json.
// Config/target ingestion is explicitly out of scope for the core
// packages (SPEC_FULL.md §1: "a small textproto-flavored loader is not
// part of the core"), so this thin JSON decoder lives in the CLI only;
// internal/target.Target itself is still constructed the same way tests
// build it, as Go literals.
type manifestTarget struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	Language string            `json:"language"`
	Sources  []string          `json:"sources"`
	Deps     []string          `json:"deps"`
	Flags    []string          `json:"flags"`
	Env      map[string]string `json:"env"`
	Output   string            `json:"output"`
}

type manifest struct {
	Targets []manifestTarget `json:"targets"`
}

var kindByName = map[string]target.Kind{
	"executable": target.KindExecutable,
	"library":    target.KindLibrary,
	"test":       target.KindTest,
	"custom":     target.KindCustom,
}

// loadManifest reads forge.json at path, expands each target's Sources
// glob patterns relative to root, and drops any path the ignore filter
// excludes (built-in ecosystem dirs plus root's .builderignore).
func loadManifest(root, path string) ([]*target.Target, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read manifest %s: %w", path, err)
	}
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, xerrors.Errorf("parse manifest %s: %w", path, err)
	}
	filt, err := ignore.Load(root)
	if err != nil {
		return nil, xerrors.Errorf("load .builderignore: %w", err)
	}

	targets := make([]*target.Target, 0, len(m.Targets))
	for _, mt := range m.Targets {
		kind, ok := kindByName[mt.Kind]
		if !ok {
			return nil, target.ConfigErrorf("target %q: unknown kind %q", mt.ID, mt.Kind)
		}
		sources, err := expandSources(root, filt, mt.Sources)
		if err != nil {
			return nil, xerrors.Errorf("target %q: %w", mt.ID, err)
		}
		deps := make(map[target.Id]struct{}, len(mt.Deps))
		for _, d := range mt.Deps {
			deps[target.Id(d)] = struct{}{}
		}
		targets = append(targets, &target.Target{
			ID:         target.Id(mt.ID),
			Kind:       kind,
			Language:   target.Language(mt.Language),
			Sources:    sources,
			Deps:       deps,
			Flags:      mt.Flags,
			Env:        mt.Env,
			OutputPath: mt.Output,
		})
	}
	return targets, nil
}

// expandSources resolves glob patterns relative to root in declaration
// order (spec invariant: Sources is ordered, globs already expanded by the
// time a Target reaches the graph), skipping anything the ignore filter
// excludes.
func expandSources(root string, filt *ignore.Filter, patterns []string) ([]string, error) {
	var out []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pat))
		if err != nil {
			return nil, xerrors.Errorf("glob %q: %w", pat, err)
		}
		if matches == nil {
			// no wildcard expansion, or no match: keep literally so a
			// single named file still round-trips.
			matches = []string{filepath.Join(root, pat)}
		}
		for _, m := range matches {
			rel, err := filepath.Rel(root, m)
			if err != nil {
				rel = m
			}
			fi, statErr := os.Stat(m)
			isDir := statErr == nil && fi.IsDir()
			if filt.Ignored(rel, isDir) {
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}
