package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/internal/astindex"
	"github.com/forgebuild/forge/internal/fingerprint"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func alwaysExists(string) bool { return true }

func TestAnalyzeNewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a")

	a := New(astindex.New(), fingerprint.NewHasher())
	result, err := a.Analyze([]string{path}, alwaysExists)
	if err != nil {
		t.Fatal(err)
	}
	if reason, ok := result.FilesToRebuild[path]; !ok || reason != ReasonNewFile {
		t.Errorf("FilesToRebuild[%s] = (%v,%v), want ReasonNewFile", path, reason, ok)
	}
}

func TestAnalyzeDeletedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	idx := astindex.New()
	idx.Put(&astindex.FileAST{FilePath: path, FileHash: "h1"})

	a := New(idx, fingerprint.NewHasher())
	result, err := a.Analyze([]string{path}, func(string) bool { return false })
	if err != nil {
		t.Fatal(err)
	}
	if reason, ok := result.FilesToRebuild[path]; !ok || reason != ReasonDeleted {
		t.Errorf("FilesToRebuild[%s] = (%v,%v), want ReasonDeleted", path, reason, ok)
	}
	if _, ok := idx.Get(path); ok {
		t.Error("index still has entry for a deleted file after Analyze")
	}
}

func TestAnalyzeUnchangedFileNotRebuilt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a")

	a := New(astindex.New(), fingerprint.NewHasher())
	hash, err := a.CurrentHash(path)
	if err != nil {
		t.Fatal(err)
	}
	idx := astindex.New()
	idx.Put(&astindex.FileAST{FilePath: path, FileHash: hash})
	a = New(idx, fingerprint.NewHasher())

	result, err := a.Analyze([]string{path}, alwaysExists)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.FilesToRebuild[path]; ok {
		t.Errorf("FilesToRebuild contains unchanged file %s", path)
	}
}

func TestAnalyzePropagatesSymbolDependency(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.go")
	pathB := filepath.Join(dir, "b.go")
	writeFile(t, pathA, "package a\nfunc Foo() {}")
	writeFile(t, pathB, "package a\nfunc UseFoo() { Foo() }")

	idx := astindex.New()
	a := New(idx, fingerprint.NewHasher())
	oldHash, err := a.CurrentHash(pathA)
	if err != nil {
		t.Fatal(err)
	}
	idx.Put(&astindex.FileAST{
		FilePath: pathA,
		FileHash: oldHash,
		Symbols:  []astindex.Symbol{{Name: "Foo", ContentHash: "h1"}},
	})
	idx.Put(&astindex.FileAST{
		FilePath: pathB,
		FileHash: "hb",
		Symbols: []astindex.Symbol{
			{Name: "UseFoo", ContentHash: "hc", ReferencedSymbols: []string{pathA + "::Foo"}},
		},
	})

	// exists() stands in for the caller's "reparse before analyze" step:
	// rewrite a.go's content (so its file hash changes) and Put the fresh
	// FileAST with Foo's content hash bumped, exactly what a real driver's
	// Analyze call would have already done by the time this runs.
	exists := func(path string) bool {
		if path == pathA {
			writeFile(t, pathA, "package a\nfunc Foo() { /* changed */ }")
			idx.Put(&astindex.FileAST{
				FilePath: pathA,
				FileHash: "new-hash",
				Symbols:  []astindex.Symbol{{Name: "Foo", ContentHash: "h2"}},
			})
		}
		return true
	}

	result, err := a.Analyze([]string{pathA}, exists)
	if err != nil {
		t.Fatal(err)
	}
	if reason, ok := result.FilesToRebuild[pathA]; !ok || reason != ReasonSymbolsModified {
		t.Errorf("FilesToRebuild[%s] = (%v,%v), want ReasonSymbolsModified", pathA, reason, ok)
	}
	if reason, ok := result.FilesToRebuild[pathB]; !ok || reason != ReasonSymbolDep {
		t.Errorf("FilesToRebuild[%s] = (%v,%v), want ReasonSymbolDep", pathB, reason, ok)
	}
	syms := result.SymbolsToRecompile[pathB]
	if len(syms) != 1 || syms[0] != "UseFoo" {
		t.Errorf("SymbolsToRecompile[%s] = %v, want [UseFoo]", pathB, syms)
	}
}

func TestAnalyzeIncludesPropagation(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.h")
	pathB := filepath.Join(dir, "b.c")
	writeFile(t, pathA, "#define X 1")
	writeFile(t, pathB, "#include \"a.h\"")

	idx := astindex.New()
	idx.Put(&astindex.FileAST{FilePath: pathB, FileHash: "hb", Includes: []string{pathA}})

	a := New(idx, fingerprint.NewHasher())
	result, err := a.Analyze([]string{pathA}, alwaysExists)
	if err != nil {
		t.Fatal(err)
	}
	if reason, ok := result.FilesToRebuild[pathB]; !ok || reason != ReasonIncludes {
		t.Errorf("FilesToRebuild[%s] = (%v,%v), want ReasonIncludes", pathB, reason, ok)
	}
}
