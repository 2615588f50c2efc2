package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func loadWithPatterns(t *testing.T, lines string) *Filter {
	t.Helper()
	dir := t.TempDir()
	if lines != "" {
		if err := os.WriteFile(filepath.Join(dir, ".builderignore"), []byte(lines), 0644); err != nil {
			t.Fatal(err)
		}
	}
	f, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() on workspace without .builderignore: %v", err)
	}
	if f.Ignored("main.go", false) {
		t.Error("Ignored() = true with no patterns and no builtin match")
	}
}

func TestBuiltinsAlwaysIgnored(t *testing.T) {
	f := loadWithPatterns(t, "")
	cases := []struct {
		path  string
		isDir bool
	}{
		{"node_modules", true},
		{"node_modules/left-pad/index.js", false},
		{"vendor/github.com/x/pkg", false},
		{".git/HEAD", false},
	}
	for _, c := range cases {
		if !f.Ignored(c.path, c.isDir) {
			t.Errorf("Ignored(%q) = false, want true (builtin)", c.path)
		}
	}
}

func TestSimpleGlobPattern(t *testing.T) {
	f := loadWithPatterns(t, "*.o\n")
	if !f.Ignored("main.o", false) {
		t.Error("Ignored(main.o) = false, want true")
	}
	if f.Ignored("main.c", false) {
		t.Error("Ignored(main.c) = true, want false")
	}
}

func TestAnchoredPattern(t *testing.T) {
	f := loadWithPatterns(t, "/gen/output.bin\n")
	if !f.Ignored("gen/output.bin", false) {
		t.Error("Ignored(gen/output.bin) = false, want true")
	}
	if f.Ignored("sub/gen/output.bin", false) {
		t.Error("Ignored(sub/gen/output.bin) = true, want false (anchored to root)")
	}
}

func TestDirOnlyPattern(t *testing.T) {
	f := loadWithPatterns(t, "tmp/\n")
	if !f.Ignored("tmp", true) {
		t.Error("Ignored(tmp, isDir=true) = false, want true")
	}
	if f.Ignored("tmp", false) {
		t.Error("Ignored(tmp, isDir=false) = true, want false (dirOnly pattern)")
	}
}

func TestNegationOverridesEarlierMatch(t *testing.T) {
	f := loadWithPatterns(t, "*.log\n!important.log\n")
	if !f.Ignored("debug.log", false) {
		t.Error("Ignored(debug.log) = false, want true")
	}
	if f.Ignored("important.log", false) {
		t.Error("Ignored(important.log) = true, want false (negated)")
	}
}

func TestNegationReincludesBuiltinIgnoredPath(t *testing.T) {
	f := loadWithPatterns(t, "!vendor/keep-me/**\n")
	if f.Ignored("vendor/keep-me/main.go", false) {
		t.Error("Ignored(vendor/keep-me/main.go) = true, want false (user negation overrides builtin)")
	}
	if !f.Ignored("vendor/other/main.go", false) {
		t.Error("Ignored(vendor/other/main.go) = false, want true (builtin still applies outside the negated path)")
	}
}

func TestLastMatchWinsWithinFile(t *testing.T) {
	f := loadWithPatterns(t, "!keep.txt\nkeep.txt\n")
	if !f.Ignored("keep.txt", false) {
		t.Error("Ignored(keep.txt) = false, want true (later pattern re-ignores)")
	}
}

func TestDoubleStarPattern(t *testing.T) {
	f := loadWithPatterns(t, "**/testdata/*.golden\n")
	if !f.Ignored("a/b/testdata/foo.golden", false) {
		t.Error("Ignored(a/b/testdata/foo.golden) = false, want true")
	}
	if f.Ignored("a/b/testdata/foo.txt", false) {
		t.Error("Ignored(a/b/testdata/foo.txt) = true, want false")
	}
}

func TestCommentsAndBlankLinesIgnored(t *testing.T) {
	f := loadWithPatterns(t, "# comment\n\n*.tmp\n")
	if !f.Ignored("scratch.tmp", false) {
		t.Error("Ignored(scratch.tmp) = false, want true")
	}
}
