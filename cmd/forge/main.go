// Command forge is the thin CLI surface over the build orchestrator
// packages: `build [target...]`, `query <expr>`, `clean`, `resume`,
// `graph`, `telemetry`, `init`.
//
// Grounded on cmd/distri/distri.go's verb-dispatch table (a map of verb ->
// func(ctx, args) error, looked up after flag.Parse, with the same
// exit-code discipline: 2 for a usage/config error, 1 for a build
// failure, 130 for a cancelled run) and on context.go/atexit.go for
// signal-driven cancellation and exit-time cache flush.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/forgebuild/forge/internal/driver"
	"github.com/forgebuild/forge/internal/target"
)

// toolVersion stamps checkpoints so a stale-but-still-within-TTL
// checkpoint from a different forge build is still discarded (§4.5
// "FULL" note), mirroring the teacher's version.go-style build identifier
// without inheriting its package-archive-specific parsing.
const toolVersion = "forge-dev"

var (
	workDir      = flag.String("C", ".", "workspace root directory")
	manifestFlag = flag.String("manifest", "forge.json", "path to the target manifest, relative to the workspace root unless absolute")
	cacheDirFlag = flag.String("cache-dir", ".forge-cache", "cache directory, relative to the workspace root unless absolute")
	jobsFlag     = flag.Int("jobs", 0, "number of concurrent build workers (0 = runtime.NumCPU)")
	verbose      = flag.Bool("verbose", false, "enable verbose logging")
	mode         = flag.String("mode", "interactive", "status reporting mode: interactive, plain, quiet, verbose")
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

// addCommonFlags re-registers the global flags on a per-subcommand
// FlagSet so `forge build -jobs 4` and `forge -jobs 4 build` both parse,
// matching distri's own pattern of a single global flag.FlagSet consulted
// by every verb.
func addCommonFlags(fs *flag.FlagSet) {
	fs.StringVar(workDir, "C", *workDir, "workspace root directory")
	fs.StringVar(manifestFlag, "manifest", *manifestFlag, "path to the target manifest")
	fs.StringVar(cacheDirFlag, "cache-dir", *cacheDirFlag, "cache directory")
	fs.IntVar(jobsFlag, "jobs", *jobsFlag, "number of concurrent build workers")
	fs.BoolVar(verbose, "verbose", *verbose, "enable verbose logging")
	fs.StringVar(mode, "mode", *mode, "status reporting mode")
}

func manifestPath() string {
	if filepathIsAbs(*manifestFlag) {
		return *manifestFlag
	}
	return joinPath(*workDir, *manifestFlag)
}

func outputDir() string {
	return joinPath(*workDir, "forge-out")
}

func init() {
	if *jobsFlag <= 0 {
		*jobsFlag = defaultJobs()
	}
}

// driverRegistry builds the default language driver set: an ExecDriver
// per known language invoking that ecosystem's conventional compiler
// front-end, exactly mirroring the per-language switch in distri's own
// buildc.go/buildcmake.go/buildmeson.go/buildpython.go/buildproto.go
// collapsed into data instead of a type-switch, per §9.
func driverRegistry() *driver.Registry {
	r := driver.NewRegistry()
	for lang, cmd := range map[target.Language]string{
		target.LangC:      "cc",
		target.LangCXX:    "c++",
		target.LangRust:   "rustc",
		target.LangPython: "python3",
		target.LangJS:     "node",
	} {
		r.Register(lang, &driver.ExecDriver{Lang: lang, Command: cmd})
	}
	return r
}

func funcmain() error {
	flag.Parse()
	// Best effort: a lower ceiling just means a large -jobs count may hit
	// "too many open files" under a wide fan-out wave.
	_ = bumpRlimitNOFILE()
	args := flag.Args()
	verb := "build"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	verbs := map[string]func(context.Context, []string) error{
		"build":     cmdbuild,
		"query":     cmdquery,
		"clean":     cmdclean,
		"resume":    cmdresume,
		"graph":     cmdgraph,
		"telemetry": cmdtelemetry,
		"init":      cmdinit,
	}
	fn, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: forge <build|query|clean|resume|graph|telemetry|init> [options]\n")
		os.Exit(2)
	}

	ctx, canc := interruptibleContext()
	defer canc()

	err := fn(ctx, args)
	if flushErr := runAtExit(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

// exitCodeError carries a specific process exit code (2 config error, 130
// cancelled) through the verb-dispatch return path instead of calling
// os.Exit directly from inside a verb, which would skip runAtExit's cache
// and checkpoint flush hooks.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func main() {
	err := funcmain()
	if err == nil {
		return
	}
	if ece, ok := err.(*exitCodeError); ok {
		if ece.err != nil {
			fmt.Fprintln(os.Stderr, ece.err)
		}
		os.Exit(ece.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
