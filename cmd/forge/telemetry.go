package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgebuild/forge/internal/trace"
)

// cmdtelemetry implements `forge telemetry`: capture a short Chrome
// trace-event recording of host CPU/memory counters, the same sink
// internaltrace.Sink(f) feeds from inside a build when distri.go's
// `-ctracefile` flag is set, exposed here as its own subcommand so a
// build's timeline can be correlated with host contention sampled
// independently of any one build run.
func cmdtelemetry(ctx context.Context, args []string) error {
	fs := newFlagSet("telemetry")
	addCommonFlags(fs)
	duration := fs.Duration("duration", 10*time.Second, "how long to sample host resource counters")
	freq := fs.Duration("frequency", 1*time.Second, "sampling interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := trace.Enable("telemetry"); err != nil {
		return err
	}
	fmt.Printf("sampling host CPU/memory every %s for %s\n", *freq, *duration)

	sampleCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	if err := trace.ResourceSamples(sampleCtx, *freq); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	fmt.Println("done")
	return nil
}
