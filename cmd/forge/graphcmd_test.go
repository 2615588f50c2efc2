package main

import (
	"context"
	"strings"
	"testing"
)

func TestCmdgraphPrintsTopoOrder(t *testing.T) {
	setupQueryWorkspace(t)
	out := captureStdout(t, func() {
		if err := cmdgraph(context.Background(), nil); err != nil {
			t.Fatal(err)
		}
	})
	lib := strings.Index(out, "//:lib")
	app := strings.Index(out, "//:app")
	if lib == -1 || app == -1 {
		t.Fatalf("output %q missing expected target ids", out)
	}
	if lib > app {
		t.Errorf("//:lib printed after //:app, want dependency-first order")
	}
}
