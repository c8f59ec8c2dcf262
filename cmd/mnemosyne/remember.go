package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rand/mnemosyne/internal/engine"
	"github.com/rand/mnemosyne/pkg/types"
)

// runRemember is a thin CLI client: it wires the same engine "serve" uses,
// in-process, with no RPC round trip.
func runRemember(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remember", flag.ExitOnError)
	namespace := fs.String("n", "global", "namespace (global, project:<name>, session:<project>:<id>)")
	importance := fs.Int("i", 5, "importance (1-10)")
	memType := fs.String("t", "", "memory type hint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mnemosyne remember <content> [-n namespace] [-i importance] [-t type]")
	}
	content := fs.Arg(0)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	defer a.engine.Shutdown(context.Background())

	memory, err := a.engine.Capture(ctx, engine.CaptureRequest{
		Content:        content,
		Namespace:      types.ParseNamespace(*namespace),
		MemoryTypeHint: types.MemoryType(*memType),
		ImportanceHint: *importance,
	})
	if err != nil {
		return err
	}

	fmt.Printf("remembered %s in %s\n", memory.ID, memory.Namespace.String())
	return nil
}
