package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rand/mnemosyne/internal/retriever"
	"github.com/rand/mnemosyne/pkg/types"
)

func runRecall(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recall", flag.ExitOnError)
	namespace := fs.String("n", "global", "namespace")
	limit := fs.Int("l", 10, "max results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mnemosyne recall <query> [-n namespace] [-l limit]")
	}
	query := fs.Arg(0)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	defer a.engine.Shutdown(context.Background())

	results, err := a.engine.Recall(ctx, query, types.ParseNamespace(*namespace), retriever.Options{
		Limit:         *limit,
		IncludeGraph:  true,
		IncludeVector: true,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.3f  %s  %s\n", r.Score, r.Memory.ID, truncate(r.Memory.Content, 80))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
