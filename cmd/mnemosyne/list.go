package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	namespace := fs.String("n", "global", "namespace")
	limit := fs.Int("l", 20, "max results")
	sortBy := fs.String("sort", "created_at", "sort field: created_at, updated_at, importance, id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.engine.List(ctx, storage.ListOptions{
		Namespace: types.ParseNamespace(*namespace),
		Limit:     *limit,
		SortBy:    *sortBy,
		SortOrder: "desc",
	})
	if err != nil {
		return err
	}

	fmt.Printf("%d memories (page %d, %d total)\n", len(page.Items), page.Page, page.Total)
	for _, m := range page.Items {
		fmt.Printf("%s  [%d]  %s\n", m.ID, m.Importance, truncate(m.Content, 80))
	}
	return nil
}
